package contact

import (
	"math"

	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/pkg/model"
)

// Analyzer classifies the kind of car-to-car contact of a trigger.
// It is only consulted for triggers that mapped to the contact type.
type Analyzer interface {
	Analyze(trigger *model.IncidentTrigger) model.ContactType
}

const (
	divebombBrakingDelta = 10.0 // m braked later than reference
	sideAngleThreshold   = 45.0 // degrees
	rearAngleThreshold   = 20.0 // degrees
)

type analyzer struct {
	l *log.Logger
}

type Option func(*analyzer)

func WithLogger(arg *log.Logger) Option {
	return func(a *analyzer) {
		a.l = arg
	}
}

func NewAnalyzer(opts ...Option) Analyzer {
	ret := &analyzer{l: log.Default().Named("pipeline.contact")}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Analyze returns a neutral ContactOther when the trigger carries no
// usable contact context or no nearby drivers.
func (a *analyzer) Analyze(trigger *model.IncidentTrigger) model.ContactType {
	data := trigger.Data.Contact
	if data == nil || len(trigger.NearbyDriverIDs) == 0 {
		return model.ContactOther
	}
	angle := math.Abs(data.ApproachAngle)
	switch {
	case data.CornerEntry && data.BrakingPointDelta > divebombBrakingDelta:
		return model.ContactDivebomb
	case angle >= sideAngleThreshold:
		return model.ContactSide
	case angle < rearAngleThreshold && data.ClosingSpeed > 0:
		return model.ContactRearEnd
	default:
		return model.ContactOther
	}
}
