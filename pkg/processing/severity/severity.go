package severity

import (
	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/pkg/model"
)

// Scorer computes the advisory severity of an incident. Implementations
// must keep the score within [0,100] for every possible input and be
// monotonic in the impact derived signals.
type Scorer interface {
	Score(trigger *model.IncidentTrigger, incType model.IncidentType,
		contactType model.ContactType) (model.Severity, int)
}

// base score per incident type
const (
	baseContact       = 50.0
	baseLossOfControl = 40.0
	baseSpin          = 35.0
	baseOffTrack      = 25.0
)

const (
	lightThreshold = 34
	heavyThreshold = 67
)

type scorer struct {
	l *log.Logger
}

type Option func(*scorer)

func WithLogger(arg *log.Logger) Option {
	return func(s *scorer) {
		s.l = arg
	}
}

func NewScorer(opts ...Option) Scorer {
	ret := &scorer{l: log.Default().Named("pipeline.severity")}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

//nolint:cyclop // score terms are clearer in one place
func (s *scorer) Score(
	trigger *model.IncidentTrigger,
	incType model.IncidentType,
	contactType model.ContactType,
) (model.Severity, int) {
	var score float64
	switch incType {
	case model.IncidentContact:
		score = baseContact
	case model.IncidentLossOfControl:
		score = baseLossOfControl
	case model.IncidentSpin:
		score = baseSpin
	case model.IncidentOffTrack:
		score = baseOffTrack
	}

	if data := trigger.Data.Contact; data != nil {
		score += capped(data.ClosingSpeed*1.5, 30)
	}
	if data := trigger.Data.Spin; data != nil {
		score += capped(data.RotationDeg/36.0, 10)
		score += capped(data.Speed*0.2, 10)
	}
	if data := trigger.Data.OffTrack; data != nil {
		score += capped(data.Speed*0.3, 15)
	}
	if data := trigger.Data.Decel; data != nil {
		score += capped(data.Decel*0.5, 20)
	}
	if contactType == model.ContactDivebomb {
		score += 10
	}
	score += capped(float64(trigger.Data.IncidentCountDelta)*5, 15)
	// the more drivers are caught up in it the worse it gets
	score += capped(float64(len(trigger.NearbyDriverIDs))*3, 9)

	ret := clamp(score)
	return severityFor(ret), ret
}

func severityFor(score int) model.Severity {
	switch {
	case score < lightThreshold:
		return model.SeverityLight
	case score < heavyThreshold:
		return model.SeverityMedium
	default:
		return model.SeverityHeavy
	}
}

func capped(val, maxVal float64) float64 {
	if val < 0 {
		return 0
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func clamp(score float64) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}
