package responsibility

import (
	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/pkg/model"
)

// Predictor attributes fault among the involved drivers. It is only
// consulted when more than one driver is involved. Implementations must
// keep probabilities within [0,1] and assign exactly one role per driver.
// The first entry of drivers is always the primary driver; the input
// order must be preserved.
type Predictor interface {
	Predict(trigger *model.IncidentTrigger, incType model.IncidentType,
		contactType model.ContactType, drivers []model.InvolvedDriver,
	) []model.InvolvedDriver
}

type predictor struct {
	l *log.Logger
}

type Option func(*predictor)

func WithLogger(arg *log.Logger) Option {
	return func(p *predictor) {
		p.l = arg
	}
}

func NewPredictor(opts ...Option) Predictor {
	ret := &predictor{l: log.Default().Named("pipeline.responsibility")}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

//nolint:funlen // weighting terms are clearer in one place
func (p *predictor) Predict(
	trigger *model.IncidentTrigger,
	incType model.IncidentType,
	contactType model.ContactType,
	drivers []model.InvolvedDriver,
) []model.InvolvedDriver {
	if len(drivers) < 2 {
		return drivers
	}

	// start from the assumption that the primary driver caused it
	primaryFault := 0.7
	switch contactType {
	case model.ContactRearEnd:
		// the car hitting from behind is almost always at fault
		primaryFault = 0.85
	case model.ContactDivebomb:
		primaryFault = 0.9
	case model.ContactSide:
		primaryFault = 0.55
	}
	if data := trigger.Data.Contact; data != nil {
		if data.BrakingPointDelta > 0 {
			primaryFault += 0.05
		}
		if data.CornerEntry {
			primaryFault += 0.05
		}
	}
	primaryFault = clampProb(primaryFault)

	remainder := (1.0 - primaryFault) / float64(len(drivers)-1)
	for i := range drivers {
		var fault float64
		if i == 0 {
			fault = primaryFault
		} else {
			fault = remainder
		}
		prob := clampProb(fault)
		drivers[i].FaultProbability = &prob
		drivers[i].Role = roleFor(i, primaryFault)
	}
	p.l.Debug("fault attribution",
		log.String("primary", drivers[0].DriverID),
		log.Float64("primaryFault", primaryFault))
	return drivers
}

func roleFor(idx int, primaryFault float64) model.DriverRole {
	if idx == 0 {
		if primaryFault >= 0.5 {
			return model.RoleCause
		}
		return model.RoleInvolved
	}
	if primaryFault >= 0.5 {
		return model.RoleVictim
	}
	return model.RoleInvolved
}

func clampProb(val float64) float64 {
	if val < 0 {
		return 0
	}
	if val > 1 {
		return 1
	}
	return val
}
