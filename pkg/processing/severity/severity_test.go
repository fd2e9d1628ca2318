//nolint:thelper,funlen // ok for tests
package severity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stewardlog/incident-service-go/pkg/model"
)

func TestScorer_Score(t *testing.T) {
	tests := []struct {
		name        string
		trigger     *model.IncidentTrigger
		incType     model.IncidentType
		contactType model.ContactType
		wantScore   int
		wantSev     model.Severity
	}{
		{
			name:      "off track at low speed",
			trigger:   &model.IncidentTrigger{Data: model.TriggerData{OffTrack: &model.OffTrackData{Speed: 10}}},
			incType:   model.IncidentOffTrack,
			wantScore: 28, // 25 + 3
			wantSev:   model.SeverityLight,
		},
		{
			name:      "off track speed term capped",
			trigger:   &model.IncidentTrigger{Data: model.TriggerData{OffTrack: &model.OffTrackData{Speed: 90}}},
			incType:   model.IncidentOffTrack,
			wantScore: 40, // 25 + capped 15
			wantSev:   model.SeverityMedium,
		},
		{
			name: "full spin",
			trigger: &model.IncidentTrigger{Data: model.TriggerData{
				Spin: &model.SpinData{RotationDeg: 360, Speed: 30},
			}},
			incType:   model.IncidentSpin,
			wantScore: 51, // 35 + 10 + 6
			wantSev:   model.SeverityMedium,
		},
		{
			name: "plain contact",
			trigger: &model.IncidentTrigger{
				NearbyDriverIDs: []string{"D2"},
				Data: model.TriggerData{
					Contact: &model.ContactData{ClosingSpeed: 10},
				},
			},
			incType:     model.IncidentContact,
			contactType: model.ContactRearEnd,
			wantScore:   68, // 50 + 15 + 3
			wantSev:     model.SeverityHeavy,
		},
		{
			name: "everything maxed clamps to 100",
			trigger: &model.IncidentTrigger{
				NearbyDriverIDs: []string{"D2", "D3", "D4", "D5", "D6"},
				Data: model.TriggerData{
					Contact:            &model.ContactData{ClosingSpeed: 100},
					IncidentCountDelta: 10,
				},
			},
			incType:     model.IncidentContact,
			contactType: model.ContactDivebomb,
			wantScore:   100, // 50+30+10+15+9 = 114 clamped
			wantSev:     model.SeverityHeavy,
		},
		{
			name:      "loss of control with deceleration",
			trigger:   &model.IncidentTrigger{Data: model.TriggerData{Decel: &model.DecelData{Decel: 20}}},
			incType:   model.IncidentLossOfControl,
			wantScore: 50, // 40 + 10
			wantSev:   model.SeverityMedium,
		},
		{
			name:      "no context data",
			trigger:   &model.IncidentTrigger{},
			incType:   model.IncidentOffTrack,
			wantScore: 25,
			wantSev:   model.SeverityLight,
		},
	}
	s := NewScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sev, score := s.Score(tt.trigger, tt.incType, tt.contactType)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantSev, sev)
		})
	}
}

func TestScorer_ScoreAlwaysInRange(t *testing.T) {
	s := NewScorer()
	triggers := []*model.IncidentTrigger{
		{},
		{Data: model.TriggerData{
			Contact:  &model.ContactData{ClosingSpeed: 1e6},
			Spin:     &model.SpinData{RotationDeg: 1e6, Speed: 1e6},
			OffTrack: &model.OffTrackData{Speed: 1e6},
			Decel:    &model.DecelData{Decel: 1e6},
		}},
		{Data: model.TriggerData{
			Contact: &model.ContactData{ClosingSpeed: -100},
			Decel:   &model.DecelData{Decel: -50},
		}},
	}
	for _, trigger := range triggers {
		for _, incType := range []model.IncidentType{
			model.IncidentContact, model.IncidentOffTrack,
			model.IncidentSpin, model.IncidentLossOfControl,
		} {
			_, score := s.Score(trigger, incType, model.ContactDivebomb)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
		}
	}
}
