//nolint:thelper,funlen // ok for tests
package responsibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stewardlog/incident-service-go/pkg/model"
)

func involved(ids ...string) []model.InvolvedDriver {
	ret := make([]model.InvolvedDriver, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, model.InvolvedDriver{
			DriverID: id, Role: model.RoleInvolved,
		})
	}
	return ret
}

func TestPredictor_Predict(t *testing.T) {
	tests := []struct {
		name        string
		trigger     *model.IncidentTrigger
		contactType model.ContactType
		drivers     []model.InvolvedDriver
		wantPrimary float64
	}{
		{
			name:        "generic contact",
			trigger:     &model.IncidentTrigger{},
			contactType: model.ContactOther,
			drivers:     involved("D1", "D2"),
			wantPrimary: 0.7,
		},
		{
			name:        "rear end puts fault on the car behind",
			trigger:     &model.IncidentTrigger{},
			contactType: model.ContactRearEnd,
			drivers:     involved("D1", "D2"),
			wantPrimary: 0.85,
		},
		{
			name:        "divebomb",
			trigger:     &model.IncidentTrigger{},
			contactType: model.ContactDivebomb,
			drivers:     involved("D1", "D2"),
			wantPrimary: 0.9,
		},
		{
			name:        "side contact is closer to a racing incident",
			trigger:     &model.IncidentTrigger{},
			contactType: model.ContactSide,
			drivers:     involved("D1", "D2"),
			wantPrimary: 0.55,
		},
		{
			name: "late braking and corner entry raise the fault",
			trigger: &model.IncidentTrigger{Data: model.TriggerData{
				Contact: &model.ContactData{
					BrakingPointDelta: 12, CornerEntry: true,
				},
			}},
			contactType: model.ContactOther,
			drivers:     involved("D1", "D2"),
			wantPrimary: 0.8,
		},
		{
			name: "probability never exceeds one",
			trigger: &model.IncidentTrigger{Data: model.TriggerData{
				Contact: &model.ContactData{
					BrakingPointDelta: 20, CornerEntry: true,
				},
			}},
			contactType: model.ContactDivebomb,
			drivers:     involved("D1", "D2"),
			wantPrimary: 1.0,
		},
	}
	p := NewPredictor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Predict(tt.trigger, model.IncidentContact,
				tt.contactType, tt.drivers)

			assert.Equal(t, "D1", got[0].DriverID, "input order must be kept")
			assert.InDelta(t, tt.wantPrimary, *got[0].FaultProbability, 1e-9)
			assert.Equal(t, model.RoleCause, got[0].Role)

			remainder := (1.0 - tt.wantPrimary) / float64(len(got)-1)
			sum := *got[0].FaultProbability
			for _, d := range got[1:] {
				assert.Equal(t, model.RoleVictim, d.Role)
				assert.InDelta(t, remainder, *d.FaultProbability, 1e-9)
				sum += *d.FaultProbability
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func TestPredictor_Predict_ThreeDrivers(t *testing.T) {
	p := NewPredictor()
	got := p.Predict(&model.IncidentTrigger{}, model.IncidentContact,
		model.ContactSide, involved("D1", "D2", "D3"))

	assert.InDelta(t, 0.55, *got[0].FaultProbability, 1e-9)
	assert.InDelta(t, 0.225, *got[1].FaultProbability, 1e-9)
	assert.InDelta(t, 0.225, *got[2].FaultProbability, 1e-9)
}

func TestPredictor_Predict_SingleDriverUntouched(t *testing.T) {
	p := NewPredictor()
	got := p.Predict(&model.IncidentTrigger{}, model.IncidentOffTrack,
		"", involved("D1"))

	assert.Len(t, got, 1)
	assert.Equal(t, model.RoleInvolved, got[0].Role)
	assert.Nil(t, got[0].FaultProbability)
}
