//nolint:thelper,funlen // ok for tests
package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stewardlog/incident-service-go/pkg/model"
)

func TestAnalyzer_Analyze(t *testing.T) {
	trigger := func(nearby []string, data *model.ContactData) *model.IncidentTrigger {
		return &model.IncidentTrigger{
			Kind:            model.TriggerContactProx,
			SessionID:       "S1",
			PrimaryDriverID: "D1",
			NearbyDriverIDs: nearby,
			Data:            model.TriggerData{Contact: data},
		}
	}
	tests := []struct {
		name    string
		trigger *model.IncidentTrigger
		want    model.ContactType
	}{
		{
			name:    "no contact data",
			trigger: trigger([]string{"D2"}, nil),
			want:    model.ContactOther,
		},
		{
			name: "no nearby drivers",
			trigger: trigger(nil,
				&model.ContactData{ClosingSpeed: 10, ApproachAngle: 5}),
			want: model.ContactOther,
		},
		{
			name: "late braking into corner",
			trigger: trigger([]string{"D2"},
				&model.ContactData{BrakingPointDelta: 15, CornerEntry: true}),
			want: model.ContactDivebomb,
		},
		{
			name: "corner entry with normal braking",
			trigger: trigger([]string{"D2"},
				&model.ContactData{
					BrakingPointDelta: 5, CornerEntry: true,
					ApproachAngle: 60,
				}),
			want: model.ContactSide,
		},
		{
			name: "steep angle",
			trigger: trigger([]string{"D2"},
				&model.ContactData{ApproachAngle: 45}),
			want: model.ContactSide,
		},
		{
			name: "negative angle counts by magnitude",
			trigger: trigger([]string{"D2"},
				&model.ContactData{ApproachAngle: -80}),
			want: model.ContactSide,
		},
		{
			name: "shallow angle with closing speed",
			trigger: trigger([]string{"D2"},
				&model.ContactData{ApproachAngle: 5, ClosingSpeed: 8}),
			want: model.ContactRearEnd,
		},
		{
			name: "shallow angle without closing speed",
			trigger: trigger([]string{"D2"},
				&model.ContactData{ApproachAngle: 5}),
			want: model.ContactOther,
		},
		{
			name: "mid angle",
			trigger: trigger([]string{"D2"},
				&model.ContactData{ApproachAngle: 30, ClosingSpeed: 8}),
			want: model.ContactOther,
		},
	}
	a := NewAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Analyze(tt.trigger))
		})
	}
}
