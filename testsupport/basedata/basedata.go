package basedata

import (
	"time"

	"github.com/stewardlog/incident-service-go/pkg/model"
)

func TestTime() time.Time {
	t, _ := time.Parse(time.RFC3339, "2025-04-28T11:10:12Z")
	return t
}

func SampleDrivers() []*model.DriverSnapshot {
	return []*model.DriverSnapshot{
		{
			DriverID:   "D1",
			DriverName: "Alice", CarNumber: "10",
			LapDistPct: 0.42, Position: 2, LapNumber: 5, Speed: 61.3,
		},
		{
			DriverID:   "D2",
			DriverName: "Bob", CarNumber: "20",
			LapDistPct: 0.44, Position: 1, LapNumber: 5, Speed: 62.8,
		},
	}
}

func SampleMetadata() model.SessionMetadata {
	return model.SessionMetadata{
		TrackName:   "testtrack",
		TrackConfig: "testconfig",
		SessionType: "race",
	}
}

func SampleContactTrigger() *model.IncidentTrigger {
	return &model.IncidentTrigger{
		Kind:            model.TriggerContactProx,
		SessionID:       "S1",
		PrimaryDriverID: "D1",
		NearbyDriverIDs: []string{"D2"},
		SessionTimeMs:   1_200_000,
		Data: model.TriggerData{
			Contact: &model.ContactData{
				ClosingSpeed:      12.5,
				ApproachAngle:     5,
				BrakingPointDelta: 15,
				CornerEntry:       true,
			},
			LapNumber:     5,
			TrackPosition: 0.42,
		},
	}
}

func SampleOffTrackTrigger() *model.IncidentTrigger {
	return &model.IncidentTrigger{
		Kind:            model.TriggerOffTrack,
		SessionID:       "S1",
		PrimaryDriverID: "D1",
		SessionTimeMs:   900_000,
		Data: model.TriggerData{
			OffTrack:      &model.OffTrackData{Speed: 45, SurfaceType: "gravel"},
			LapNumber:     4,
			TrackPosition: 0.77,
		},
	}
}
