package model

// TriggerKind identifies the upstream detector that raised a trigger.
type TriggerKind string

const (
	TriggerOffTrack       TriggerKind = "off_track_detected"
	TriggerSpin           TriggerKind = "spin_detected"
	TriggerSuddenDecel    TriggerKind = "sudden_deceleration"
	TriggerIncidentCount  TriggerKind = "incident_count_increase"
	TriggerContactProx    TriggerKind = "contact_proximity"
	TriggerErraticTraject TriggerKind = "erratic_trajectory"
)

// contextual data for contact style triggers
type ContactData struct {
	ClosingSpeed      float64 `json:"closingSpeed,omitempty"`      // m/s
	ApproachAngle     float64 `json:"approachAngle,omitempty"`     // degrees
	BrakingPointDelta float64 `json:"brakingPointDelta,omitempty"` // m, positive = braked later than usual
	CornerEntry       bool    `json:"cornerEntry,omitempty"`
}

type OffTrackData struct {
	Speed       float64 `json:"speed,omitempty"` // m/s when leaving the track
	SurfaceType string  `json:"surfaceType,omitempty"`
}

type SpinData struct {
	RotationDeg float64 `json:"rotationDeg,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
}

type DecelData struct {
	Decel float64 `json:"decel,omitempty"` // m/s^2, positive magnitude
	Speed float64 `json:"speed,omitempty"`
}

// TriggerData carries the per-kind context of a trigger. Only the
// sub-struct matching the trigger kind is expected to be populated.
type TriggerData struct {
	Contact  *ContactData  `json:"contact,omitempty"`
	OffTrack *OffTrackData `json:"offTrack,omitempty"`
	Spin     *SpinData     `json:"spin,omitempty"`
	Decel    *DecelData    `json:"decel,omitempty"`

	LapNumber          int     `json:"lapNumber,omitempty"`
	TrackPosition      float64 `json:"trackPosition,omitempty"`
	IncidentCountDelta int     `json:"incidentCountDelta,omitempty"`
}

// IncidentTrigger is the raw input for the classification pipeline.
// Instances are immutable once created.
type IncidentTrigger struct {
	Kind            TriggerKind `json:"type"`
	SessionID       string      `json:"sessionId"`
	PrimaryDriverID string      `json:"primaryDriverId"`
	NearbyDriverIDs []string    `json:"nearbyDriverIds,omitempty"`
	SessionTimeMs   int64       `json:"sessionTimeMs"`
	Data            TriggerData `json:"triggerData"`
}
