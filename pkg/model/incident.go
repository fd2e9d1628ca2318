package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

type IncidentType string

const (
	IncidentContact       IncidentType = "contact"
	IncidentOffTrack      IncidentType = "off_track"
	IncidentSpin          IncidentType = "spin"
	IncidentLossOfControl IncidentType = "loss_of_control"
)

// ContactType is only set when the incident type is IncidentContact.
type ContactType string

const (
	ContactRearEnd  ContactType = "rear_end"
	ContactSide     ContactType = "side"
	ContactDivebomb ContactType = "divebomb"
	ContactOther    ContactType = "other"
)

type Severity string

const (
	SeverityLight  Severity = "light"
	SeverityMedium Severity = "medium"
	SeverityHeavy  Severity = "heavy"
)

type DriverRole string

const (
	RoleCause    DriverRole = "cause"
	RoleVictim   DriverRole = "victim"
	RoleInvolved DriverRole = "involved"
)

// IncidentStatus is written once as StatusPending by the pipeline.
// All further transitions belong to the stewarding workflow.
type IncidentStatus string

const (
	StatusPending     IncidentStatus = "pending"
	StatusUnderReview IncidentStatus = "under_review"
	StatusResolved    IncidentStatus = "resolved"
	StatusDismissed   IncidentStatus = "dismissed"
)

type InvolvedDriver struct {
	DriverID   string     `json:"driverId"`
	DriverName string     `json:"driverName,omitempty"`
	CarNumber  string     `json:"carNumber,omitempty"`
	Role       DriverRole `json:"role"`
	// only populated when more than one driver is involved
	FaultProbability *float64 `json:"faultProbability,omitempty"`
}

// IncidentEvent is the durable output of the classification pipeline.
type IncidentEvent struct {
	ID              uuid.UUID        `json:"id"`
	SessionID       string           `json:"sessionId"`
	Type            IncidentType     `json:"type"`
	ContactType     ContactType      `json:"contactType,omitempty"`
	Severity        Severity         `json:"severity"`
	SeverityScore   int              `json:"severityScore"`
	LapNumber       int              `json:"lapNumber"`
	SessionTimeMs   int64            `json:"sessionTimeMs"`
	TrackPosition   float64          `json:"trackPosition"`
	InvolvedDrivers []InvolvedDriver `json:"involvedDrivers"`
	Status          IncidentStatus   `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}
