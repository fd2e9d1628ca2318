package ingest

import (
	"errors"
	"fmt"

	"github.com/ohler55/ojg/oj"

	"github.com/stewardlog/incident-service-go/pkg/model"
)

// FrameType identifies an inbound relay event.
type FrameType string

const (
	FrameSessionMetadata FrameType = "session_metadata"
	FrameTelemetry       FrameType = "telemetry"
	FrameIncident        FrameType = "incident"
	FrameRaceEvent       FrameType = "race_event"
	FrameTrigger         FrameType = "trigger"
)

var (
	ErrMissingSessionID = errors.New("frame without sessionId")
	ErrUnknownFrameType = errors.New("unknown frame type")
)

// IncidentNotice is a relay-reported incident that is broadcast as-is
// (after defaulting) without going through the classification pipeline.
type IncidentNotice struct {
	Type          string  `json:"type"`
	DriverID      string  `json:"driverId"`
	DriverName    string  `json:"driverName,omitempty"`
	CarNumber     string  `json:"carNumber,omitempty"`
	LapNumber     int     `json:"lapNumber,omitempty"`
	TrackPosition float64 `json:"trackPosition,omitempty"`
	Severity      string  `json:"severity,omitempty"`
	IncidentCount int     `json:"incidentCount,omitempty"`
}

// EventFrame is the tagged wire format of all inbound relay events.
// Only the fields matching Type are expected to be populated.
type EventFrame struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"sessionId"`
	ConnID    string    `json:"connId,omitempty"`

	// session_metadata
	TrackName   string `json:"trackName,omitempty"`
	TrackConfig string `json:"trackConfig,omitempty"`
	SessionType string `json:"sessionType,omitempty"`

	// telemetry
	SessionTimeMs int64                   `json:"sessionTimeMs,omitempty"`
	Drivers       []*model.DriverSnapshot `json:"drivers,omitempty"`

	// incident
	Incident *IncidentNotice `json:"incident,omitempty"`

	// race_event
	EventType string         `json:"eventType,omitempty"`
	Data      map[string]any `json:"data,omitempty"`

	// trigger
	Trigger *model.IncidentTrigger `json:"trigger,omitempty"`
}

// AckResponse confirms a producer-originated event.
type AckResponse struct {
	OriginalType string `json:"originalType"`
	Success      bool   `json:"success"`
}

// DecodeFrame parses and shape-validates an inbound frame.
func DecodeFrame(raw []byte) (*EventFrame, error) {
	var frame EventFrame
	if err := oj.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("could not decode frame: %w", err)
	}
	switch frame.Type {
	case FrameSessionMetadata, FrameTelemetry, FrameIncident,
		FrameRaceEvent, FrameTrigger:
		// known
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, frame.Type)
	}
	if frame.SessionID == "" {
		// triggers carry their own session reference
		if frame.Type == FrameTrigger && frame.Trigger != nil &&
			frame.Trigger.SessionID != "" {
			frame.SessionID = frame.Trigger.SessionID
		} else {
			return nil, ErrMissingSessionID
		}
	}
	return &frame, nil
}

func EncodeAck(ack *AckResponse) []byte {
	data, _ := oj.Marshal(ack)
	return data
}
