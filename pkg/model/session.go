package model

import "time"

// live telemetry state of a single driver within a session.
// Each telemetry frame replaces the whole snapshot (last-write-wins).
type DriverSnapshot struct {
	DriverID      string  `json:"driverId"`
	DriverName    string  `json:"driverName"`
	CarNumber     string  `json:"carNumber"`
	LapDistPct    float64 `json:"lapDistPct"`
	Position      int     `json:"position,omitempty"`
	LapNumber     int     `json:"lapNumber,omitempty"`
	Speed         float64 `json:"speed,omitempty"`
	LastLapTime   float64 `json:"lastLapTime,omitempty"`
	BestLapTime   float64 `json:"bestLapTime,omitempty"`
	GapToLeader   float64 `json:"gapToLeader,omitempty"`
	IncidentCount int     `json:"incidentCount,omitempty"`
}

// one currently active session as tracked by the registry
type SessionEntry struct {
	SessionID   string                     `json:"sessionId"`
	TrackName   string                     `json:"trackName"`
	TrackConfig string                     `json:"trackConfig,omitempty"`
	SessionType string                     `json:"sessionType"`
	Drivers     map[string]*DriverSnapshot `json:"drivers"`
	LastUpdate  time.Time                  `json:"lastUpdate"`
}

// metadata sent by the relay when a session starts (or changes)
type SessionMetadata struct {
	TrackName   string `json:"trackName"`
	TrackConfig string `json:"trackConfig,omitempty"`
	SessionType string `json:"sessionType"`
}

// read-only view used by ListActive
type SessionSummary struct {
	SessionID   string    `json:"sessionId"`
	TrackName   string    `json:"trackName"`
	SessionType string    `json:"sessionType"`
	DriverCount int       `json:"driverCount"`
	LastUpdate  time.Time `json:"lastUpdate"`
}
