package proxy

import (
	"errors"
	"fmt"

	"github.com/stewardlog/incident-service-go/pkg/model"
)

// outbound event names as seen by dashboard clients
const (
	EventSessionActive   = "session:active"
	EventTimingUpdate    = "timing:update"
	EventIncidentNew     = "incident:new"
	EventIncidentUpdated = "incident:updated"
	EventPenaltyProposed = "penalty:proposed"
	EventPenaltyApproved = "penalty:approved"
	EventSessionState    = "session:state"
	EventRace            = "race:event"
)

// RoomMessage is one broadcast delivered to the members of a session room.
type RoomMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type (
	// PublishProxy distributes typed events to subscribers. session:active
	// goes to all clients, everything else is scoped to the room of the
	// session it belongs to.
	PublishProxy interface {
		PublishSessionActive(summary *model.SessionSummary) error
		PublishTimingUpdate(sessionID string, entries []*model.DriverSnapshot) error
		PublishIncidentNew(incident *model.IncidentEvent) error
		PublishIncidentUpdated(incident *model.IncidentEvent) error
		PublishPenaltyProposed(sessionID string, payload any) error
		PublishPenaltyApproved(sessionID string, payload any) error
		PublishSessionState(sessionID string, state any) error
		PublishRaceEvent(sessionID, eventType string, data map[string]any) error

		// room membership, used by dashboard clients and by relay
		// connections that auto-join their own session room
		JoinRoom(connID, sessionID string) error
		LeaveRoom(connID, sessionID string) error

		// performs cleanup
		Close()
	}

	EmptyProxy struct{}
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrProxyClosed  = errors.New("proxy closed")
)

func (e EmptyProxy) PublishSessionActive(summary *model.SessionSummary) error {
	return fmt.Errorf("PublishSessionActive not implemented")
}

//nolint:lll // readablity
func (e EmptyProxy) PublishTimingUpdate(sessionID string, entries []*model.DriverSnapshot) error {
	return fmt.Errorf("PublishTimingUpdate not implemented")
}

func (e EmptyProxy) PublishIncidentNew(incident *model.IncidentEvent) error {
	return fmt.Errorf("PublishIncidentNew not implemented")
}

func (e EmptyProxy) PublishIncidentUpdated(incident *model.IncidentEvent) error {
	return fmt.Errorf("PublishIncidentUpdated not implemented")
}

func (e EmptyProxy) PublishPenaltyProposed(sessionID string, payload any) error {
	return fmt.Errorf("PublishPenaltyProposed not implemented")
}

func (e EmptyProxy) PublishPenaltyApproved(sessionID string, payload any) error {
	return fmt.Errorf("PublishPenaltyApproved not implemented")
}

func (e EmptyProxy) PublishSessionState(sessionID string, state any) error {
	return fmt.Errorf("PublishSessionState not implemented")
}

//nolint:lll // readablity
func (e EmptyProxy) PublishRaceEvent(sessionID, eventType string, data map[string]any) error {
	return fmt.Errorf("PublishRaceEvent not implemented")
}

func (e EmptyProxy) JoinRoom(connID, sessionID string) error {
	return fmt.Errorf("JoinRoom not implemented")
}

func (e EmptyProxy) LeaveRoom(connID, sessionID string) error {
	return fmt.Errorf("LeaveRoom not implemented")
}

func (e EmptyProxy) Close() {}
