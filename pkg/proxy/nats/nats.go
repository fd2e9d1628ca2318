package nats

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/ohler55/ojg/oj"

	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/pkg/model"
	"github.com/stewardlog/incident-service-go/pkg/proxy"
)

// subject layout: isvc.sessions.active is global, everything else lives
// below isvc.session.<id>.
const (
	subjectSessionsActive = "isvc.sessions.active"
	subjectSessionPrefix  = "isvc.session.%s.%s"

	suffixTiming          = "timing"
	suffixIncidentNew     = "incident.new"
	suffixIncidentUpdated = "incident.updated"
	suffixPenaltyProposed = "penalty.proposed"
	suffixPenaltyApproved = "penalty.approved"
	suffixState           = "state"
	suffixRace            = "race"
)

// PublishProxy implementation that distributes room broadcasts via NATS
// subjects. Dashboard clients and other cluster members subscribe to the
// subjects of the rooms they joined.
type (
	NatsProxy struct {
		conn    *nats.Conn
		mutex   sync.Mutex
		members map[string]map[string]struct{} // connID -> sessionIDs
		l       *log.Logger
	}
	Option func(*NatsProxy)
)

func WithLogger(arg *log.Logger) Option {
	return func(n *NatsProxy) {
		n.l = arg
	}
}

func NewNatsProxy(conn *nats.Conn, opts ...Option) (*NatsProxy, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats proxy requires an established connection")
	}
	ret := &NatsProxy{
		conn:    conn,
		members: make(map[string]map[string]struct{}),
		l:       log.Default().Named("proxy.nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

func (n *NatsProxy) publish(subject string, payload any) error {
	data, err := oj.Marshal(payload)
	if err != nil {
		return err
	}
	return n.conn.Publish(subject, data)
}

func roomSubject(sessionID, suffix string) string {
	return fmt.Sprintf(subjectSessionPrefix, sessionID, suffix)
}

func (n *NatsProxy) PublishSessionActive(summary *model.SessionSummary) error {
	return n.publish(subjectSessionsActive, summary)
}

//nolint:whitespace // can't make both editor and linter happy
func (n *NatsProxy) PublishTimingUpdate(
	sessionID string, entries []*model.DriverSnapshot,
) error {
	return n.publish(roomSubject(sessionID, suffixTiming), entries)
}

func (n *NatsProxy) PublishIncidentNew(incident *model.IncidentEvent) error {
	return n.publish(roomSubject(incident.SessionID, suffixIncidentNew), incident)
}

func (n *NatsProxy) PublishIncidentUpdated(incident *model.IncidentEvent) error {
	return n.publish(roomSubject(incident.SessionID, suffixIncidentUpdated), incident)
}

func (n *NatsProxy) PublishPenaltyProposed(sessionID string, payload any) error {
	return n.publish(roomSubject(sessionID, suffixPenaltyProposed), payload)
}

func (n *NatsProxy) PublishPenaltyApproved(sessionID string, payload any) error {
	return n.publish(roomSubject(sessionID, suffixPenaltyApproved), payload)
}

func (n *NatsProxy) PublishSessionState(sessionID string, state any) error {
	return n.publish(roomSubject(sessionID, suffixState), state)
}

//nolint:whitespace // can't make both editor and linter happy
func (n *NatsProxy) PublishRaceEvent(
	sessionID, eventType string, data map[string]any,
) error {
	return n.publish(roomSubject(sessionID, suffixRace),
		map[string]any{"eventType": eventType, "data": data})
}

// JoinRoom only tracks membership. Subscriptions to the room subjects are
// managed by the members themselves.
func (n *NatsProxy) JoinRoom(connID, sessionID string) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if _, ok := n.members[connID]; !ok {
		n.members[connID] = make(map[string]struct{})
	}
	n.members[connID][sessionID] = struct{}{}
	n.l.Debug("joined room",
		log.String("connId", connID), log.String("sessionId", sessionID))
	return nil
}

func (n *NatsProxy) LeaveRoom(connID, sessionID string) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	rooms, ok := n.members[connID]
	if !ok {
		return proxy.ErrRoomNotFound
	}
	if _, ok := rooms[sessionID]; !ok {
		return proxy.ErrRoomNotFound
	}
	delete(rooms, sessionID)
	if len(rooms) == 0 {
		delete(n.members, connID)
	}
	return nil
}

func (n *NatsProxy) Close() {
	n.conn.Close()
}
