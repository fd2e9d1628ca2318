package local

import (
	"sync"

	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/pkg/model"
	"github.com/stewardlog/incident-service-go/pkg/proxy"
	"github.com/stewardlog/incident-service-go/pkg/utils/broadcast"
)

const roomBuffer = 16

// PublishProxy implementation for single instance deployments. Each
// session room is backed by a BroadcastServer; in-process consumers
// attach via Subscribe.
type (
	LocalProxy struct {
		mutex   sync.Mutex
		rooms   map[string]*room
		global  *room
		members map[string]map[string]struct{} // connID -> sessionIDs
		l       *log.Logger
		closed  bool
	}
	Option func(*LocalProxy)

	room struct {
		source chan proxy.RoomMessage
		bcst   broadcast.BroadcastServer[proxy.RoomMessage]
	}
)

func WithLogger(arg *log.Logger) Option {
	return func(l *LocalProxy) {
		l.l = arg
	}
}

func NewLocalProxy(opts ...Option) *LocalProxy {
	ret := &LocalProxy{
		rooms:   make(map[string]*room),
		members: make(map[string]map[string]struct{}),
		l:       log.Default().Named("proxy.local"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.global = newRoom("_all")
	return ret
}

func newRoom(name string) *room {
	source := make(chan proxy.RoomMessage, roomBuffer)
	return &room{
		source: source,
		bcst:   broadcast.NewBroadcastServer("session:"+name, "local", source),
	}
}

func (l *LocalProxy) room(sessionID string) *room {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.roomLocked(sessionID)
}

func (l *LocalProxy) roomLocked(sessionID string) *room {
	r, ok := l.rooms[sessionID]
	if !ok {
		r = newRoom(sessionID)
		l.rooms[sessionID] = r
	}
	return r
}

// publish delivers one message to a session room. After Close the serve
// loops no longer drain the source channels, so a send would eventually
// block forever; the closed check and the send share the critical section
// to rule that out.
func (l *LocalProxy) publish(sessionID string, msg proxy.RoomMessage) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return proxy.ErrProxyClosed
	}
	l.roomLocked(sessionID).source <- msg
	return nil
}

func (l *LocalProxy) PublishSessionActive(summary *model.SessionSummary) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return proxy.ErrProxyClosed
	}
	l.global.source <- proxy.RoomMessage{
		Event:   proxy.EventSessionActive,
		Payload: summary,
	}
	return nil
}

//nolint:whitespace // can't make both editor and linter happy
func (l *LocalProxy) PublishTimingUpdate(
	sessionID string, entries []*model.DriverSnapshot,
) error {
	return l.publish(sessionID, proxy.RoomMessage{
		Event:   proxy.EventTimingUpdate,
		Payload: entries,
	})
}

func (l *LocalProxy) PublishIncidentNew(incident *model.IncidentEvent) error {
	return l.publish(incident.SessionID, proxy.RoomMessage{
		Event:   proxy.EventIncidentNew,
		Payload: incident,
	})
}

func (l *LocalProxy) PublishIncidentUpdated(incident *model.IncidentEvent) error {
	return l.publish(incident.SessionID, proxy.RoomMessage{
		Event:   proxy.EventIncidentUpdated,
		Payload: incident,
	})
}

func (l *LocalProxy) PublishPenaltyProposed(sessionID string, payload any) error {
	return l.publish(sessionID, proxy.RoomMessage{
		Event:   proxy.EventPenaltyProposed,
		Payload: payload,
	})
}

func (l *LocalProxy) PublishPenaltyApproved(sessionID string, payload any) error {
	return l.publish(sessionID, proxy.RoomMessage{
		Event:   proxy.EventPenaltyApproved,
		Payload: payload,
	})
}

func (l *LocalProxy) PublishSessionState(sessionID string, state any) error {
	return l.publish(sessionID, proxy.RoomMessage{
		Event:   proxy.EventSessionState,
		Payload: state,
	})
}

//nolint:whitespace // can't make both editor and linter happy
func (l *LocalProxy) PublishRaceEvent(
	sessionID, eventType string, data map[string]any,
) error {
	return l.publish(sessionID, proxy.RoomMessage{
		Event:   proxy.EventRace,
		Payload: map[string]any{"eventType": eventType, "data": data},
	})
}

func (l *LocalProxy) JoinRoom(connID, sessionID string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if _, ok := l.members[connID]; !ok {
		l.members[connID] = make(map[string]struct{})
	}
	l.members[connID][sessionID] = struct{}{}
	l.l.Debug("joined room",
		log.String("connId", connID), log.String("sessionId", sessionID))
	return nil
}

func (l *LocalProxy) LeaveRoom(connID, sessionID string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	rooms, ok := l.members[connID]
	if !ok {
		return proxy.ErrRoomNotFound
	}
	if _, ok := rooms[sessionID]; !ok {
		return proxy.ErrRoomNotFound
	}
	delete(rooms, sessionID)
	if len(rooms) == 0 {
		delete(l.members, connID)
	}
	return nil
}

// Subscribe attaches an in-process listener to a session room.
//
//nolint:whitespace // can't make both editor and linter happy
func (l *LocalProxy) Subscribe(sessionID string) (
	<-chan proxy.RoomMessage, func(),
) {
	r := l.room(sessionID)
	ch := r.bcst.Subscribe()
	return ch, func() { r.bcst.CancelSubscription(ch) }
}

// SubscribeAll attaches an in-process listener to the global broadcasts.
//
//nolint:whitespace // can't make both editor and linter happy
func (l *LocalProxy) SubscribeAll() (
	<-chan proxy.RoomMessage, func(),
) {
	ch := l.global.bcst.Subscribe()
	return ch, func() { l.global.bcst.CancelSubscription(ch) }
}

func (l *LocalProxy) Close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for _, r := range l.rooms {
		r.bcst.Close()
	}
	l.global.bcst.Close()
}
