//nolint:thelper // ok for tests
package local

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardlog/incident-service-go/pkg/model"
	"github.com/stewardlog/incident-service-go/pkg/proxy"
	"github.com/stewardlog/incident-service-go/testsupport/basedata"
)

func receive(t *testing.T, ch <-chan proxy.RoomMessage) proxy.RoomMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return proxy.RoomMessage{}
	}
}

func TestLocalProxy_SessionActiveGoesToGlobalRoom(t *testing.T) {
	p := NewLocalProxy()
	defer p.Close()

	all, cancel := p.SubscribeAll()
	defer cancel()

	require.NoError(t, p.PublishSessionActive(&model.SessionSummary{SessionID: "S1"}))

	msg := receive(t, all)
	assert.Equal(t, proxy.EventSessionActive, msg.Event)
	assert.Equal(t, "S1", msg.Payload.(*model.SessionSummary).SessionID)
}

func TestLocalProxy_RoomScopedEvents(t *testing.T) {
	p := NewLocalProxy()
	defer p.Close()

	s1, cancel1 := p.Subscribe("S1")
	defer cancel1()
	s2, cancel2 := p.Subscribe("S2")
	defer cancel2()

	require.NoError(t, p.PublishTimingUpdate("S1", basedata.SampleDrivers()))

	msg := receive(t, s1)
	assert.Equal(t, proxy.EventTimingUpdate, msg.Event)

	// the other room stays silent
	select {
	case msg := <-s2:
		t.Fatalf("unexpected message in other room: %v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLocalProxy_IncidentEvents(t *testing.T) {
	p := NewLocalProxy()
	defer p.Close()

	ch, cancel := p.Subscribe("S1")
	defer cancel()

	incident := &model.IncidentEvent{SessionID: "S1"}
	require.NoError(t, p.PublishIncidentNew(incident))
	assert.Equal(t, proxy.EventIncidentNew, receive(t, ch).Event)

	require.NoError(t, p.PublishIncidentUpdated(incident))
	assert.Equal(t, proxy.EventIncidentUpdated, receive(t, ch).Event)
}

func TestLocalProxy_RaceEventPayload(t *testing.T) {
	p := NewLocalProxy()
	defer p.Close()

	ch, cancel := p.Subscribe("S1")
	defer cancel()

	require.NoError(t, p.PublishRaceEvent("S1", "yellow_flag",
		map[string]any{"sector": 2}))

	msg := receive(t, ch)
	assert.Equal(t, proxy.EventRace, msg.Event)
	payload := msg.Payload.(map[string]any)
	assert.Equal(t, "yellow_flag", payload["eventType"])
}

func TestLocalProxy_PublishAfterClose(t *testing.T) {
	p := NewLocalProxy()
	p.Close()

	// the serve loops are gone, publishes must fail instead of piling
	// up in the source buffers
	for i := 0; i < 2*roomBuffer; i++ {
		assert.ErrorIs(t,
			p.PublishIncidentNew(&model.IncidentEvent{SessionID: "S1"}),
			proxy.ErrProxyClosed)
	}
	assert.ErrorIs(t,
		p.PublishSessionActive(&model.SessionSummary{SessionID: "S1"}),
		proxy.ErrProxyClosed)
}

func TestLocalProxy_RoomMembership(t *testing.T) {
	p := NewLocalProxy()
	defer p.Close()

	require.NoError(t, p.JoinRoom("C1", "S1"))
	require.NoError(t, p.LeaveRoom("C1", "S1"))
	assert.ErrorIs(t, p.LeaveRoom("C1", "S1"), proxy.ErrRoomNotFound)
	assert.ErrorIs(t, p.LeaveRoom("unknown", "S1"), proxy.ErrRoomNotFound)
}
