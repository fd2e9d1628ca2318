//nolint:thelper,funlen // ok for tests
package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardlog/incident-service-go/pkg/model"
	"github.com/stewardlog/incident-service-go/testsupport/basedata"
)

type fakeStore struct {
	mutex   sync.Mutex
	created []*model.IncidentEvent
	err     error
	block   chan struct{} // when set, Create waits until closed
	started chan struct{} // signaled once per Create call
}

func (f *fakeStore) Create(_ context.Context, incident *model.IncidentEvent) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, incident)
	return nil
}

func (f *fakeStore) all() []*model.IncidentEvent {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]*model.IncidentEvent{}, f.created...)
}

type recordingProxy struct {
	mutex     sync.Mutex
	incidents []*model.IncidentEvent
}

func (r *recordingProxy) PublishSessionActive(*model.SessionSummary) error { return nil }

func (r *recordingProxy) PublishTimingUpdate(string, []*model.DriverSnapshot) error {
	return nil
}

func (r *recordingProxy) PublishIncidentNew(incident *model.IncidentEvent) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.incidents = append(r.incidents, incident)
	return nil
}

func (r *recordingProxy) PublishIncidentUpdated(*model.IncidentEvent) error { return nil }
func (r *recordingProxy) PublishPenaltyProposed(string, any) error          { return nil }
func (r *recordingProxy) PublishPenaltyApproved(string, any) error          { return nil }
func (r *recordingProxy) PublishSessionState(string, any) error             { return nil }

func (r *recordingProxy) PublishRaceEvent(string, string, map[string]any) error {
	return nil
}

func (r *recordingProxy) JoinRoom(string, string) error  { return nil }
func (r *recordingProxy) LeaveRoom(string, string) error { return nil }
func (r *recordingProxy) Close()                         {}

func (r *recordingProxy) published() []*model.IncidentEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]*model.IncidentEvent{}, r.incidents...)
}

func TestMapTriggerKind(t *testing.T) {
	tests := []struct {
		name   string
		kind   model.TriggerKind
		nearby int
		want   model.IncidentType
	}{
		{name: "off track", kind: model.TriggerOffTrack, want: model.IncidentOffTrack},
		{name: "spin", kind: model.TriggerSpin, want: model.IncidentSpin},
		{name: "contact proximity", kind: model.TriggerContactProx, nearby: 1, want: model.IncidentContact},
		{name: "erratic trajectory", kind: model.TriggerErraticTraject, want: model.IncidentLossOfControl},
		{name: "incident count alone", kind: model.TriggerIncidentCount, want: model.IncidentOffTrack},
		{name: "incident count near others", kind: model.TriggerIncidentCount, nearby: 2, want: model.IncidentContact},
		{name: "sudden decel alone", kind: model.TriggerSuddenDecel, want: model.IncidentLossOfControl},
		{name: "sudden decel near others", kind: model.TriggerSuddenDecel, nearby: 1, want: model.IncidentContact},
		{name: "unknown kind", kind: "something_new", want: model.IncidentContact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapTriggerKind(tt.kind, tt.nearby))
		})
	}
}

func TestPipeline_Classify_Contact(t *testing.T) {
	now := basedata.TestTime()
	id := uuid.Must(uuid.NewV4())
	p := NewPipeline(
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() uuid.UUID { return id }),
	)

	incident := p.Classify(basedata.SampleContactTrigger())

	assert.Equal(t, id, incident.ID)
	assert.Equal(t, "S1", incident.SessionID)
	assert.Equal(t, model.IncidentContact, incident.Type)
	assert.Equal(t, model.ContactDivebomb, incident.ContactType)
	// 50 base + 18.75 closing speed + 10 divebomb + 3 nearby
	assert.Equal(t, 81, incident.SeverityScore)
	assert.Equal(t, model.SeverityHeavy, incident.Severity)
	assert.Equal(t, 5, incident.LapNumber)
	assert.Equal(t, int64(1_200_000), incident.SessionTimeMs)
	assert.Equal(t, model.StatusPending, incident.Status)
	assert.Equal(t, now, incident.CreatedAt)
	assert.Equal(t, now, incident.UpdatedAt)

	require.Len(t, incident.InvolvedDrivers, 2)
	primary := incident.InvolvedDrivers[0]
	assert.Equal(t, "D1", primary.DriverID)
	assert.Equal(t, model.RoleCause, primary.Role)
	// 0.9 divebomb + 0.05 late braking + 0.05 corner entry, clamped
	assert.InDelta(t, 1.0, *primary.FaultProbability, 1e-9)
	other := incident.InvolvedDrivers[1]
	assert.Equal(t, "D2", other.DriverID)
	assert.Equal(t, model.RoleVictim, other.Role)
	assert.InDelta(t, 0.0, *other.FaultProbability, 1e-9)
}

func TestPipeline_Classify_IncidentCountNearOthers(t *testing.T) {
	p := NewPipeline()

	incident := p.Classify(&model.IncidentTrigger{
		Kind:            model.TriggerIncidentCount,
		SessionID:       "S1",
		PrimaryDriverID: "D1",
		NearbyDriverIDs: []string{"D2"},
		Data:            model.TriggerData{IncidentCountDelta: 2},
	})

	assert.Equal(t, model.IncidentContact, incident.Type)
	// no usable contact context: analyzer falls back to a neutral tag
	assert.Equal(t, model.ContactOther, incident.ContactType)
	require.Len(t, incident.InvolvedDrivers, 2)
	assert.Equal(t, "D1", incident.InvolvedDrivers[0].DriverID)
	assert.Equal(t, "D2", incident.InvolvedDrivers[1].DriverID)
	for _, d := range incident.InvolvedDrivers {
		assert.NotEmpty(t, d.Role)
		assert.NotNil(t, d.FaultProbability)
	}
	assert.Equal(t, model.StatusPending, incident.Status)
}

func TestPipeline_Classify_SingleDriver(t *testing.T) {
	p := NewPipeline()

	incident := p.Classify(basedata.SampleOffTrackTrigger())

	assert.Equal(t, model.IncidentOffTrack, incident.Type)
	assert.Empty(t, incident.ContactType, "contactType only for contact incidents")
	// 25 base + 13.5 speed
	assert.Equal(t, 38, incident.SeverityScore)
	assert.Equal(t, model.SeverityMedium, incident.Severity)

	require.Len(t, incident.InvolvedDrivers, 1)
	assert.Equal(t, model.RoleInvolved, incident.InvolvedDrivers[0].Role)
	assert.Nil(t, incident.InvolvedDrivers[0].FaultProbability)
}

func TestPipeline_ProcessTrigger_PersistThenEmit(t *testing.T) {
	store := &fakeStore{}
	pub := &recordingProxy{}
	p := NewPipeline(WithStore(store), WithProxy(pub))

	require.NoError(t, p.ProcessTrigger(basedata.SampleContactTrigger()))
	p.Close()

	require.Len(t, store.all(), 1)
	require.Len(t, pub.published(), 1)
	assert.Equal(t, store.all()[0].ID, pub.published()[0].ID)
}

func TestPipeline_ProcessTrigger_NoEmitOnPersistFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	pub := &recordingProxy{}
	p := NewPipeline(WithStore(store), WithProxy(pub))

	require.NoError(t, p.ProcessTrigger(basedata.SampleContactTrigger()))
	p.Close()

	assert.Empty(t, pub.published(), "persist failure must suppress the emit")
}

func TestPipeline_ProcessTrigger_QueueFull(t *testing.T) {
	store := &fakeStore{
		block:   make(chan struct{}),
		started: make(chan struct{}, 8),
	}
	p := NewPipeline(WithStore(store), WithQueueSize(1))

	// first trigger occupies the worker inside store.Create
	require.NoError(t, p.ProcessTrigger(basedata.SampleContactTrigger()))
	<-store.started
	// second trigger fills the queue, third has no room
	require.NoError(t, p.ProcessTrigger(basedata.SampleContactTrigger()))
	err := p.ProcessTrigger(basedata.SampleContactTrigger())
	assert.ErrorIs(t, err, ErrQueueFull)

	close(store.block)
	<-store.started
	p.Close()
	assert.Len(t, store.all(), 2)
}

func TestPipeline_ProcessTrigger_KeepsSessionOrder(t *testing.T) {
	store := &fakeStore{}
	p := NewPipeline(WithStore(store), WithQueueSize(64))

	for i := 0; i < 20; i++ {
		trigger := basedata.SampleOffTrackTrigger()
		trigger.SessionTimeMs = int64(i)
		require.NoError(t, p.ProcessTrigger(trigger))
	}
	p.Close()

	created := store.all()
	require.Len(t, created, 20)
	for i, incident := range created {
		assert.Equal(t, int64(i), incident.SessionTimeMs)
	}
}

func TestPipeline_ProcessTrigger_AfterClose(t *testing.T) {
	p := NewPipeline()
	p.Close()
	err := p.ProcessTrigger(basedata.SampleContactTrigger())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPipeline_CloseDuringSubmit(t *testing.T) {
	store := &fakeStore{}
	p := NewPipeline(WithStore(store), WithQueueSize(4))

	// submissions racing Close must end in ErrClosed, never in a send
	// on a closed queue
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			for j := 0; j < 500; j++ {
				trigger := basedata.SampleOffTrackTrigger()
				trigger.SessionID = fmt.Sprintf("S%d", n)
				if err := p.ProcessTrigger(trigger); errors.Is(err, ErrClosed) {
					return
				}
			}
		}(i)
	}
	close(start)
	p.Close()
	wg.Wait()
	assert.ErrorIs(t, p.ProcessTrigger(basedata.SampleOffTrackTrigger()), ErrClosed)
}

func TestPipeline_IdleWorkerRetires(t *testing.T) {
	store := &fakeStore{}
	p := NewPipeline(WithStore(store), WithIdleTimeout(20*time.Millisecond))

	require.NoError(t, p.ProcessTrigger(basedata.SampleOffTrackTrigger()))
	assert.Eventually(t, func() bool {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		return len(p.queues) == 0
	}, time.Second, 5*time.Millisecond, "idle worker should drop its queue")

	// the session stays usable, a later trigger gets a fresh worker
	require.NoError(t, p.ProcessTrigger(basedata.SampleOffTrackTrigger()))
	p.Close()
	assert.Len(t, store.all(), 2)
}
