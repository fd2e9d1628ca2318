package processing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/pkg/model"
	"github.com/stewardlog/incident-service-go/pkg/processing/contact"
	"github.com/stewardlog/incident-service-go/pkg/processing/responsibility"
	"github.com/stewardlog/incident-service-go/pkg/processing/severity"
	"github.com/stewardlog/incident-service-go/pkg/proxy"
)

var (
	ErrQueueFull = errors.New("trigger queue full")
	ErrClosed    = errors.New("pipeline closed")
)

const (
	DefaultQueueSize = 32
	// idle workers retire after this much time without a trigger so
	// that session churn does not accumulate goroutines
	DefaultIdleTimeout = 2 * time.Minute
)

// IncidentStore is the persistence collaborator of the pipeline. Creating
// the record is the commit point of a classification.
type IncidentStore interface {
	Create(ctx context.Context, incident *model.IncidentEvent) error
}

// Pipeline turns raw triggers into classified, persisted incidents.
// Triggers of the same session are processed in arrival order on a
// bounded per-session queue; sessions are independent of each other.
type Pipeline struct {
	analyzer    contact.Analyzer
	scorer      severity.Scorer
	predictor   responsibility.Predictor
	store       IncidentStore
	pub         proxy.PublishProxy
	queueSize   int
	idleTimeout time.Duration
	now         func() time.Time
	newID       func() uuid.UUID
	l           *log.Logger

	mutex  sync.Mutex
	queues map[string]chan *model.IncidentTrigger
	wg     sync.WaitGroup
	closed bool

	classifiedCounter metric.Int64Counter
	persistErrCounter metric.Int64Counter
}

type Option func(*Pipeline)

func WithContactAnalyzer(arg contact.Analyzer) Option {
	return func(p *Pipeline) {
		p.analyzer = arg
	}
}

func WithSeverityScorer(arg severity.Scorer) Option {
	return func(p *Pipeline) {
		p.scorer = arg
	}
}

func WithResponsibilityPredictor(arg responsibility.Predictor) Option {
	return func(p *Pipeline) {
		p.predictor = arg
	}
}

func WithStore(arg IncidentStore) Option {
	return func(p *Pipeline) {
		p.store = arg
	}
}

func WithProxy(arg proxy.PublishProxy) Option {
	return func(p *Pipeline) {
		p.pub = arg
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		p.queueSize = n
	}
}

// WithIdleTimeout controls how long a per-session worker sticks around
// without triggers before it retires.
func WithIdleTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.idleTimeout = d
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(p *Pipeline) {
		p.l = arg
	}
}

// WithClock replaces the time source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithIDGenerator replaces the incident id source (used in tests)
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(p *Pipeline) {
		p.newID = gen
	}
}

func NewPipeline(opts ...Option) *Pipeline {
	ret := &Pipeline{
		analyzer:    contact.NewAnalyzer(),
		scorer:      severity.NewScorer(),
		predictor:   responsibility.NewPredictor(),
		queueSize:   DefaultQueueSize,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		newID:       func() uuid.UUID { return uuid.Must(uuid.NewV4()) },
		l:           log.Default().Named("pipeline"),
		queues:      make(map[string]chan *model.IncidentTrigger),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.setupMetrics()
	return ret
}

func (p *Pipeline) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("isvc.pipeline")
	p.classifiedCounter, _ = meter.Int64Counter("isvc.pipeline.classified",
		metric.WithDescription("Number of classified incidents"),
		metric.WithUnit("{count}"))
	p.persistErrCounter, _ = meter.Int64Counter("isvc.pipeline.persist_errors",
		metric.WithDescription("Number of failed incident persists"),
		metric.WithUnit("{count}"))
}

// MapTriggerKind resolves the incident type for a trigger kind. Unknown
// kinds map to contact so that the pipeline stays total over its input.
func MapTriggerKind(kind model.TriggerKind, nearby int) model.IncidentType {
	switch kind {
	case model.TriggerOffTrack:
		return model.IncidentOffTrack
	case model.TriggerSpin:
		return model.IncidentSpin
	case model.TriggerContactProx:
		return model.IncidentContact
	case model.TriggerErraticTraject:
		return model.IncidentLossOfControl
	case model.TriggerIncidentCount:
		if nearby > 0 {
			return model.IncidentContact
		}
		return model.IncidentOffTrack
	case model.TriggerSuddenDecel:
		if nearby > 0 {
			return model.IncidentContact
		}
		return model.IncidentLossOfControl
	default:
		return model.IncidentContact
	}
}

// Classify runs the classification stages. It is pure with respect to the
// trigger content except for id and timestamp generation; persistence and
// emission are handled by the queue workers.
func (p *Pipeline) Classify(trigger *model.IncidentTrigger) *model.IncidentEvent {
	incType := MapTriggerKind(trigger.Kind, len(trigger.NearbyDriverIDs))

	var contactType model.ContactType
	if incType == model.IncidentContact {
		contactType = p.analyzer.Analyze(trigger)
	}

	sev, score := p.scorer.Score(trigger, incType, contactType)

	involved := make([]model.InvolvedDriver, 0, 1+len(trigger.NearbyDriverIDs))
	involved = append(involved, model.InvolvedDriver{
		DriverID: trigger.PrimaryDriverID,
		Role:     model.RoleInvolved,
	})
	for _, id := range trigger.NearbyDriverIDs {
		involved = append(involved, model.InvolvedDriver{
			DriverID: id,
			Role:     model.RoleInvolved,
		})
	}
	if len(involved) > 1 {
		involved = p.predictor.Predict(trigger, incType, contactType, involved)
	}

	now := p.now()
	return &model.IncidentEvent{
		ID:              p.newID(),
		SessionID:       trigger.SessionID,
		Type:            incType,
		ContactType:     contactType,
		Severity:        sev,
		SeverityScore:   score,
		LapNumber:       trigger.Data.LapNumber,
		SessionTimeMs:   trigger.SessionTimeMs,
		TrackPosition:   trigger.Data.TrackPosition,
		InvolvedDrivers: involved,
		Status:          model.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ProcessTrigger enqueues a trigger for asynchronous classification. The
// per-session queue is bounded; ErrQueueFull signals that the caller has
// to resubmit.
func (p *Pipeline) ProcessTrigger(trigger *model.IncidentTrigger) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return ErrClosed
	}
	queue, ok := p.queues[trigger.SessionID]
	if !ok {
		queue = make(chan *model.IncidentTrigger, p.queueSize)
		p.queues[trigger.SessionID] = queue
		p.wg.Add(1)
		go p.worker(trigger.SessionID, queue)
	}
	// the send never blocks, so it can stay inside the critical section.
	// That serializes it against Close and against an idle worker retiring,
	// both of which only touch the queue while holding the mutex.
	select {
	case queue <- trigger:
		return nil
	default:
		return ErrQueueFull
	}
}

// worker drains one session's queue. It retires after idleTimeout without
// a trigger, removing its map entry so long-running deployments don't
// accumulate a goroutine per session ever seen. Close takes over once
// closed is set: the worker then keeps draining until the channel closes.
func (p *Pipeline) worker(sessionID string, queue <-chan *model.IncidentTrigger) {
	defer p.wg.Done()
	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()
	for {
		select {
		case trigger, ok := <-queue:
			if !ok {
				p.l.Debug("trigger worker finished",
					log.String("sessionId", sessionID))
				return
			}
			p.handleTrigger(trigger)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(p.idleTimeout)
		case <-idle.C:
			p.mutex.Lock()
			// triggers are enqueued under the mutex, so the length check
			// cannot race with a send
			if p.closed || len(queue) > 0 {
				p.mutex.Unlock()
				idle.Reset(p.idleTimeout)
				continue
			}
			delete(p.queues, sessionID)
			p.mutex.Unlock()
			p.l.Debug("idle trigger worker retired",
				log.String("sessionId", sessionID))
			return
		}
	}
}

// handleTrigger classifies, persists and finally emits. Persistence is
// the commit point: on failure nothing is emitted, recovery is up to the
// producer (resubmit the trigger).
func (p *Pipeline) handleTrigger(trigger *model.IncidentTrigger) {
	incident := p.Classify(trigger)
	if p.store != nil {
		if err := p.store.Create(context.Background(), incident); err != nil {
			p.persistErrCounter.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("sessionId",
					incident.SessionID)))
			p.l.Error("could not persist incident",
				log.String("sessionId", incident.SessionID),
				log.String("kind", string(trigger.Kind)),
				log.ErrorField(err))
			return
		}
	}
	p.classifiedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("sessionId", incident.SessionID),
			attribute.String("type", string(incident.Type))))
	if p.pub != nil {
		if err := p.pub.PublishIncidentNew(incident); err != nil {
			p.l.Warn("could not publish incident",
				log.String("id", incident.ID.String()),
				log.ErrorField(err))
		}
	}
}

// Close shuts the per-session queues down and waits for in-flight
// classifications. There is no cancellation of a started classification,
// persistence is the implicit deadline.
func (p *Pipeline) Close() {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return
	}
	p.closed = true
	for _, queue := range p.queues {
		close(queue)
	}
	p.mutex.Unlock()
	p.wg.Wait()
}
