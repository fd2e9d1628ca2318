package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	googleuuid "github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/pkg/model"
	"github.com/stewardlog/incident-service-go/pkg/processing"
	"github.com/stewardlog/incident-service-go/pkg/proxy"
	"github.com/stewardlog/incident-service-go/pkg/registry"
)

// subject all relay agents publish their frames to
const RelaySubject = "isvc.relay.frames"

var ErrNotInitialized = errors.New("gateway requires registry and proxy")

// ConnectionInfo identifies the relay connection a frame arrived on.
type ConnectionInfo struct {
	ID string
}

func NewConnectionInfo() ConnectionInfo {
	return ConnectionInfo{ID: googleuuid.NewString()}
}

// Gateway validates inbound event frames and routes them to the registry
// and the classification pipeline.
type Gateway struct {
	registry     *registry.Registry
	pipeline     *processing.Pipeline
	pub          proxy.PublishProxy
	printMessage bool
	l            *log.Logger
	sub          *nats.Subscription
}

type Option func(*Gateway)

func WithRegistry(arg *registry.Registry) Option {
	return func(g *Gateway) {
		g.registry = arg
	}
}

func WithPipeline(arg *processing.Pipeline) Option {
	return func(g *Gateway) {
		g.pipeline = arg
	}
}

func WithProxy(arg proxy.PublishProxy) Option {
	return func(g *Gateway) {
		g.pub = arg
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(g *Gateway) {
		g.l = arg
	}
}

// WithPrintMessage enables debug logging of raw frame payloads.
func WithPrintMessage(arg bool) Option {
	return func(g *Gateway) {
		g.printMessage = arg
	}
}

// NewGateway refuses to construct a gateway without registry and proxy.
// Starting without a broadcast collaborator is a wiring error, not a
// runtime condition.
func NewGateway(opts ...Option) (*Gateway, error) {
	ret := &Gateway{l: log.Default().Named("ingest")}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.registry == nil || ret.pub == nil {
		return nil, ErrNotInitialized
	}
	return ret, nil
}

// HandleFrame processes one inbound frame and returns the ack for the
// producer. A nil ack with error means the frame was rejected.
//
//nolint:cyclop // frame dispatch
func (g *Gateway) HandleFrame(
	ctx context.Context, conn ConnectionInfo, raw []byte,
) (*AckResponse, error) {
	if g.printMessage {
		g.l.Debug("frame received", log.String("payload", string(raw)))
	}
	frame, err := DecodeFrame(raw)
	if err != nil {
		g.l.Warn("rejecting frame", log.ErrorField(err))
		return nil, err
	}
	if frame.ConnID != "" {
		conn.ID = frame.ConnID
	}

	switch frame.Type {
	case FrameSessionMetadata:
		return g.handleSessionMetadata(frame, conn)
	case FrameTelemetry:
		return g.handleTelemetry(frame)
	case FrameIncident:
		return g.handleIncident(frame)
	case FrameRaceEvent:
		return g.handleRaceEvent(frame)
	case FrameTrigger:
		return g.handleTrigger(ctx, frame)
	}
	return nil, ErrUnknownFrameType
}

//nolint:whitespace // can't make both editor and linter happy
func (g *Gateway) handleSessionMetadata(
	frame *EventFrame, conn ConnectionInfo,
) (*AckResponse, error) {
	g.registry.UpsertMetadata(frame.SessionID, model.SessionMetadata{
		TrackName:   frame.TrackName,
		TrackConfig: frame.TrackConfig,
		SessionType: frame.SessionType,
	})
	// the relay joins its own session room
	if err := g.pub.JoinRoom(conn.ID, frame.SessionID); err != nil {
		g.l.Warn("could not join relay to session room",
			log.String("sessionId", frame.SessionID), log.ErrorField(err))
	}
	if entry, ok := g.registry.Get(frame.SessionID); ok {
		//nolint:errcheck // broadcast failures are not the producer's problem
		g.pub.PublishSessionActive(&model.SessionSummary{
			SessionID:   entry.SessionID,
			TrackName:   entry.TrackName,
			SessionType: entry.SessionType,
			DriverCount: len(entry.Drivers),
			LastUpdate:  entry.LastUpdate,
		})
	}
	return &AckResponse{OriginalType: string(frame.Type), Success: true}, nil
}

func (g *Gateway) handleTelemetry(frame *EventFrame) (*AckResponse, error) {
	projected := g.registry.ApplyTelemetry(frame.SessionID, frame.Drivers)
	//nolint:errcheck // broadcast failures are not the producer's problem
	g.pub.PublishTimingUpdate(frame.SessionID, projected)
	return &AckResponse{OriginalType: string(frame.Type), Success: true}, nil
}

// handleIncident wraps a relay-reported incident into an IncidentEvent
// shaped payload. Missing fields are defaulted, never rejected.
func (g *Gateway) handleIncident(frame *EventFrame) (*AckResponse, error) {
	notice := frame.Incident
	if notice == nil {
		notice = &IncidentNotice{}
	}
	incType := model.IncidentType(notice.Type)
	if incType == "" {
		incType = model.IncidentContact
	}
	severity := model.Severity(notice.Severity)
	switch severity {
	case model.SeverityLight, model.SeverityMedium, model.SeverityHeavy:
	default:
		severity = model.SeverityMedium
	}
	now := time.Now()
	event := &model.IncidentEvent{
		ID:            uuid.Must(uuid.NewV4()),
		SessionID:     frame.SessionID,
		Type:          incType,
		Severity:      severity,
		LapNumber:     notice.LapNumber,
		SessionTimeMs: frame.SessionTimeMs,
		TrackPosition: notice.TrackPosition,
		InvolvedDrivers: []model.InvolvedDriver{{
			DriverID:   notice.DriverID,
			DriverName: notice.DriverName,
			CarNumber:  notice.CarNumber,
			Role:       model.RoleInvolved,
		}},
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	//nolint:errcheck // broadcast failures are not the producer's problem
	g.pub.PublishIncidentNew(event)
	return &AckResponse{OriginalType: string(frame.Type), Success: true}, nil
}

func (g *Gateway) handleRaceEvent(frame *EventFrame) (*AckResponse, error) {
	//nolint:errcheck // broadcast failures are not the producer's problem
	g.pub.PublishRaceEvent(frame.SessionID, frame.EventType, frame.Data)
	return &AckResponse{OriginalType: string(frame.Type), Success: true}, nil
}

// handleTrigger dispatches a trigger to the pipeline. A full queue is
// surfaced to the producer, resubmitting is its responsibility.
//
//nolint:whitespace // can't make both editor and linter happy
func (g *Gateway) handleTrigger(
	_ context.Context, frame *EventFrame,
) (*AckResponse, error) {
	if g.pipeline == nil || frame.Trigger == nil {
		return nil, ErrNotInitialized
	}
	trigger := frame.Trigger
	if trigger.SessionID == "" {
		trigger.SessionID = frame.SessionID
	}
	if err := g.pipeline.ProcessTrigger(trigger); err != nil {
		g.l.Warn("trigger not accepted",
			log.String("sessionId", trigger.SessionID),
			log.String("kind", string(trigger.Kind)),
			log.ErrorField(err))
		return nil, err
	}
	return &AckResponse{OriginalType: string(frame.Type), Success: true}, nil
}

// Bind subscribes the gateway to the relay frame subject. Producers that
// want an ack use request/reply.
func (g *Gateway) Bind(nc *nats.Conn) error {
	conn := NewConnectionInfo()
	sub, err := nc.Subscribe(RelaySubject, func(msg *nats.Msg) {
		ack, err := g.HandleFrame(context.Background(), conn, msg.Data)
		if msg.Reply == "" {
			return
		}
		if err != nil {
			//nolint:errcheck // best effort nack
			msg.Respond(EncodeAck(&AckResponse{Success: false}))
			return
		}
		//nolint:errcheck // best effort ack
		msg.Respond(EncodeAck(ack))
	})
	if err != nil {
		return err
	}
	g.sub = sub
	g.l.Info("gateway bound to relay subject", log.String("subject", RelaySubject))
	return nil
}

// Unbind removes the relay subscription.
func (g *Gateway) Unbind() {
	if g.sub != nil {
		//nolint:errcheck // shutdown
		g.sub.Unsubscribe()
		g.sub = nil
	}
}
