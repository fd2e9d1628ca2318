package broadcast

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stewardlog/incident-service-go/log"
)

// BroadcastServer fans a source channel out to any number of listeners.
// Slow listeners are skipped after a short timeout so that one stuck
// dashboard client cannot stall the room.
type BroadcastServer[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

const listenerSendTimeout = 50 * time.Millisecond

type broadcastServer[T any] struct {
	name           string
	room           string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	numRcv         int
	numSnd         int
	numSkip        int
	l              *log.Logger
}

type Option[T any] func(*broadcastServer[T])

func WithLogger[T any](arg *log.Logger) Option[T] {
	return func(b *broadcastServer[T]) {
		b.l = arg
	}
}

//nolint:whitespace // false positive
func NewBroadcastServer[T any](
	room, name string,
	source <-chan T,
	opts ...Option[T],
) BroadcastServer[T] {
	ctx, cancel := context.WithCancel(context.Background())
	b := &broadcastServer[T]{
		room:           room,
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		l:              log.Default().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.setupMetrics()
	go b.serve()
	return b
}

func (b *broadcastServer[T]) Subscribe() <-chan T {
	ch := make(chan T)
	b.addListener <- ch
	return ch
}

func (b *broadcastServer[T]) CancelSubscription(ch <-chan T) {
	b.removeListener <- ch
}

func (b *broadcastServer[T]) Close() {
	b.l.Info("closing broadcast server",
		log.String("name", b.name),
		log.Int("rcv", b.numRcv), log.Int("snd", b.numSnd), log.Int("skip", b.numSkip))
	b.cancel()
}

//nolint:lll // readability
func (b *broadcastServer[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("isvc.broadcast.%s", b.name))
	register := func(metricName, desc, unit string, valueProvider func() int64) {
		if _, err := meter.Int64ObservableGauge(
			metricName,
			metric.WithDescription(desc),
			metric.WithUnit(unit),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(valueProvider(),
					metric.WithAttributes(
						attribute.String("name", b.name),
						attribute.String("room", b.room),
					),
				)
				return nil
			})); err != nil {
			b.l.Error("failed to register metric",
				log.String("metric", metricName),
				log.ErrorField(err))
		}
	}
	type data struct {
		name  string
		desc  string
		unit  string
		value func() int64
	}
	for _, d := range []*data{
		{
			"isvc.broadcast.rcv", "Number of received messages", "{count}",
			func() int64 { return int64(b.numRcv) },
		},
		{
			"isvc.broadcast.snd", "Number of sent messages", "{count}",
			func() int64 { return int64(b.numSnd) },
		},
		{
			"isvc.broadcast.skip", "Number of skipped messages", "{count}",
			func() int64 { return int64(b.numSkip) },
		},
		{
			"isvc.broadcast.listener", "Number of listeners", "{count}",
			func() int64 { return int64(len(b.listeners)) },
		},
	} {
		register(d.name, d.desc, d.unit, d.value)
	}
}

func (b *broadcastServer[T]) serve() {
	defer func() {
		for _, listener := range b.listeners {
			if listener != nil {
				close(listener)
			}
		}
	}()
	for {
		select {
		case <-b.ctx.Done():
			return
		case ch := <-b.addListener:
			b.listeners = append(b.listeners, ch)
		case ch := <-b.removeListener:
			for i, listener := range b.listeners {
				if listener == ch {
					b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
					close(listener)
					break
				}
			}
		case msg := <-b.source:
			b.numRcv++
			for _, listener := range b.listeners {
				select {
				case listener <- msg:
					b.numSnd++
				case <-time.After(listenerSendTimeout):
					b.numSkip++
				}
			}
		}
	}
}
