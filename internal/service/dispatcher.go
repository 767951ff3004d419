package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/webitel/code-delivery-service/internal/adapter/pubsub"
	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/domain/registry"
	"github.com/webitel/code-delivery-service/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	tracerName = "github.com/webitel/code-delivery-service/internal/service"

	DefaultSendTimeout = 500 * time.Millisecond
	DefaultParallelism = 32
)

// Broadcaster fans an event out to every live session of one user.
type Broadcaster interface {
	// Broadcast wraps payload into a code event for username.
	Broadcast(ctx context.Context, username string, payload any) int
	// BroadcastEvent returns the number of targets attempted, not confirmed.
	BroadcastEvent(ctx context.Context, ev event.Eventer) int
}

type DispatcherOption func(*Dispatcher)

func WithSendTimeout(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) {
		if d > 0 {
			x.sendTimeout = d
		}
	}
}

func WithParallelism(n int) DispatcherOption {
	return func(x *Dispatcher) {
		if n > 0 {
			x.parallelism = n
		}
	}
}

// WithEvictOnSendFailure removes and closes a stream connection as soon as a
// send to it fails. Off by default: the reaper judges liveness.
func WithEvictOnSendFailure(v bool) DispatcherOption {
	return func(x *Dispatcher) { x.evictOnFailure = v }
}

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(x *Dispatcher) {
		if l != nil {
			x.logger = l
		}
	}
}

type Dispatcher struct {
	registry registry.Registrar
	groups   pubsub.GroupPublisher

	sendTimeout    time.Duration
	parallelism    int
	evictOnFailure bool

	tracer trace.Tracer
	logger *slog.Logger
}

func NewDispatcher(reg registry.Registrar, groups pubsub.GroupPublisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		groups:      groups,
		sendTimeout: DefaultSendTimeout,
		parallelism: DefaultParallelism,
		tracer:      otel.Tracer(tracerName),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Broadcast(ctx context.Context, username string, payload any) int {
	name, ok := model.NormalizeUsername(username)
	if !ok {
		metrics.BroadcastsTotal.WithLabelValues("invalid").Inc()
		return 0
	}
	return d.BroadcastEvent(ctx, event.NewCodeEvent(name, "", payload))
}

func (d *Dispatcher) BroadcastEvent(ctx context.Context, ev event.Eventer) int {
	name, ok := model.NormalizeUsername(ev.GetUsername())
	if !ok {
		metrics.BroadcastsTotal.WithLabelValues("invalid").Inc()
		return 0
	}

	ctx, span := d.tracer.Start(ctx, "dispatcher.broadcast", trace.WithAttributes(
		attribute.String("username", name),
		attribute.String("event.id", ev.GetID()),
		attribute.String("event.kind", ev.GetKind().String()),
	))
	defer span.End()
	timer := prometheus.NewTimer(metrics.BroadcastDuration)

	var streams []registry.Connector
	for _, c := range d.registry.ConnectionsFor(name) {
		if c.GetKind() == model.ChannelStream {
			streams = append(streams, c)
		}
	}

	// 1. [STREAM_FAN_OUT] bounded parallel sends, each limited by sendTimeout
	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.parallelism)
	for _, c := range streams {
		g.Go(func() error {
			if c.Send(ev, d.sendTimeout) {
				metrics.SendsTotal.WithLabelValues(model.ChannelStream.String(), "ok").Inc()
				return nil
			}
			failed.Add(1)
			metrics.SendsTotal.WithLabelValues(model.ChannelStream.String(), "failed").Inc()
			d.onSendFailure(c)
			return nil
		})
	}
	_ = g.Wait()

	// 2. [PUSH_GROUP] issued only after every stream send returned
	pushed, err := d.groups.Publish(ctx, name, ev)
	if err != nil {
		span.RecordError(err)
		d.logger.Warn("BROADCAST_GROUP_PUBLISH_FAILED",
			slog.String("username", name),
			slog.String("event_id", ev.GetID()),
			slog.Any("err", err))
	}
	if pushed > 0 {
		metrics.SendsTotal.WithLabelValues(model.ChannelPush.String(), "ok").Add(float64(pushed))
	}

	delivered := len(streams) + pushed
	outcome := "delivered"
	if delivered == 0 {
		outcome = "no_targets"
	}
	metrics.BroadcastsTotal.WithLabelValues(outcome).Inc()

	span.SetAttributes(
		attribute.Int("targets.stream", len(streams)),
		attribute.Int("targets.push", pushed),
		attribute.Int64("sends.failed", failed.Load()),
	)
	if err != nil {
		span.SetStatus(codes.Error, "group publish failed")
	}

	took := timer.ObserveDuration()
	d.logger.Debug("BROADCAST_COMPLETED",
		slog.String("username", name),
		slog.String("event_id", ev.GetID()),
		slog.Int("delivered", delivered),
		slog.Int64("failed", failed.Load()),
		slog.Duration("took", took))
	return delivered
}

func (d *Dispatcher) onSendFailure(c registry.Connector) {
	d.logger.Debug("BROADCAST_SEND_FAILED",
		slog.String("conn_id", c.GetID()),
		slog.String("username", c.GetUsername()),
		slog.Uint64("dropped_total", c.Dropped()))

	if !d.evictOnFailure {
		return
	}
	if d.registry.UnregisterConn(c) {
		c.Close()
	}
}
