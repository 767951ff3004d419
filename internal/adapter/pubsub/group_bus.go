package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/domain/registry"
)

const (
	metaEventID    = "event_id"
	metaKind       = "kind"
	metaPriority   = "priority"
	metaOccurredAt = "occurred_at"
	metaUsername   = "username"
)

// GroupPublisher is the push-channel contract seen by the dispatcher.
type GroupPublisher interface {
	// Publish delivers ev to every member of group and returns the member count it addressed.
	Publish(ctx context.Context, group string, ev event.Eventer) (int, error)
}

// GroupJoiner is the push-channel contract seen by transport handlers.
type GroupJoiner interface {
	Join(group string, conn registry.Connector) (leave func(), err error)
}

// GroupBus is the node-local push-channel group transport. Every member holds
// its own subscription on a watermill GoChannel topic named after the group.
// Publish blocks until each member has accepted or timed out the message, which
// keeps per-group delivery FIFO relative to publish order.
type GroupBus struct {
	pubsub      *gochannel.GoChannel
	sendTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	groups map[string]map[string]registry.Connector
}

func NewGroupBus(wmLogger watermill.LoggerAdapter, logger *slog.Logger, sendTimeout time.Duration) *GroupBus {
	return &GroupBus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            16,
			BlockPublishUntilSubscriberAck: true,
		}, wmLogger),
		sendTimeout: sendTimeout,
		logger:      logger,
		groups:      make(map[string]map[string]registry.Connector),
	}
}

// Join subscribes conn to group until leave is called or conn is closed.
// leave is idempotent.
func (b *GroupBus) Join(group string, conn registry.Connector) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := b.pubsub.Subscribe(ctx, group)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("group bus: join %q: %w", group, err)
	}

	b.mu.Lock()
	members, ok := b.groups[group]
	if !ok {
		members = make(map[string]registry.Connector)
		b.groups[group] = members
	}
	members[conn.GetID()] = conn
	b.mu.Unlock()

	leave := sync.OnceFunc(func() {
		cancel()
		b.remove(group, conn.GetID())
	})

	go b.pump(ctx, conn, msgs, leave)
	return leave, nil
}

// pump forwards group messages into the member connector.
// Every received message is acked, even when the send is dropped, so a slow
// member never blocks the group for longer than sendTimeout.
func (b *GroupBus) pump(ctx context.Context, conn registry.Connector, msgs <-chan *message.Message, leave func()) {
	// [SUBSCRIPTION_RELEASE] an abandoned subscription would block every later Publish
	defer leave()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if !conn.Send(decode(msg), b.sendTimeout) {
				b.logger.Debug("GROUP_SEND_DROPPED",
					slog.String("conn_id", conn.GetID()),
					slog.String("msg_id", msg.UUID))
			}
			msg.Ack()
		}
	}
}

func (b *GroupBus) remove(group, connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.groups[group]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(b.groups, group)
	}
}

// Publish sends ev to the members of group present at call time.
func (b *GroupBus) Publish(ctx context.Context, group string, ev event.Eventer) (int, error) {
	count := b.Members(group)
	if count == 0 {
		return 0, nil
	}

	data, err := ev.Encode()
	if err != nil {
		return 0, fmt.Errorf("group bus: encode %s: %w", ev.GetID(), err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metaEventID, ev.GetID())
	msg.Metadata.Set(metaUsername, ev.GetUsername())
	msg.Metadata.Set(metaKind, strconv.Itoa(int(ev.GetKind())))
	msg.Metadata.Set(metaPriority, strconv.Itoa(int(ev.GetPriority())))
	msg.Metadata.Set(metaOccurredAt, strconv.FormatInt(ev.GetOccurredAt(), 10))
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(group, msg); err != nil {
		return 0, fmt.Errorf("group bus: publish to %q: %w", group, err)
	}
	return count, nil
}

// Members returns the number of live members in group.
func (b *GroupBus) Members(group string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups[group])
}

// Groups returns the number of non-empty groups.
func (b *GroupBus) Groups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups)
}

func (b *GroupBus) Close() error {
	return b.pubsub.Close()
}

func decode(msg *message.Message) event.Eventer {
	kind, _ := strconv.Atoi(msg.Metadata.Get(metaKind))
	priority, _ := strconv.Atoi(msg.Metadata.Get(metaPriority))
	occurredAt, _ := strconv.ParseInt(msg.Metadata.Get(metaOccurredAt), 10, 64)

	return event.NewRawEvent(
		msg.Metadata.Get(metaEventID),
		msg.Metadata.Get(metaUsername),
		event.EventKind(kind),
		event.EventPriority(priority),
		occurredAt,
		msg.Payload,
	)
}
