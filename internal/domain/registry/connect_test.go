package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/domain/model"
)

func TestSendEnqueuesInOrder(t *testing.T) {
	conn := NewConnector(context.Background(), "bob", model.ChannelStream, 4)
	defer conn.Close()

	first := event.NewCodeEvent("bob", "test", map[string]string{"code": "1"})
	second := event.NewCodeEvent("bob", "test", map[string]string{"code": "2"})

	assert.True(t, conn.Send(first, time.Millisecond))
	assert.True(t, conn.Send(second, time.Millisecond))

	assert.Equal(t, first.GetID(), (<-conn.Recv()).GetID())
	assert.Equal(t, second.GetID(), (<-conn.Recv()).GetID())
}

func TestSendShedsLowPriorityWhenFull(t *testing.T) {
	conn := NewConnector(context.Background(), "bob", model.ChannelStream, 1)
	defer conn.Close()

	assert.True(t, conn.Send(event.NewCodeEvent("bob", "test", nil), time.Millisecond))

	hb := event.NewSystemEvent("bob", event.Heartbeat, event.PriorityLow, nil)
	assert.False(t, conn.Send(hb, time.Second))
	assert.Equal(t, uint64(1), conn.Dropped())
}

func TestSendTimesOutOnSlowConsumer(t *testing.T) {
	conn := NewConnector(context.Background(), "bob", model.ChannelStream, 1)
	defer conn.Close()

	assert.True(t, conn.Send(event.NewCodeEvent("bob", "test", nil), time.Millisecond))

	start := time.Now()
	assert.False(t, conn.Send(event.NewCodeEvent("bob", "test", nil), 20*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(1), conn.Dropped())
}

func TestSendAfterCloseFails(t *testing.T) {
	conn := NewConnector(context.Background(), "bob", model.ChannelStream, 1)
	conn.Close()
	conn.Close()

	assert.False(t, conn.Send(event.NewCodeEvent("bob", "test", nil), time.Millisecond))
}

func TestConnectorFollowsParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conn := NewConnector(ctx, "bob", model.ChannelPush, 1)
	cancel()

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("connector ignored parent cancellation")
	}
}
