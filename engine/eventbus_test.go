package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"scoreboard/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventScoreSubmitted, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewScoreSubmitted("u", 1, true, "memory"))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventBackendFailover, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewBackendFailover("redis", "dial refused"))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	unsub := bus.Subscribe(core.EventScoreSubmitted, func(context.Context, core.Event) { count++ })
	bus.Publish(context.Background(), core.NewScoreSubmitted("u", 1, true, "memory"))
	unsub()
	bus.Publish(context.Background(), core.NewScoreSubmitted("u", 2, true, "memory"))
	assert.Equal(t, 1, count)
}

func TestEventBusAsyncDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	var dropped atomic.Int64
	bus := NewEventBus(DispatchAsync, WithQueueSize(1), WithWorkers(1), WithDropHandler(func(core.Event) { dropped.Add(1) }))
	started := make(chan struct{}, 1)
	bus.Subscribe(core.EventScoreSubmitted, func(context.Context, core.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	})

	ev := core.NewScoreSubmitted("u", 1, true, "memory")
	bus.Publish(context.Background(), ev)
	<-started
	// The worker is blocked, so one event fits in the queue and the next is dropped.
	bus.Publish(context.Background(), ev)
	bus.Publish(context.Background(), ev)

	assert.Equal(t, int64(1), bus.Dropped())
	assert.Equal(t, int64(1), dropped.Load())
	close(block)
	bus.Close()
}

func TestEventBusCloseDrainsQueue(t *testing.T) {
	bus := NewEventBus(DispatchAsync, WithWorkers(1))
	var delivered atomic.Int64
	bus.Subscribe(core.EventScoreSubmitted, func(context.Context, core.Event) { delivered.Add(1) })
	for i := 0; i < 50; i++ {
		bus.Publish(context.Background(), core.NewScoreSubmitted("u", float64(i), true, "memory"))
	}
	bus.Close()
	assert.Equal(t, int64(50), delivered.Load())
	bus.Close()
}
