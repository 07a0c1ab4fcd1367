package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"aria/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.Default())
}

func newEvent(t domain.EventType) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got int
	bus.Subscribe(domain.EventStreamToken, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventStreamToken {
			got++
		}
	})

	bus.Publish(context.Background(), newEvent(domain.EventStreamToken))
	if got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestTokenOrderPreserved(t *testing.T) {
	bus := newTestBus()

	var order []string
	bus.Subscribe(domain.EventStreamToken, func(_ context.Context, e domain.Event) {
		order = append(order, e.ConversationID)
	})

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		bus.Publish(context.Background(), domain.Event{
			Type:           domain.EventStreamToken,
			ConversationID: id,
		})
	}

	want := "12345"
	var got string
	for _, id := range order {
		got += id
	}
	if got != want {
		t.Errorf("delivery order = %s, want %s", got, want)
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got int
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got++
	})

	bus.Publish(context.Background(), newEvent(domain.EventStreamStarted))
	bus.Publish(context.Background(), newEvent(domain.EventActionFailed))

	if got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got int
	unsub := bus.Subscribe(domain.EventStreamCompleted, func(_ context.Context, _ domain.Event) {
		got++
	})

	bus.Publish(context.Background(), newEvent(domain.EventStreamCompleted))
	unsub()
	bus.Publish(context.Background(), newEvent(domain.EventStreamCompleted))

	if got != 1 {
		t.Fatalf("expected 1 after unsubscribe, got %d", got)
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var mu sync.Mutex
	var got int
	bus.Subscribe(domain.EventStreamToken, func(_ context.Context, _ domain.Event) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventStreamToken))
		}()
	}
	wg.Wait()

	if got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got int
	bus.Subscribe(domain.EventStreamError, func(_ context.Context, _ domain.Event) {
		panic("boom")
	})
	bus.Subscribe(domain.EventStreamError, func(_ context.Context, _ domain.Event) {
		got++
	})

	bus.Publish(context.Background(), newEvent(domain.EventStreamError))
	if got != 1 {
		t.Fatalf("second subscriber must still fire, got %d", got)
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := newTestBus()

	var got int
	bus.Subscribe(domain.EventStreamToken, func(_ context.Context, _ domain.Event) {
		got++
	})
	bus.Close()
	bus.Publish(context.Background(), newEvent(domain.EventStreamToken))

	if got != 0 {
		t.Fatalf("publish after close must drop, got %d", got)
	}
}
