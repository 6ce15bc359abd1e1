package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPublishInvokesHandlersInOrder(t *testing.T) {
	bus := NewInMemoryDispatcher()

	var seen []string
	bus.Subscribe(EventAccountCreated, func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.ID)
		return nil
	})
	bus.Subscribe(EventAccountCreated, func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.ID)
		return nil
	})

	err := bus.Publish(context.Background(), Event{ID: "e1", Type: EventAccountCreated, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if len(seen) != 2 || seen[0] != "first:e1" || seen[1] != "second:e1" {
		t.Fatalf("handlers not invoked in subscription order: %v", seen)
	}
}

func TestPublishAbortsOnHandlerError(t *testing.T) {
	bus := NewInMemoryDispatcher()

	wantErr := errors.New("sink unavailable")
	bus.Subscribe(EventInvitationIssued, func(context.Context, Event) error {
		return wantErr
	})
	var reached bool
	bus.Subscribe(EventInvitationIssued, func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := bus.Publish(context.Background(), Event{ID: "e2", Type: EventInvitationIssued})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected handler error to surface, got %v", err)
	}
	if reached {
		t.Fatal("second handler ran after first failed; emission must be all-or-nothing up to the failure")
	}
}

func TestPublishIgnoresOtherEventTypes(t *testing.T) {
	bus := NewInMemoryDispatcher()

	var called bool
	bus.Subscribe(EventTaskCompleted, func(context.Context, Event) error {
		called = true
		return nil
	})

	if err := bus.Publish(context.Background(), Event{ID: "e3", Type: EventQuoteValidated}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if called {
		t.Fatal("handler for different event type was invoked")
	}
}
