package logging_test

import (
	"context"
	"testing"
	"time"

	"triad-arena/server/logging"
	"triad-arena/server/logging/sinks"
)

func TestRouterDeliversToSinks(t *testing.T) {
	mem := sinks.NewMemorySink()
	router := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{
		{Name: "memory", Sink: mem},
	})

	router.Publish(context.Background(), logging.Event{
		Type:     logging.EventMatchStarted,
		Actor:    logging.EntityRef{ID: "match-1", Kind: logging.EntityKindMatch},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMatch,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != logging.EventMatchStarted {
		t.Fatalf("unexpected type %q", events[0].Type)
	}
	if events[0].Time.IsZero() {
		t.Fatal("router must stamp event time")
	}
	stats := router.Stats()
	if stats.EventsTotal != 1 || stats.DroppedTotal != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	mem := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "memory", Sink: mem}})

	router.Publish(context.Background(), logging.Event{
		Type:     logging.EventSessionOpened,
		Severity: logging.SeverityInfo,
	})
	router.Publish(context.Background(), logging.Event{
		Type:     logging.EventPayoutFailed,
		Severity: logging.SeverityError,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("expected only the error event, got %d", len(events))
	}
	if events[0].Type != logging.EventPayoutFailed {
		t.Fatalf("unexpected type %q", events[0].Type)
	}
}

func TestRouterDropsUntypedEvents(t *testing.T) {
	mem := sinks.NewMemorySink()
	router := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{{Name: "memory", Sink: mem}})
	router.Publish(context.Background(), logging.Event{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(mem.Events()) != 0 {
		t.Fatal("untyped events must be discarded")
	}
}
