package logging

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Sink receives routed events. Write runs on the sink's own worker goroutine.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

type Config struct {
	BufferSize       int
	MinimumSeverity  Severity
	DropWarnInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
	}
}

// Router queues events and forwards them to each sink on a dedicated worker.
// Publish never blocks; a full queue drops the event and rate-limits the
// warning.
type Router struct {
	cfg      Config
	queue    chan Event
	sinks    []*sinkWorker
	clock    Clock
	fallback *log.Logger
	cancel   context.CancelFunc
	closed   atomic.Bool
	wg       sync.WaitGroup

	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
	lastDropLog  atomic.Int64
}

type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
}

func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink) *Router {
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 512
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		cfg:      cfg,
		queue:    make(chan Event, cfg.BufferSize),
		clock:    clock,
		fallback: log.New(os.Stderr, "[logging] ", log.LstdFlags),
		cancel:   cancel,
	}

	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		r.sinks = append(r.sinks, &sinkWorker{
			name:     named.Name,
			sink:     named.Sink,
			events:   make(chan Event, 128),
			fallback: r.fallback,
		})
	}

	r.wg.Add(1)
	go func() {
		defer func() {
			for _, worker := range r.sinks {
				close(worker.events)
			}
			r.wg.Done()
		}()
		for {
			select {
			case <-ctx.Done():
				r.drain()
				return
			case event := <-r.queue:
				r.forward(event)
			}
		}
	}()
	for _, worker := range r.sinks {
		r.wg.Add(1)
		go func(w *sinkWorker) {
			defer r.wg.Done()
			w.run()
		}(worker)
	}
	return r
}

func (r *Router) Publish(ctx context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.handleDrop(event)
	}
}

func (r *Router) forward(event Event) {
	if event.Severity < r.cfg.MinimumSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	r.eventsTotal.Add(1)
	for _, worker := range r.sinks {
		worker.enqueue(event)
	}
}

func (r *Router) drain() {
	for {
		select {
		case event := <-r.queue:
			r.forward(event)
		default:
			return
		}
	}
}

func (r *Router) handleDrop(event Event) {
	r.droppedTotal.Add(1)
	interval := r.cfg.DropWarnInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	now := time.Now().UnixNano()
	next := r.lastDropLog.Load()
	if next == 0 || now >= next {
		if r.lastDropLog.CompareAndSwap(next, now+interval.Nanoseconds()) {
			r.fallback.Printf("dropping event type=%s", event.Type)
		}
	}
}

// Close flushes queued events and closes every sink.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, worker := range r.sinks {
		if err := worker.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	return RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
	}
}

type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	fallback *log.Logger
	failures int
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- clone(event):
	default:
		w.fallback.Printf("sink %s backlog full dropping event type=%s", w.name, event.Type)
	}
}

func (w *sinkWorker) run() {
	for event := range w.events {
		if err := w.sink.Write(event); err != nil {
			w.failures++
			delay := time.Duration(1<<minInt(w.failures, 5)) * time.Second
			w.fallback.Printf("sink %s failed: %v (backing off %s)", w.name, err, delay)
			time.Sleep(delay)
		} else {
			w.failures = 0
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
