package logging

import (
	"context"
	"log"
	"maps"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize = 512
	minBacklog       = 32
	maxBacklog       = 1024
	maxBackoffShift  = 5
)

// Clock supplies timestamps for events published without one.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sink is an event output. Each sink is written from a single goroutine.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// Router stamps, filters and fans published events out to its sinks.
// Publish never blocks the tick: a full queue drops the event and counts it
// under "events.dropped".
type Router struct {
	clock    Clock
	fallback *log.Logger
	minLevel Severity
	fields   map[string]any
	dropWarn time.Duration

	queue   chan Event
	outlets []*outlet
	stop    chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup
	metrics Metrics

	quietUntil atomic.Int64
}

// NewRouter starts the dispatch goroutine and one writer per sink. Sinks are
// attached in name order so console output is stable across runs.
func NewRouter(cfg Config, clock Clock, fallback *log.Logger, sinks map[string]Sink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Router{
		clock:    clock,
		fallback: fallback,
		minLevel: cfg.MinSeverity,
		fields:   maps.Clone(cfg.Fields),
		dropWarn: cfg.DropWarn,
		queue:    make(chan Event, queueSize),
		stop:     make(chan struct{}),
	}
	if r.dropWarn <= 0 {
		r.dropWarn = 5 * time.Second
	}

	backlog := min(max(queueSize, minBacklog), maxBacklog)
	for _, name := range slices.Sorted(maps.Keys(sinks)) {
		if sinks[name] == nil {
			continue
		}
		r.outlets = append(r.outlets, &outlet{
			name:     name,
			sink:     sinks[name],
			backlog:  make(chan Event, backlog),
			fallback: fallback,
		})
	}

	r.wg.Add(1 + len(r.outlets))
	go r.dispatch()
	for _, o := range r.outlets {
		go func() {
			defer r.wg.Done()
			o.run()
		}()
	}
	return r, nil
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, o := range r.outlets {
			close(o.backlog)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.route(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.route(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) route(event Event) {
	if event.Severity < r.minLevel {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = withDefaults(event, r.fields)
	r.metrics.TelemetryAdd("events."+string(event.Type), 1)
	for _, o := range r.outlets {
		o.offer(event)
	}
}

// Publish queues the event for routing. Untyped events and events published
// after Close are ignored.
func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.dropped(event)
	}
}

func (r *Router) dropped(event Event) {
	r.metrics.TelemetryAdd("events.dropped", 1)
	now := time.Now().UnixNano()
	until := r.quietUntil.Load()
	if now < until || !r.quietUntil.CompareAndSwap(until, now+r.dropWarn.Nanoseconds()) {
		return
	}
	r.fallback.Printf("queue full, dropping %s at tick %d", event.Type, event.Tick)
}

// Close flushes queued events through the sinks and closes them. It returns
// ctx's error when the flush does not finish in time.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.stop)
	flushed := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, o := range r.outlets {
		if err := o.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Metrics exposes the router's per-event-type counters.
func (r *Router) Metrics() *Metrics {
	return &r.metrics
}

// Sink returns the sink attached under name, or nil.
func (r *Router) Sink(name string) Sink {
	for _, o := range r.outlets {
		if o.name == name {
			return o.sink
		}
	}
	return nil
}

// outlet owns one sink. A failing sink is retried with exponential backoff
// while its backlog keeps absorbing events.
type outlet struct {
	name     string
	sink     Sink
	backlog  chan Event
	fallback *log.Logger
	failures int
	retryAt  time.Time
}

func (o *outlet) offer(event Event) {
	select {
	case o.backlog <- event.Clone():
	default:
		o.fallback.Printf("sink %s backlog full, dropping %s", o.name, event.Type)
	}
}

func (o *outlet) run() {
	for event := range o.backlog {
		if o.failures > 0 {
			if wait := time.Until(o.retryAt); wait > 0 {
				time.Sleep(wait)
			}
		}
		err := o.sink.Write(event)
		if err == nil {
			o.failures = 0
			continue
		}
		o.failures++
		delay := time.Second << min(o.failures, maxBackoffShift)
		o.retryAt = time.Now().Add(delay)
		o.fallback.Printf("sink %s failed: %v (retry in %s)", o.name, err, delay)
	}
}
