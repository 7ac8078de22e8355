package sinks

import (
	"context"
	"slices"
	"sync"

	"hunt-arena/server/logging"
)

// MemorySink records events in order. Tests plug it in either as a router
// sink or directly as a synchronous publisher.
type MemorySink struct {
	mu     sync.RWMutex
	events []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(event logging.Event) error {
	s.mu.Lock()
	s.events = append(s.events, event.Clone())
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Publish(_ context.Context, event logging.Event) {
	_ = s.Write(event)
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// Count reports how many recorded events have the given type.
func (s *MemorySink) Count(eventType logging.EventType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, event := range s.events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

func (s *MemorySink) Close(context.Context) error { return nil }
