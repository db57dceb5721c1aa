package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/gridexchange/edi-gateway/outgoing/calculation"
)

// EventHandler is a function supplied by event subscribers.
type EventHandler func(ctx context.Context, ev calculation.Event) error

// subscriptions associates event handlers to event names.
type subscriptions struct {
	s map[string]EventHandler
	sync.RWMutex
}

// Subscribe a handler to a specific event name.
func (s *subscriptions) Subscribe(name string, h EventHandler) {
	s.Lock()
	defer s.Unlock()
	s.s[name] = h
}

// handleEvent runs the registered handler according to the event name.
func (s *subscriptions) handleEvent(ctx context.Context, ev calculation.Event) error {
	s.RLock()
	h, ok := s.s[ev.EventName()]
	s.RUnlock()
	if !ok {
		return fmt.Errorf("event handler not registered for %s", ev.EventName())
	}
	return h(ctx, ev)
}
