// Package memory provides an in-process EventPublisher that records events.
package memory

import (
	"context"
	"sync"

	"github.com/tendant/simple-media/pkg/mediaingest"
)

// Recorder keeps every published event in order
type Recorder struct {
	mu     sync.RWMutex
	events []mediaingest.Event
	err    error
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent Publish calls return err. Pass nil to recover.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Publish records the event
func (r *Recorder) Publish(ctx context.Context, event mediaingest.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []mediaingest.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]mediaingest.Event, len(r.events))
	copy(events, r.events)
	return events
}

// OfType returns recorded events with the given type
func (r *Recorder) OfType(eventType string) []mediaingest.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []mediaingest.Event
	for _, e := range r.events {
		if e.Type == eventType {
			events = append(events, e)
		}
	}
	return events
}
