package bus

import (
	"context"
	"sync"
)

// Recorder is a Publisher that captures messages in memory for tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records the message.
func (r *Recorder) Publish(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns every recorded message in publish order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Named returns the recorded messages with the given event name.
func (r *Recorder) Named(name string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}
