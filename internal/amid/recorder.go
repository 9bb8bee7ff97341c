package amid

import "sync"

// SentAction is one recorded fire-and-forget action.
type SentAction struct {
	Action string
	Fields map[string]string
}

// Recorder is an Actioner that captures actions in memory for tests.
type Recorder struct {
	mu      sync.Mutex
	actions []SentAction
	// Err, when set, makes Send fail.
	Err error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records the action.
func (r *Recorder) Send(action string, fields map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	r.actions = append(r.actions, SentAction{Action: action, Fields: copied})
	return nil
}

// Actions returns every recorded action in send order.
func (r *Recorder) Actions() []SentAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentAction(nil), r.actions...)
}
