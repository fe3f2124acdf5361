package messages

import (
	"strings"
	"sync"
)

// Recorder keeps every emitted message in memory. Front ends without a
// terminal and tests use it to inspect what the engine reported.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Emit(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Count returns how many recorded messages contain substr.
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, m := range r.Messages() {
		if strings.Contains(m.Text, substr) {
			n++
		}
	}
	return n
}

// Statuses returns the formatted text of status messages.
func (r *Recorder) Statuses() []string {
	var out []string
	for _, m := range r.Messages() {
		if m.Status {
			out = append(out, Format(m))
		}
	}
	return out
}
