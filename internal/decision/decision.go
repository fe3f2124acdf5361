// Package decision models questions the engine asks the user as two phases:
// Propose registers the choices and returns at once, Resolve delivers the
// answer later from whatever front end shows them.
package decision

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownDecision = errors.New("unknown or already resolved decision")
	ErrInvalidChoice   = errors.New("choice index out of range")
)

// Dismissed is the index a front end resolves with when the user closes
// the question without picking. It is handled like index 0.
const Dismissed = -1

// Pending is a question waiting for an answer. Index 0 of Choices is always
// the keep or cancel option.
type Pending struct {
	ID      string
	Choices []string
	Created time.Time

	then func(index int)
}

// Presenter shows a pending decision. It must not block the caller for the
// answer; the answer arrives through Registry.Resolve.
type Presenter interface {
	Present(r *Registry, p *Pending)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(r *Registry, p *Pending)

func (f PresenterFunc) Present(r *Registry, p *Pending) { f(r, p) }

// Registry holds unanswered decisions. A decision that is never resolved
// only costs its entry here.
type Registry struct {
	presenter Presenter

	mu      sync.Mutex
	pending map[string]*Pending
}

// NewRegistry returns a registry that shows new decisions through p. A nil
// presenter leaves decisions pending until resolved by ID.
func NewRegistry(p Presenter) *Registry {
	return &Registry{presenter: p, pending: map[string]*Pending{}}
}

// Propose registers choices and hands them to the presenter. then runs with
// the selected index once resolved.
func (r *Registry) Propose(choices []string, then func(index int)) *Pending {
	p := &Pending{
		ID:      uuid.NewString(),
		Choices: append([]string(nil), choices...),
		Created: time.Now(),
		then:    then,
	}

	r.mu.Lock()
	r.pending[p.ID] = p
	presenter := r.presenter
	r.mu.Unlock()

	if presenter != nil {
		presenter.Present(r, p)
	}
	return p
}

// Resolve answers the decision id. Dismissed is accepted and passed on.
func (r *Registry) Resolve(id string, index int) error {
	r.mu.Lock()
	p, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDecision, id)
	}
	if index < Dismissed || index >= len(p.Choices) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrInvalidChoice, index, len(p.Choices))
	}
	delete(r.pending, id)
	r.mu.Unlock()

	if p.then != nil {
		p.then(index)
	}
	return nil
}

// Pending lists unanswered decisions, oldest first.
func (r *Registry) Pending() []*Pending {
	r.mu.Lock()
	out := make([]*Pending, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, p)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}
