package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposeAndResolve(t *testing.T) {
	var shown []*Pending
	r := NewRegistry(PresenterFunc(func(_ *Registry, p *Pending) { shown = append(shown, p) }))

	got := -2
	p := r.Propose([]string{"cancel", "overwrite"}, func(i int) { got = i })

	require.Len(t, shown, 1)
	assert.Equal(t, p.ID, shown[0].ID)
	assert.Len(t, r.Pending(), 1)
	assert.Equal(t, -2, got, "nothing runs before the answer")

	require.NoError(t, r.Resolve(p.ID, 1))
	assert.Equal(t, 1, got)
	assert.Empty(t, r.Pending())

	assert.ErrorIs(t, r.Resolve(p.ID, 1), ErrUnknownDecision)
}

func TestResolveValidatesIndex(t *testing.T) {
	r := NewRegistry(nil)
	p := r.Propose([]string{"keep", "get"}, nil)

	assert.ErrorIs(t, r.Resolve(p.ID, 2), ErrInvalidChoice)
	assert.ErrorIs(t, r.Resolve(p.ID, -2), ErrInvalidChoice)
	assert.Len(t, r.Pending(), 1)

	require.NoError(t, r.Resolve(p.ID, Dismissed))
	assert.Empty(t, r.Pending())
}

func TestPresenterMayResolveImmediately(t *testing.T) {
	r := NewRegistry(PresenterFunc(func(r *Registry, p *Pending) {
		require.NoError(t, r.Resolve(p.ID, len(p.Choices)-1))
	}))

	got := -1
	r.Propose([]string{"a", "b", "c"}, func(i int) { got = i })
	assert.Equal(t, 2, got)
	assert.Empty(t, r.Pending())
}
