package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"remote-sync/internal/decision"
)

func TestNonInteractivePresenterKeepsCurrentState(t *testing.T) {
	r := decision.NewRegistry(newPromptPresenter(false))

	got := 99
	r.Propose([]string{"Keep current", "Get from a"}, func(index int) { got = index })

	assert.Equal(t, decision.Dismissed, got)
	assert.Empty(t, r.Pending())
}

func TestAbsPathsDefaultsToWorkingDirectory(t *testing.T) {
	paths, err := absPaths(nil)
	assert.NoError(t, err)
	assert.Len(t, paths, 1)

	paths, err = absPaths([]string{"a", "/b"})
	assert.NoError(t, err)
	assert.Equal(t, "/b", paths[1])
}
