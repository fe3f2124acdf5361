package history

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRefreshesExistingEntry(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), "/cfg/projects.json")

	require.NoError(t, s.Add("/work/one"))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.Add("/work/two"))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.Add("/work/one"))

	recent, err := s.Recent()
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "/work/one", recent[0].Path)
	assert.Equal(t, "/work/two", recent[1].Path)
}

func TestRemoveAndSearch(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), "/cfg/projects.json")
	for _, p := range []string{"/work/Site", "/work/api", "/srv/site-old"} {
		require.NoError(t, s.Add(p))
	}

	assert.Equal(t, []string{"/srv/site-old", "/work/Site"}, s.Search("site"))

	require.NoError(t, s.Remove("/work/Site"))
	assert.Equal(t, []string{"/srv/site-old"}, s.Search("site"))
}

func TestLoadMissingFile(t *testing.T) {
	h, err := NewStore(afero.NewMemMapFs(), "/nope/projects.json").Load()
	require.NoError(t, err)
	assert.Empty(t, h.Entries)
}
