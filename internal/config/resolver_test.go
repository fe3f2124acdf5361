package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNearestAncestor(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/proj/sub/deep", 0755))
	require.NoError(t, fsys.MkdirAll("/other", 0755))
	writeConfig(t, fsys, "/proj/ftpsync.settings", `{}`)
	writeConfig(t, fsys, "/proj/sub/ftpsync.settings", `{}`)

	r := NewResolver(fsys, nil)

	testCases := []struct {
		desc string
		path string
		want string
	}{
		{"file at root", "/proj/index.html", "/proj/ftpsync.settings"},
		{"nearest wins", "/proj/sub/deep/a.css", "/proj/sub/ftpsync.settings"},
		{"directory is own candidate", "/proj/sub", "/proj/sub/ftpsync.settings"},
		{"no ancestor", "/other/x.txt", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, ok := r.Resolve(tc.path)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want != "", ok)
		})
	}
}

func TestResolveCachesUntilInvalidated(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/proj/sub", 0755))

	r := NewResolver(fsys, nil)

	_, ok := r.Resolve("/proj/sub/a.txt")
	assert.False(t, ok)

	// A config created without invalidation is not seen.
	writeConfig(t, fsys, "/proj/ftpsync.settings", `{}`)
	_, ok = r.Resolve("/proj/sub/a.txt")
	assert.False(t, ok)

	r.InvalidateDirectory("/proj")
	got, ok := r.Resolve("/proj/sub/a.txt")
	assert.True(t, ok)
	assert.Equal(t, "/proj/ftpsync.settings", got)

	// A nearer config replaces the cached one after invalidation.
	writeConfig(t, fsys, "/proj/sub/ftpsync.settings", `{}`)
	got, _ = r.Resolve("/proj/sub/a.txt")
	assert.Equal(t, "/proj/ftpsync.settings", got)

	r.InvalidateDirectory("/proj/sub")
	got, _ = r.Resolve("/proj/sub/a.txt")
	assert.Equal(t, "/proj/sub/ftpsync.settings", got)
}

func TestInvalidateDirectoryLeavesOtherBranches(t *testing.T) {
	fsys := afero.NewMemMapFs()
	r := NewResolver(fsys, nil)

	r.Resolve("/a/x/file.txt")
	r.Resolve("/b/file.txt")
	require.Equal(t, 2, r.Len())

	r.InvalidateDirectory("/a")
	assert.Equal(t, 1, r.Len())
}
