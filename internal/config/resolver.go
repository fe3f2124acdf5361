package config

import (
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"remote-sync/internal/messages"
	"remote-sync/internal/util"
)

// Resolver maps paths to the nearest config file above them and remembers
// the answer, including "none found", until invalidated.
type Resolver struct {
	fs   afero.Fs
	sink messages.Sink

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver returns an empty resolver over fsys.
func NewResolver(fsys afero.Fs, sink messages.Sink) *Resolver {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if sink == nil {
		sink = messages.Discard{}
	}
	return &Resolver{fs: fsys, sink: sink, cache: map[string]string{}}
}

// Resolve returns the config file governing path. A directory path is its
// own first candidate.
func (r *Resolver) Resolve(path string) (string, bool) {
	path = filepath.Clean(path)

	r.mu.Lock()
	cached, hit := r.cache[path]
	r.mu.Unlock()

	if hit {
		messages.Verbose(r.sink, "", "Loading config: cache hit (key: %s)", path)
		return cached, cached != ""
	}

	found := r.walk(path)

	r.mu.Lock()
	r.cache[path] = found
	r.mu.Unlock()

	if found == "" {
		messages.Verbose(r.sink, "", "Loading config: no config file for %s", path)
	} else {
		messages.Verbose(r.sink, "", "Loading config: %s for %s", found, path)
	}
	return found, found != ""
}

func (r *Resolver) walk(path string) string {
	isDir, _ := afero.IsDir(r.fs, path)
	for _, dir := range util.Ancestors(path, isDir) {
		candidate := filepath.Join(dir, ConfigFileName)
		if ok, _ := afero.Exists(r.fs, candidate); ok {
			return candidate
		}
	}
	return ""
}

// InvalidateDirectory drops cached entries whose directory and dir lie on
// the same branch of the tree, so a config created at dir is found next time.
func (r *Resolver) InvalidateDirectory(dir string) {
	dir = filepath.Clean(dir)

	r.mu.Lock()
	defer r.mu.Unlock()

	for path := range r.cache {
		entryDir := filepath.Dir(path)
		if util.IsWithin(entryDir, dir) || util.IsWithin(dir, entryDir) || path == dir {
			delete(r.cache, path)
		}
	}
}

// Invalidate drops the cached entry of a single path.
func (r *Resolver) Invalidate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, filepath.Clean(path))
}

// Len returns the number of cached paths.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
