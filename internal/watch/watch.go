// Package watch turns filesystem events below a project root into save
// triggers of the sync engine.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
	"github.com/spf13/afero"

	"remote-sync/internal/config"
	"remote-sync/internal/messages"
	"remote-sync/internal/syncer"
)

// Watcher feeds write events to the engine as pre-save and post-save
// triggers. It remembers the last seen modification time of every file so
// the overwrite check compares remote entries with the time before the save.
type Watcher struct {
	engine *syncer.Engine
	root   string
	events chan notify.EventInfo

	mu     sync.Mutex
	mtimes map[string]time.Time
}

// New returns a Watcher for root.
func New(engine *syncer.Engine, root string) *Watcher {
	return &Watcher{
		engine: engine,
		root:   filepath.Clean(root),
		events: make(chan notify.EventInfo, 100),
		mtimes: map[string]time.Time{},
	}
}

// Prime records the modification times of every file below the root.
func (w *Watcher) Prime() error {
	return afero.Walk(w.engine.Fs, w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != w.root && w.engine.Ignored(path+string(filepath.Separator)) {
				return filepath.SkipDir
			}
			return nil
		}
		w.mu.Lock()
		w.mtimes[path] = info.ModTime()
		w.mu.Unlock()
		return nil
	})
}

// Run watches the root recursively until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	pattern := filepath.Join(w.root, "...")
	if err := notify.Watch(pattern, w.events, notify.Create, notify.Write, notify.Rename, notify.Remove); err != nil {
		return fmt.Errorf("failed to setup file watcher: %v", err)
	}
	defer notify.Stop(w.events)

	messages.Info(w.engine.Sink, "", "Watching %s", w.root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.events:
			w.Handle(ev.Event(), ev.Path())
		}
	}
}

// Handle processes one event.
func (w *Watcher) Handle(event notify.Event, path string) {
	path = filepath.Clean(path)

	if filepath.Base(path) == config.ConfigFileName {
		if event&(notify.Create|notify.Rename|notify.Write) != 0 {
			w.engine.ConfigCreated(filepath.Dir(path))
		}
		return
	}

	if event&notify.Remove != 0 {
		w.forget(path)
		return
	}
	if w.engine.Ignored(path) {
		return
	}

	info, err := w.engine.Fs.Stat(path)
	if err != nil {
		// Renamed away.
		w.forget(path)
		return
	}
	if info.IsDir() {
		return
	}

	w.mu.Lock()
	previous, seen := w.mtimes[path]
	if seen && previous.Equal(info.ModTime()) {
		w.mu.Unlock()
		return
	}
	w.mtimes[path] = info.ModTime()
	w.mu.Unlock()

	messages.Verbose(w.engine.Sink, "", "Saved {%s}", path)
	w.engine.OnPreSave(path, previous)
	w.engine.OnPostSave(path)
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.mtimes, path)
}
