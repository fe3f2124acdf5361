package syncer

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"remote-sync/internal/config"
	"remote-sync/internal/events"
	"remote-sync/internal/messages"
)

// The trigger surface. Each trigger runs its command on a goroutine of its
// own and returns immediately; Wait joins them.

// OnOpen schedules a staleness check of path after the configured delay.
// Closing the file before the delay elapses cancels it.
func (e *Engine) OnOpen(path string) {
	if e.Ignored(path) {
		return
	}
	key := filepath.Clean(path)
	token := uuid.NewString()

	e.openMu.Lock()
	e.openChecks[key] = token
	e.openMu.Unlock()

	delay := time.Duration(e.Settings.DownloadOnOpenDelay) * time.Millisecond
	e.after(delay, func() {
		e.openMu.Lock()
		current := e.openChecks[key] == token
		if current {
			delete(e.openChecks, key)
		}
		e.openMu.Unlock()

		if current {
			e.Check(path, false)
		}
	})
}

// OnPreSave runs the overwrite prevention check. It runs synchronously so
// the following OnPostSave sees its verdict.
func (e *Engine) OnPreSave(path string, previous time.Time) {
	e.guard(func() { e.PreSave(path, previous) })
}

// OnPostSave uploads a saved file.
func (e *Engine) OnPostSave(path string) {
	e.Go(func() { e.PostSave(path) })
}

// OnClose cancels a pending open check and releases the connections of the
// file's config.
func (e *Engine) OnClose(path string) {
	key := filepath.Clean(path)

	e.openMu.Lock()
	delete(e.openChecks, key)
	e.openMu.Unlock()

	configPath, ok := e.Resolver.Resolve(key)
	if !ok {
		return
	}
	e.Pool.Release(config.PathHash(configPath))
}

// UploadPaths uploads files and directory trees with one shared progress.
func (e *Engine) UploadPaths(paths []string) {
	e.Go(func() {
		files := e.expand(paths)
		progress := messages.NewProgress(len(files))
		progress.Add(files...)
		for _, f := range files {
			e.Upload(f, UploadOptions{Progress: progress})
		}
	})
}

// DownloadPaths downloads files and directory trees with one shared progress.
func (e *Engine) DownloadPaths(paths []string, forced bool) {
	e.Go(func() {
		progress := messages.NewProgress(0)
		progress.Add(paths...)
		for _, p := range paths {
			e.Download(p, DownloadOptions{Forced: forced, Progress: progress})
		}
	})
}

// RenamePath renames path to newName.
func (e *Engine) RenamePath(path, newName string) {
	e.Go(func() { e.Rename(path, newName) })
}

// CheckPath runs a forced staleness check against every connection.
func (e *Engine) CheckPath(path string) {
	e.Go(func() { e.Check(path, true) })
}

// NewSettings creates a config file in dir from the default template and
// makes every cached path below it resolve again.
func (e *Engine) NewSettings(dir string) (string, error) {
	path, created, err := config.NewSettingsFile(e.Fs, dir)
	if err != nil {
		messages.Failure(e.Sink, "", "Settings file could not be created", err)
		return "", err
	}
	if !created {
		messages.Status(e.Sink, "", "Settings file already exists {%s}", path)
		return path, nil
	}

	e.ConfigCreated(dir)
	messages.Status(e.Sink, "", "Settings file created {%s}", path)
	return path, nil
}

// ConfigCreated invalidates cached resolutions affected by a config file
// appearing in dir.
func (e *Engine) ConfigCreated(dir string) {
	e.Resolver.InvalidateDirectory(dir)
	e.Bus.Publish(events.EventConfigCreated, dir)
}

// expand lists the files below every directory of paths. Empty directories
// are kept so they are created remotely too.
func (e *Engine) expand(paths []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, root := range paths {
		root = filepath.Clean(root)
		info, err := e.Fs.Stat(root)
		if err != nil || !info.IsDir() {
			add(root)
			continue
		}

		var found []string
		_ = afero.Walk(e.Fs, root, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if e.Ignored(p) {
				if fi.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !fi.IsDir() {
				found = append(found, p)
				return nil
			}
			if empty, _ := afero.IsEmpty(e.Fs, p); empty {
				found = append(found, p)
			}
			return nil
		})
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return out
}
