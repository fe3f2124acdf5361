package syncer

import (
	"time"

	"github.com/google/uuid"

	"remote-sync/internal/config"
	"remote-sync/internal/ledger"
	"remote-sync/internal/messages"
	"remote-sync/internal/remote"
)

// UploadOptions parameterize an Upload command.
type UploadOptions struct {
	// OnSave marks uploads triggered by a save: only upload_on_save
	// connections apply and upload_delay is honored.
	OnSave          bool
	Whitelist       []string
	DisregardIgnore bool
	Progress        *messages.Progress

	depth int
}

// Upload puts path on every applicable connection and returns the names it
// succeeded for. Delayed on-save uploads are scheduled and not included.
func (e *Engine) Upload(path string, opts UploadOptions) []string {
	c := e.newCommand(KindUpload, path, filter{
		onSave:          opts.OnSave,
		whitelist:       opts.Whitelist,
		disregardIgnore: opts.DisregardIgnore,
	})
	defer c.finish()

	if !c.ready() {
		if opts.Progress != nil {
			opts.Progress.Step()
		}
		return nil
	}

	for _, name := range c.names() {
		conn, _ := c.cfg.Connections.Get(name)
		if opts.OnSave && conn.UploadDelay > 0 {
			e.scheduleUpload(c.cfg, conn, c.path, opts.depth)
			c.cfg.Connections.Remove(name)
		}
	}
	if c.cfg.Connections.Len() == 0 {
		return nil
	}

	done := c.each(func(conn remote.Connection) error {
		messages.Verbose(e.Sink, conn.Name(), "Uploading {%s}", c.display)
		if err := conn.Put(c.path); err != nil {
			return err
		}
		e.record(c.cfg.FilePath, conn.Name(), c.path, ledger.Upload)
		return nil
	})

	c.report(done, opts.Progress, "uploaded")
	return done
}

func scheduleKey(path, name string) string {
	return path + "\x00" + name
}

// scheduleUpload arms a delayed upload of path to conn. A later schedule of
// the same path and connection supersedes this one.
func (e *Engine) scheduleUpload(cfg *config.Config, conn *config.Connection, path string, depth int) {
	key := scheduleKey(path, conn.Name)
	token := uuid.NewString()

	e.scheduledMu.Lock()
	e.scheduled[key] = token
	e.scheduledMu.Unlock()

	before := e.snapshot(cfg.Dir(), conn.AfterSaveWatch)
	delay := time.Duration(conn.UploadDelay) * time.Second
	messages.Status(e.Sink, conn.Name, "Scheduled upload in %d second(s) {%s}", conn.UploadDelay, path)

	e.after(delay, func() {
		if !e.consumeToken(key, token) {
			messages.Verbose(e.Sink, conn.Name, "Delayed upload superseded {%s}", path)
			return
		}

		e.Upload(path, UploadOptions{Whitelist: []string{conn.Name}, depth: depth})

		after := e.snapshot(cfg.Dir(), conn.AfterSaveWatch)
		e.cascade(path, conn.Name, changed(before, after), depth+1)
	})
}

// consumeToken removes key if token is still the current one.
func (e *Engine) consumeToken(key, token string) bool {
	e.scheduledMu.Lock()
	defer e.scheduledMu.Unlock()
	if e.scheduled[key] != token {
		return false
	}
	delete(e.scheduled, key)
	return true
}

// Scheduled returns the number of pending delayed uploads.
func (e *Engine) Scheduled() int {
	e.scheduledMu.Lock()
	defer e.scheduledMu.Unlock()
	return len(e.scheduled)
}

// cascade uploads files of the watch set that appeared or changed while a
// delayed upload was pending.
func (e *Engine) cascade(origin, name string, files []string, depth int) {
	if len(files) == 0 {
		return
	}
	if depth > maxCascadeDepth {
		messages.Info(e.Sink, name, "Watch cascade depth exceeded, not uploading %d file(s)", len(files))
		return
	}

	for _, f := range files {
		if f == origin {
			continue
		}
		messages.Verbose(e.Sink, name, "Watched file changed {%s}", f)
		e.Upload(f, UploadOptions{
			Whitelist:       []string{name},
			DisregardIgnore: true,
			depth:           depth,
		})
	}
}
