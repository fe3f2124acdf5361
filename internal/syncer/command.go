package syncer

import (
	"fmt"
	"path/filepath"

	"remote-sync/internal/config"
	"remote-sync/internal/messages"
	"remote-sync/internal/pool"
	"remote-sync/internal/remote"
)

const (
	KindUpload      = "Upload"
	KindDownload    = "Download"
	KindRename      = "Rename"
	KindGetMetadata = "GetMetadata"
)

// filter selects the connections a command applies to.
type filter struct {
	onSave          bool
	whitelist       []string
	disregardIgnore bool
	keep            func(c *config.Connection) bool
}

// command is the shared lifecycle of every command kind: construct, filter,
// guard, execute per connection, report.
type command struct {
	engine *Engine
	kind   string
	path   string

	cfg     *config.Config
	set     *pool.Set
	hash    string
	display string

	closed string
	done   func()
}

// newCommand resolves and loads the config of path, acquires its pool and
// applies f. The returned command must be finished.
func (e *Engine) newCommand(kind, path string, f filter) *command {
	c := &command{engine: e, kind: kind, path: filepath.Clean(path), done: func() {}}
	c.display = filepath.Base(c.path)

	configPath, ok := e.Resolver.Resolve(c.path)
	if !ok {
		c.closed = "no config file found"
		return c
	}

	cfg, err := e.Loader.Load(configPath)
	if err != nil {
		c.closed = "config could not be loaded"
		return c
	}
	c.cfg = cfg
	if rel, err := filepath.Rel(cfg.Dir(), c.path); err == nil {
		c.display = filepath.ToSlash(rel)
	}

	if !f.disregardIgnore && e.Ignored(c.path) {
		c.closed = "path is ignored"
		return c
	}

	// The pool always covers every declared connection so commands with
	// different filters share it.
	full := cfg.Clone()
	c.applyFilter(f)
	if cfg.Connections.Len() == 0 {
		return c
	}

	c.hash = config.PathHash(configPath)
	c.done = e.Pool.Use(c.hash)
	c.set = e.Pool.Acquire(c.hash, full)
	return c
}

func (c *command) applyFilter(f filter) {
	c.cfg.Whitelist(f.whitelist)
	c.cfg.Filter(func(conn *config.Connection) bool {
		if !f.disregardIgnore && conn.IgnoreMatch(c.path) {
			return false
		}
		if f.onSave && !conn.UploadOnSave {
			return false
		}
		if f.keep != nil && !f.keep(conn) {
			return false
		}
		return true
	})
}

// ready reports whether the command has work to do, emitting a single
// cancellation diagnostic when it has none.
func (c *command) ready() bool {
	reason := c.closed
	if reason == "" && c.cfg.Connections.Len() == 0 {
		reason = "zero connections apply"
	}
	if reason == "" {
		return true
	}
	messages.Info(c.engine.Sink, "", "Cancelling %s: %s {%s}", c.kind, reason, c.display)
	return false
}

func (c *command) finish() {
	c.done()
}

// names returns the applicable connection names in declared order.
func (c *command) names() []string {
	if c.cfg == nil {
		return nil
	}
	return c.cfg.Connections.Names()
}

// each runs fn for every applicable connection that has a live handle and
// returns the names it succeeded for. One connection's failure never stops
// the loop.
func (c *command) each(fn func(conn remote.Connection) error) []string {
	var succeeded []string
	sink := c.engine.Sink

	for _, name := range c.names() {
		conn, err := c.set.Get(name)
		if err != nil {
			messages.Verbose(sink, name, "Skipping %s: %v", c.kind, err)
			continue
		}

		if err := fn(conn); err != nil {
			if remote.IsSessionTerminated(err) {
				c.engine.Pool.Release(c.hash)
				messages.Status(sink, name, "Connection has been terminated, please retry your action")
				continue
			}
			messages.Failure(sink, name, fmt.Sprintf("%s failed {%s}", c.kind, c.display), err)
			continue
		}
		succeeded = append(succeeded, name)
	}
	return succeeded
}

// report emits the summary status of a command.
func (c *command) report(succeeded []string, progress *messages.Progress, action string) {
	if progress != nil {
		progress.Step()
	}
	if len(succeeded) == 0 {
		return
	}
	messages.Report(c.engine.Sink, messages.ProgressMessage(succeeded, progress, action, c.display))
	c.engine.publishCompleted(c.kind, c.path, succeeded)
}
