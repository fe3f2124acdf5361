// Package syncer runs sync commands against the connections of the config
// file governing a path.
//
// Every top-level request runs on its own goroutine (Engine.Go). Commands
// never hold a pool while waiting for a user decision; the answer starts a
// fresh command.
package syncer

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/spf13/afero"

	"remote-sync/internal/config"
	"remote-sync/internal/decision"
	"remote-sync/internal/events"
	"remote-sync/internal/messages"
	"remote-sync/internal/pool"
	"remote-sync/internal/settings"
)

// maxCascadeDepth bounds how many generations of watch-set uploads a single
// save can start.
const maxCascadeDepth = 3

// Journal records completed transfers.
type Journal interface {
	Record(configPath, connection, localPath, direction string) error
}

// Options configures a new Engine. Zero values get defaults.
type Options struct {
	Fs        afero.Fs
	Settings  *settings.Settings
	Sink      messages.Sink
	Presenter decision.Presenter
	Journal   Journal
	Schedule  pool.Scheduler
	Bus       EventBus.Bus
	// IdleTimeout of cached pools, the settings connection_timeout by default.
	IdleTimeout time.Duration
}

// Engine owns the process-wide caches and dispatches commands.
type Engine struct {
	Fs        afero.Fs
	Settings  *settings.Settings
	Sink      messages.Sink
	Resolver  *config.Resolver
	Loader    *config.Loader
	Pool      *pool.Manager
	Decisions *decision.Registry
	Journal   Journal
	Schedule  pool.Scheduler
	Bus       EventBus.Bus

	ignore *regexp.Regexp
	wg     sync.WaitGroup

	scheduledMu sync.Mutex
	scheduled   map[string]string

	preventMu sync.Mutex
	prevent   map[string]bool

	openMu     sync.Mutex
	openChecks map[string]string
}

// New wires an Engine.
func New(opts Options) *Engine {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Settings == nil {
		opts.Settings = settings.Default()
	}
	if opts.Sink == nil {
		opts.Sink = messages.NewPrinter(opts.Settings.Debug, opts.Settings.DebugVerbose)
	}
	if opts.Schedule == nil {
		opts.Schedule = pool.AfterFunc
	}
	if opts.Bus == nil {
		opts.Bus = events.GlobalBus
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = time.Duration(opts.Settings.ConnectionTimeout) * time.Second
	}

	e := &Engine{
		Fs:         opts.Fs,
		Settings:   opts.Settings,
		Sink:       opts.Sink,
		Resolver:   config.NewResolver(opts.Fs, opts.Sink),
		Loader:     config.NewLoader(opts.Fs, opts.Settings, opts.Sink),
		Pool:       pool.NewManager(opts.Fs, opts.Sink, opts.IdleTimeout),
		Decisions:  decision.NewRegistry(opts.Presenter),
		Journal:    opts.Journal,
		Schedule:   opts.Schedule,
		Bus:        opts.Bus,
		scheduled:  map[string]string{},
		prevent:    map[string]bool{},
		openChecks: map[string]string{},
	}
	e.Pool.Schedule = opts.Schedule

	if opts.Settings.Ignore != "" {
		r, err := regexp.Compile(opts.Settings.Ignore)
		if err != nil {
			messages.Failure(e.Sink, "", "Invalid global ignore pattern", err)
		} else {
			e.ignore = r
		}
	}
	return e
}

// Go runs fn on its own goroutine. A panic is reported instead of
// terminating the process.
func (e *Engine) Go(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.guard(fn)
	}()
}

// after runs fn once d has elapsed through the engine's scheduler. Wait
// also waits for pending deferred callbacks.
func (e *Engine) after(d time.Duration, fn func()) {
	e.wg.Add(1)
	e.Schedule(d, func() {
		defer e.wg.Done()
		e.guard(fn)
	})
}

func (e *Engine) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			messages.Failure(e.Sink, "", "Unexpected failure", fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

// Wait blocks until every dispatched request and deferred callback is done.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close releases every cached connection.
func (e *Engine) Close() {
	e.Pool.CloseAll()
}

// Ignored reports whether path matches the global ignore pattern.
func (e *Engine) Ignored(path string) bool {
	return e.ignore != nil && e.ignore.MatchString(path)
}

func (e *Engine) record(cfgPath, name, path, direction string) {
	if e.Journal == nil {
		return
	}
	if err := e.Journal.Record(cfgPath, name, path, direction); err != nil {
		messages.Verbose(e.Sink, name, "Journal: %v", err)
	}
}

func (e *Engine) publishCompleted(kind, path string, names []string) {
	e.Bus.Publish(events.EventCommandCompleted, kind, path, names)
}
