// Package pool keeps the live connections of every config file and decides
// when they have to be rebuilt.
//
// Lock order, shared with the resolver: resolver cache -> Manager.mu ->
// Manager.useMu. No lock is held across network calls.
package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"remote-sync/internal/config"
	"remote-sync/internal/messages"
	"remote-sync/internal/remote"
)

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func())

// AfterFunc is the default Scheduler.
func AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Set is the connections built for one config file, addressed by name.
type Set struct {
	hash     string
	order    []string
	conns    map[string]remote.Connection
	hashes   map[string]uint64
	failures map[string]error
}

func newSet(hash string) *Set {
	return &Set{
		hash:     hash,
		conns:    map[string]remote.Connection{},
		hashes:   map[string]uint64{},
		failures: map[string]error{},
	}
}

// Hash is the config path hash the set belongs to.
func (s *Set) Hash() string { return s.hash }

// Get returns the live handle of name.
func (s *Set) Get(name string) (remote.Connection, error) {
	c, ok := s.conns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotConnected, name)
	}
	return c, nil
}

// Names returns connected names in declared order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of live handles.
func (s *Set) Len() int { return len(s.order) }

// Failure returns why name could not be connected, nil if it was.
func (s *Set) Failure(name string) error { return s.failures[name] }

func (s *Set) add(name string, c remote.Connection, hash uint64) {
	if _, ok := s.conns[name]; ok {
		return
	}
	s.order = append(s.order, name)
	s.conns[name] = c
	s.hashes[name] = hash
}

func (s *Set) close() {
	for _, name := range s.order {
		_ = s.conns[name].Close()
	}
}

// Manager is the process-wide pool cache keyed by config path hash.
type Manager struct {
	Fs   afero.Fs
	Sink messages.Sink
	// New constructs connections, remote.New by default.
	New func(cfg *config.Connection, local afero.Fs) (remote.Connection, error)
	// IdleTimeout closes a pool that was not used for this long. Zero
	// disables idle expiry.
	IdleTimeout time.Duration
	Schedule    Scheduler

	group singleflight.Group

	mu   sync.Mutex
	sets map[string]*Set

	useMu sync.Mutex
	inUse map[string]int
}

// NewManager returns a Manager with default wiring.
func NewManager(fsys afero.Fs, sink messages.Sink, idle time.Duration) *Manager {
	if sink == nil {
		sink = messages.Discard{}
	}
	return &Manager{
		Fs:          fsys,
		Sink:        sink,
		New:         remote.New,
		IdleTimeout: idle,
		Schedule:    AfterFunc,
		sets:        map[string]*Set{},
		inUse:       map[string]int{},
	}
}

// Acquire returns the pool of cfg, rebuilding it when the cached one is
// stale. Concurrent rebuilds of the same hash run once.
func (m *Manager) Acquire(hash string, cfg *config.Config) *Set {
	if set := m.cached(hash, cfg); set != nil {
		messages.Verbose(m.Sink, "", "Using cached connections (%s)", hash)
		return set
	}

	v, _, _ := m.group.Do(hash, func() (interface{}, error) {
		if set := m.cached(hash, cfg); set != nil {
			return set, nil
		}

		set := m.build(hash, cfg)

		m.mu.Lock()
		old := m.sets[hash]
		m.sets[hash] = set
		m.mu.Unlock()

		if old != nil && old != set {
			old.close()
		}
		m.armIdle(hash, set)
		return set, nil
	})
	return v.(*Set)
}

// cached returns the stored set when it still matches cfg. A stale set is
// evicted and closed.
func (m *Manager) cached(hash string, cfg *config.Config) *Set {
	m.mu.Lock()
	set := m.sets[hash]
	m.mu.Unlock()

	if set == nil {
		return nil
	}
	if reason := stale(set, cfg); reason != "" {
		messages.Verbose(m.Sink, "", "Rebuilding connections: %s", reason)
		m.evict(hash, set)
		return nil
	}
	return set
}

func stale(set *Set, cfg *config.Config) string {
	declared := 0
	for _, name := range cfg.Connections.Names() {
		conn, _ := cfg.Connections.Get(name)
		if conn.Invalid != nil {
			continue
		}
		declared++

		h, ok := set.hashes[name]
		if !ok {
			return "connection " + name + " is missing"
		}
		if h != conn.Hash() {
			return "configuration of " + name + " changed"
		}
	}
	if set.Len() < declared {
		return "connection count mismatch"
	}
	for _, name := range set.order {
		if !set.conns[name].IsAlive() {
			return "connection " + name + " is not alive"
		}
	}
	return ""
}

func (m *Manager) evict(hash string, set *Set) {
	m.mu.Lock()
	if m.sets[hash] == set {
		delete(m.sets, hash)
	}
	m.mu.Unlock()
	set.close()
}

// build runs the connection pipeline for every declared name. A failing
// name is skipped, the others still connect.
func (m *Manager) build(hash string, cfg *config.Config) *Set {
	set := newSet(hash)

	for _, name := range cfg.Connections.Names() {
		props, _ := cfg.Connections.Get(name)
		if props.Invalid != nil {
			set.failures[name] = props.Invalid
			continue
		}
		if _, ok := set.conns[name]; ok {
			continue
		}

		conn, err := m.connect(props)
		if err != nil {
			set.failures[name] = err
			continue
		}
		set.add(name, conn, props.Hash())
	}

	return set
}

func (m *Manager) connect(props *config.Connection) (remote.Connection, error) {
	name := props.Name

	conn, err := m.New(props, m.Fs)
	if err != nil {
		messages.Failure(m.Sink, name, "Connection initialization failed", err)
		return nil, err
	}

	fail := func(text string, err error) (remote.Connection, error) {
		messages.Failure(m.Sink, name, text, err)
		_ = conn.Close()
		return nil, err
	}

	messages.Verbose(m.Sink, name, "Connecting to %s:%d", props.Host, props.Port)
	if err := conn.Connect(); err != nil {
		return fail("Connection failed", err)
	}

	secure, err := conn.Authenticate()
	if err != nil {
		return fail("Authentication failed", err)
	}
	if secure {
		messages.Verbose(m.Sink, name, "Secure channel established")
	}

	if props.Anonymous() {
		messages.Verbose(m.Sink, name, "Anonymous connection, login skipped")
	} else if err := conn.Login(); err != nil {
		return fail("Login failed", err)
	}

	if err := conn.Cwd(props.Path); err != nil {
		return fail("Failed to change to remote path "+props.Path, err)
	}

	messages.Info(m.Sink, name, "Connected")
	return conn, nil
}

func (m *Manager) armIdle(hash string, set *Set) {
	if m.IdleTimeout <= 0 {
		return
	}
	m.Schedule(m.IdleTimeout, func() { m.idle(hash, set) })
}

// idle closes the pool unless a command is using it, in which case it
// looks again after another IdleTimeout.
func (m *Manager) idle(hash string, set *Set) {
	m.mu.Lock()
	if m.sets[hash] != set {
		m.mu.Unlock()
		return
	}
	if m.InUse(hash) {
		m.mu.Unlock()
		m.armIdle(hash, set)
		return
	}
	delete(m.sets, hash)
	m.mu.Unlock()

	messages.Verbose(m.Sink, "", "Closing idle connections (%s)", hash)
	set.close()
}

// Use marks hash as in use until the returned func is called.
func (m *Manager) Use(hash string) (done func()) {
	m.useMu.Lock()
	m.inUse[hash]++
	m.useMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.useMu.Lock()
			defer m.useMu.Unlock()
			if m.inUse[hash] <= 1 {
				delete(m.inUse, hash)
				return
			}
			m.inUse[hash]--
		})
	}
}

// InUse reports whether a command currently holds hash.
func (m *Manager) InUse(hash string) bool {
	m.useMu.Lock()
	defer m.useMu.Unlock()
	return m.inUse[hash] > 0
}

// Release closes and evicts the pool of hash.
func (m *Manager) Release(hash string) {
	m.mu.Lock()
	set := m.sets[hash]
	delete(m.sets, hash)
	m.mu.Unlock()

	if set != nil {
		messages.Verbose(m.Sink, "", "Releasing connections (%s)", hash)
		set.close()
	}
}

// Cached reports whether a pool is stored for hash.
func (m *Manager) Cached(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sets[hash]
	return ok
}

// CloseAll closes every pool.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sets := m.sets
	m.sets = map[string]*Set{}
	m.mu.Unlock()

	for _, set := range sets {
		set.close()
	}
}
