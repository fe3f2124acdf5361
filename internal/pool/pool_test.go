package pool

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remote-sync/internal/config"
	"remote-sync/internal/remote"
	"remote-sync/internal/remote/remotetest"
)

const configPath = "/proj/ftpsync.settings"

type fixture struct {
	fs      afero.Fs
	factory *remotetest.Factory
	manager *Manager
	timers  []func()
	mu      sync.Mutex
}

func newFixture(t *testing.T, body string) *fixture {
	t.Helper()
	f := &fixture{fs: afero.NewMemMapFs(), factory: remotetest.NewFactory()}
	require.NoError(t, f.fs.MkdirAll("/mirror/a", 0755))
	require.NoError(t, f.fs.MkdirAll("/mirror/b", 0755))
	f.write(t, body)

	f.manager = NewManager(f.fs, nil, time.Minute)
	f.manager.New = f.factory.New
	f.manager.Schedule = func(d time.Duration, fn func()) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.timers = append(f.timers, fn)
	}
	return f
}

func (f *fixture) write(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, configPath, []byte(body), 0644))
}

func (f *fixture) load(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.NewLoader(f.fs, nil, nil).Load(configPath)
	require.NoError(t, err)
	return cfg
}

// fire runs the pending idle timers once.
func (f *fixture) fire() {
	f.mu.Lock()
	timers := f.timers
	f.timers = nil
	f.mu.Unlock()
	for _, fn := range timers {
		fn()
	}
}

const twoConnections = `{
	"a": {"protocol": "local", "path": "/mirror/a", "username": "u"},
	"b": {"protocol": "local", "path": "/mirror/b"}
}`

func TestAcquireReusesUnchangedConfig(t *testing.T) {
	f := newFixture(t, twoConnections)
	hash := config.PathHash(configPath)

	first := f.manager.Acquire(hash, f.load(t))
	second := f.manager.Acquire(hash, f.load(t))

	assert.Same(t, first, second)
	assert.Equal(t, 2, f.factory.Calls("", "connect"))
	assert.Equal(t, []string{"a", "b"}, first.Names())
}

func TestAcquireRebuildsOnChange(t *testing.T) {
	f := newFixture(t, twoConnections)
	hash := config.PathHash(configPath)

	first := f.manager.Acquire(hash, f.load(t))

	f.write(t, `{
		"a": {"protocol": "local", "path": "/mirror/a", "username": "u", "timeout": 5},
		"b": {"protocol": "local", "path": "/mirror/b"}
	}`)
	second := f.manager.Acquire(hash, f.load(t))

	assert.NotSame(t, first, second)
	assert.Equal(t, 4, f.factory.Calls("", "connect"))
	assert.Equal(t, 2, f.factory.Calls("", "close"))
}

func TestAcquireRebuildsDeadConnection(t *testing.T) {
	f := newFixture(t, twoConnections)
	hash := config.PathHash(configPath)

	f.manager.Acquire(hash, f.load(t))
	f.factory.Built()[1].Kill()

	set := f.manager.Acquire(hash, f.load(t))
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 4, f.factory.Calls("", "connect"))
}

func TestPartialBuild(t *testing.T) {
	f := newFixture(t, twoConnections)
	hash := config.PathHash(configPath)
	f.factory.Fail("a", "login", errors.New("530 login incorrect"))

	set := f.manager.Acquire(hash, f.load(t))

	assert.Equal(t, []string{"b"}, set.Names())
	_, err := set.Get("a")
	assert.ErrorIs(t, err, remote.ErrNotConnected)
	assert.Error(t, set.Failure("a"))
	assert.Equal(t, 1, f.factory.Calls("a", "close"))

	conn, err := set.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "b", conn.Name())
	assert.Zero(t, f.factory.Calls("b", "login"), "anonymous connections skip login")
}

func TestIdleExpiryWaitsForUse(t *testing.T) {
	f := newFixture(t, twoConnections)
	hash := config.PathHash(configPath)

	f.manager.Acquire(hash, f.load(t))
	done := f.manager.Use(hash)

	f.fire()
	assert.True(t, f.manager.Cached(hash), "in-use pool survives the idle poll")

	done()
	done()
	assert.False(t, f.manager.InUse(hash))

	f.fire()
	assert.False(t, f.manager.Cached(hash))
	assert.Equal(t, 2, f.factory.Calls("", "close"))
}

func TestRelease(t *testing.T) {
	f := newFixture(t, twoConnections)
	hash := config.PathHash(configPath)

	f.manager.Acquire(hash, f.load(t))
	f.manager.Release(hash)

	assert.False(t, f.manager.Cached(hash))
	assert.Equal(t, 2, f.factory.Calls("", "close"))

	// A stale idle timer of the released pool does nothing.
	f.fire()
	assert.Equal(t, 2, f.factory.Calls("", "close"))
}

func TestConcurrentAcquire(t *testing.T) {
	f := newFixture(t, twoConnections)
	hash := config.PathHash(configPath)
	cfg := f.load(t)

	var wg sync.WaitGroup
	sets := make([]*Set, 8)
	for i := range sets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sets[i] = f.manager.Acquire(hash, cfg)
		}(i)
	}
	wg.Wait()

	for _, s := range sets {
		assert.Equal(t, 2, s.Len())
	}
	assert.True(t, f.manager.Cached(hash))
}
