// Package remotetest provides connection doubles that count every call and
// can fail chosen stages. Transfers are delegated to a local mirror.
package remotetest

import (
	"sync"

	"github.com/spf13/afero"

	"remote-sync/internal/config"
	"remote-sync/internal/remote"
)

// Fake wraps a local mirror connection.
type Fake struct {
	delegate remote.Connection
	cfg      *config.Connection
	factory  *Factory

	mu   sync.Mutex
	dead bool
}

func (f *Fake) call(stage string) error {
	return f.factory.record(f.cfg.Name, stage)
}

func (f *Fake) Name() string               { return f.cfg.Name }
func (f *Fake) Config() *config.Connection { return f.cfg }

func (f *Fake) Connect() error {
	if err := f.call("connect"); err != nil {
		return err
	}
	return f.delegate.Connect()
}

func (f *Fake) Authenticate() (bool, error) {
	if err := f.call("authenticate"); err != nil {
		return false, err
	}
	return f.delegate.Authenticate()
}

func (f *Fake) Login() error {
	if err := f.call("login"); err != nil {
		return err
	}
	return f.delegate.Login()
}

func (f *Fake) Cwd(p string) error {
	if err := f.call("cwd"); err != nil {
		return err
	}
	return f.delegate.Cwd(p)
}

func (f *Fake) List(localPath string) ([]remote.Metadata, error) {
	if err := f.call("list"); err != nil {
		return nil, err
	}
	return f.delegate.List(localPath)
}

func (f *Fake) Get(localPath string) error {
	if err := f.call("get"); err != nil {
		return err
	}
	return f.delegate.Get(localPath)
}

func (f *Fake) Put(localPath string) error {
	if err := f.call("put"); err != nil {
		return err
	}
	return f.delegate.Put(localPath)
}

func (f *Fake) Rename(localPath, newName string, forced bool) error {
	if err := f.call("rename"); err != nil {
		return err
	}
	if forced {
		f.factory.record(f.cfg.Name, "rename:forced")
	}
	return f.delegate.Rename(localPath, newName, forced)
}

func (f *Fake) Close() error {
	f.call("close")
	return f.delegate.Close()
}

func (f *Fake) IsAlive() bool {
	f.mu.Lock()
	dead := f.dead
	f.mu.Unlock()
	return !dead && f.delegate.IsAlive()
}

// Kill makes IsAlive report false.
func (f *Fake) Kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = true
}

// Factory builds Fakes and tallies calls per connection name and stage.
type Factory struct {
	mu    sync.Mutex
	built []*Fake
	calls map[string]int
	errs  map[string]error
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{calls: map[string]int{}, errs: map[string]error{}}
}

// New is a remote.Factory.
func (f *Factory) New(cfg *config.Connection, local afero.Fs) (remote.Connection, error) {
	delegate, err := remote.NewLocal(cfg, local)
	if err != nil {
		return nil, err
	}
	fake := &Fake{delegate: delegate, cfg: cfg, factory: f}

	f.mu.Lock()
	f.built = append(f.built, fake)
	f.mu.Unlock()
	return fake, nil
}

// Fail makes stage of connection name return err until cleared with nil.
func (f *Factory) Fail(name, stage string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, name+"/"+stage)
		return
	}
	f.errs[name+"/"+stage] = err
}

func (f *Factory) record(name, stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name+"/"+stage]++
	f.calls[stage]++
	return f.errs[name+"/"+stage]
}

// Calls returns how often stage ran, for one connection when name is set.
func (f *Factory) Calls(name, stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "" {
		return f.calls[stage]
	}
	return f.calls[name+"/"+stage]
}

// Built returns every Fake constructed so far.
func (f *Factory) Built() []*Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Fake, len(f.built))
	copy(out, f.built)
	return out
}
