package remote

import (
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/spf13/afero"

	"remote-sync/internal/config"
)

// Local mirrors files into a directory of the same filesystem, e.g. a mounted
// network share. The connection's path is the mirror root.
type Local struct {
	cfg    *config.Connection
	fs     afero.Fs
	mapper pathMapper

	mu        sync.Mutex
	connected bool
	closed    bool
}

// NewLocal is the Factory of the "local" protocol.
func NewLocal(cfg *config.Connection, local afero.Fs) (Connection, error) {
	if local == nil {
		local = afero.NewOsFs()
	}
	return &Local{cfg: cfg, fs: local, mapper: newPathMapper(cfg)}, nil
}

func (l *Local) Name() string               { return l.cfg.Name }
func (l *Local) Config() *config.Connection { return l.cfg }

func (l *Local) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrSessionTerminated
	}
	l.connected = true
	return nil
}

func (l *Local) Authenticate() (bool, error) {
	return false, l.alive()
}

func (l *Local) Login() error {
	return l.alive()
}

func (l *Local) Cwd(remotePath string) error {
	if err := l.alive(); err != nil {
		return err
	}
	ok, err := afero.DirExists(l.fs, remotePath)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("remote directory %s does not exist", remotePath)
	}
	return nil
}

func (l *Local) List(localPath string) ([]Metadata, error) {
	if err := l.alive(); err != nil {
		return nil, err
	}
	target, err := l.mapper.remote(localPath)
	if err != nil {
		return nil, err
	}

	info, err := l.fs.Stat(target)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []Metadata{l.metadata(info)}, nil
	}

	children, err := afero.ReadDir(l.fs, target)
	if err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(children))
	for _, c := range children {
		out = append(out, l.metadata(c))
	}
	return out, nil
}

func (l *Local) metadata(info os.FileInfo) Metadata {
	return Metadata{
		Name:    info.Name(),
		ModTime: withOffset(info.ModTime(), l.cfg.TimeOffset),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
	}
}

func (l *Local) Get(localPath string) error {
	if err := l.alive(); err != nil {
		return err
	}
	source, err := l.mapper.remote(localPath)
	if err != nil {
		return err
	}

	info, err := l.fs.Stat(source)
	if err != nil {
		return fmt.Errorf("failed to stat remote file: %w", err)
	}
	if info.IsDir() {
		return l.fs.MkdirAll(localPath, 0755)
	}

	f, err := l.fs.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer f.Close()

	if err := copyToLocal(l.fs, localPath, f); err != nil {
		return err
	}
	return l.fs.Chtimes(localPath, info.ModTime(), info.ModTime())
}

func (l *Local) Put(localPath string) error {
	if err := l.alive(); err != nil {
		return err
	}
	target, err := l.mapper.remote(localPath)
	if err != nil {
		return err
	}

	info, err := l.fs.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat local file: %w", err)
	}
	if info.IsDir() {
		return l.fs.MkdirAll(target, 0755)
	}

	if err := l.fs.MkdirAll(path.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	data, err := afero.ReadFile(l.fs, localPath)
	if err != nil {
		return fmt.Errorf("failed to read local file: %w", err)
	}
	if err := afero.WriteFile(l.fs, target, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write remote file: %w", err)
	}
	return l.fs.Chtimes(target, info.ModTime(), info.ModTime())
}

func (l *Local) Rename(localPath, newName string, forced bool) error {
	if err := l.alive(); err != nil {
		return err
	}
	source, err := l.mapper.remote(localPath)
	if err != nil {
		return err
	}
	target := path.Join(path.Dir(source), newName)
	if target == source {
		return nil
	}

	exists, err := afero.Exists(l.fs, target)
	if err != nil {
		return err
	}
	if exists {
		if !forced {
			return fmt.Errorf("%w: %s", ErrTargetAlreadyExists, target)
		}
		if err := l.fs.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to replace %s: %w", target, err)
		}
	}
	return l.fs.Rename(source, target)
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.connected = false
	return nil
}

func (l *Local) IsAlive() bool {
	return l.alive() == nil
}

func (l *Local) alive() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.connected {
		return ErrSessionTerminated
	}
	return nil
}
