// Package remote wraps the protocols a connection can speak behind one
// capability interface.
package remote

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"remote-sync/internal/config"
)

var (
	// ErrTargetAlreadyExists is returned by Rename when the new name is taken
	// and the rename was not forced.
	ErrTargetAlreadyExists = errors.New("target already exists")
	// ErrSessionTerminated means the underlying session is gone; the whole
	// pool it belongs to must be released.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrNotConnected is returned for a connection name that has no live
	// handle in a pool.
	ErrNotConnected = errors.New("not connected")
	// ErrNotFound is returned by List for a path absent on the remote.
	ErrNotFound = errors.New("remote path not found")
)

// Connection is one live remote endpoint. Paths are local paths under the
// config directory; the implementation maps them onto the remote root.
type Connection interface {
	Name() string
	Config() *config.Connection

	Connect() error
	// Authenticate runs the protocol level handshake and reports whether a
	// secured channel was negotiated.
	Authenticate() (bool, error)
	Login() error
	Cwd(remotePath string) error

	// List returns the entry for a file path, or the children of a
	// directory path.
	List(localPath string) ([]Metadata, error)
	Get(localPath string) error
	Put(localPath string) error
	Rename(localPath, newName string, forced bool) error

	Close() error
	IsAlive() bool
}

// Metadata describes one remote entry.
type Metadata struct {
	Name    string
	ModTime time.Time
	Size    int64
	IsDir   bool
}

// IsNewerThan reports whether the remote entry was modified after t.
// Timestamps are compared at second precision, the best most servers offer.
func (m Metadata) IsNewerThan(t time.Time) bool {
	return m.ModTime.Truncate(time.Second).After(t.Truncate(time.Second))
}

// IsDifferentSize reports whether the remote size differs from size.
func (m Metadata) IsDifferentSize(size int64) bool {
	return m.Size != size
}

// IsSessionTerminated classifies errors that mean the connection is dead.
func IsSessionTerminated(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionTerminated) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code == 421 {
		return true
	}
	return false
}

// Factory builds an unconnected Connection. local is the filesystem the
// local side of every transfer lives on.
type Factory func(cfg *config.Connection, local afero.Fs) (Connection, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register binds a protocol name to a factory, replacing any previous one.
func Register(protocol string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(protocol)] = f
}

// Protocols lists the registered protocol names.
func Protocols() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New constructs a connection for cfg using its protocol's factory.
func New(cfg *config.Connection, local afero.Fs) (Connection, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(cfg.Protocol)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown protocol %q", cfg.Protocol)
	}
	return f(cfg, local)
}

func init() {
	Register("ftp", NewFTP)
	Register("sftp", NewSFTP)
	Register("local", NewLocal)
}

// pathMapper translates local paths under the config directory into remote
// paths under the connection's root.
type pathMapper struct {
	localRoot  string
	remoteRoot string
}

func newPathMapper(cfg *config.Connection) pathMapper {
	root := cfg.Path
	if root == "" {
		root = "/"
	}
	return pathMapper{
		localRoot:  filepath.Dir(cfg.FilePath),
		remoteRoot: root,
	}
}

func (p pathMapper) remote(localPath string) (string, error) {
	rel, err := filepath.Rel(p.localRoot, localPath)
	if err != nil {
		return "", fmt.Errorf("failed to map %s: %w", localPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside of %s", localPath, p.localRoot)
	}
	return path.Join(p.remoteRoot, filepath.ToSlash(rel)), nil
}

func withOffset(t time.Time, offsetSeconds int) time.Time {
	return t.Add(time.Duration(offsetSeconds) * time.Second)
}

// copyToLocal writes r into localPath, creating parent directories.
func copyToLocal(fsys afero.Fs, localPath string, r io.Reader) error {
	if err := fsys.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create local directories: %w", err)
	}
	f, err := fsys.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to copy file data: %w", err)
	}
	return f.Close()
}
