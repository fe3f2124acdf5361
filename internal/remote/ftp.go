package remote

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/spf13/afero"

	"remote-sync/internal/config"
)

// FTP is an FTP or explicit-TLS FTPS connection. The control channel
// carries one command at a time, so every operation holds io until its
// reply and data transfer are complete.
type FTP struct {
	cfg    *config.Connection
	local  afero.Fs
	mapper pathMapper

	io       sync.Mutex
	mu       sync.Mutex
	conn     *ftp.ServerConn
	loggedIn bool
}

// NewFTP is the Factory of the "ftp" protocol.
func NewFTP(cfg *config.Connection, local afero.Fs) (Connection, error) {
	if local == nil {
		local = afero.NewOsFs()
	}
	return &FTP{cfg: cfg, local: local, mapper: newPathMapper(cfg)}, nil
}

func (f *FTP) Name() string               { return f.cfg.Name }
func (f *FTP) Config() *config.Connection { return f.cfg }

func (f *FTP) Connect() error {
	addr := net.JoinHostPort(f.cfg.Host, strconv.Itoa(f.cfg.Port))

	opts := []ftp.DialOption{
		ftp.DialWithTimeout(time.Duration(f.cfg.Timeout) * time.Second),
		// EPSV is skipped for passive connections, some NAT'ed servers
		// announce unreachable ports through it.
		ftp.DialWithDisabledEPSV(f.cfg.Passive),
	}
	if f.cfg.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: f.cfg.Host}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	f.mu.Lock()
	f.conn = conn
	f.loggedIn = false
	f.mu.Unlock()
	return nil
}

// Authenticate reports the TLS state; the AUTH TLS exchange itself happens
// while dialing.
func (f *FTP) Authenticate() (bool, error) {
	if _, err := f.session(); err != nil {
		return false, err
	}
	return f.cfg.TLS, nil
}

func (f *FTP) Login() error {
	return f.exclusive(func(conn *ftp.ServerConn) error {
		user := ""
		if f.cfg.Username != nil {
			user = *f.cfg.Username
		}
		if err := conn.Login(user, f.cfg.Password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		f.setLoggedIn()
		return nil
	})
}

func (f *FTP) Cwd(remotePath string) error {
	return f.exclusive(func(conn *ftp.ServerConn) error {
		// Servers refuse every command before USER/PASS, anonymous included.
		f.mu.Lock()
		needsLogin := !f.loggedIn
		f.mu.Unlock()
		if needsLogin {
			if err := conn.Login("anonymous", "anonymous"); err != nil {
				return fmt.Errorf("anonymous login failed: %w", err)
			}
			f.setLoggedIn()
		}
		return conn.ChangeDir(remotePath)
	})
}

func (f *FTP) List(localPath string) ([]Metadata, error) {
	target, err := f.mapper.remote(localPath)
	if err != nil {
		return nil, err
	}

	var entries []*ftp.Entry
	err = f.exclusive(func(conn *ftp.ServerConn) error {
		var err error
		entries, err = conn.List(target)
		return err
	})
	if err != nil {
		if isFTPNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return nil, err
	}

	out := make([]Metadata, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, Metadata{
			Name:    path.Base(e.Name),
			ModTime: withOffset(e.Time, f.cfg.TimeOffset),
			Size:    int64(e.Size),
			IsDir:   e.Type == ftp.EntryTypeFolder,
		})
	}
	return out, nil
}

func (f *FTP) Get(localPath string) error {
	source, err := f.mapper.remote(localPath)
	if err != nil {
		return err
	}

	return f.exclusive(func(conn *ftp.ServerConn) error {
		resp, err := conn.Retr(source)
		if err != nil {
			return fmt.Errorf("failed to retrieve %s: %w", source, err)
		}
		// The transfer reply is only read on Close, which must happen
		// before the next command.
		defer resp.Close()

		return copyToLocal(f.local, localPath, resp)
	})
}

func (f *FTP) Put(localPath string) error {
	target, err := f.mapper.remote(localPath)
	if err != nil {
		return err
	}

	info, err := f.local.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat local file: %w", err)
	}

	return f.exclusive(func(conn *ftp.ServerConn) error {
		if info.IsDir() {
			f.makeDirs(conn, target)
			return nil
		}

		f.makeDirs(conn, path.Dir(target))

		file, err := f.local.Open(localPath)
		if err != nil {
			return fmt.Errorf("failed to open local file: %w", err)
		}
		defer file.Close()

		if err := conn.Stor(target, file); err != nil {
			return fmt.Errorf("failed to store %s: %w", target, err)
		}
		return nil
	})
}

// makeDirs creates every missing directory of dir. Errors for existing
// directories are expected and ignored.
func (f *FTP) makeDirs(conn *ftp.ServerConn, dir string) {
	current := "/"
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		current = path.Join(current, part)
		_ = conn.MakeDir(current)
	}
}

func (f *FTP) Rename(localPath, newName string, forced bool) error {
	source, err := f.mapper.remote(localPath)
	if err != nil {
		return err
	}
	target := path.Join(path.Dir(source), newName)
	if target == source {
		return nil
	}

	return f.exclusive(func(conn *ftp.ServerConn) error {
		if entries, err := conn.List(target); err == nil && len(entries) > 0 {
			if !forced {
				return fmt.Errorf("%w: %s", ErrTargetAlreadyExists, target)
			}
			if err := conn.Delete(target); err != nil {
				return fmt.Errorf("failed to replace %s: %w", target, err)
			}
		}
		return conn.Rename(source, target)
	})
}

// Close waits for a running operation before sending QUIT.
func (f *FTP) Close() error {
	f.io.Lock()
	defer f.io.Unlock()

	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Quit()
}

func (f *FTP) IsAlive() bool {
	return f.exclusive(func(conn *ftp.ServerConn) error {
		return conn.NoOp()
	}) == nil
}

// exclusive runs fn with the control channel to itself.
func (f *FTP) exclusive(fn func(conn *ftp.ServerConn) error) error {
	f.io.Lock()
	defer f.io.Unlock()

	conn, err := f.session()
	if err != nil {
		return err
	}
	return fn(conn)
}

func (f *FTP) setLoggedIn() {
	f.mu.Lock()
	f.loggedIn = true
	f.mu.Unlock()
}

func (f *FTP) session() (*ftp.ServerConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil, ErrSessionTerminated
	}
	return f.conn, nil
}

func isFTPNotFound(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}
