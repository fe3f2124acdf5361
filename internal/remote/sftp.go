package remote

import (
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"remote-sync/internal/config"
)

// SFTP is a connection over an SSH session.
type SFTP struct {
	cfg    *config.Connection
	local  afero.Fs
	mapper pathMapper

	mu     sync.Mutex
	raw    net.Conn
	client *ssh.Client
	sftp   *sftp.Client
}

// NewSFTP is the Factory of the "sftp" protocol.
func NewSFTP(cfg *config.Connection, local afero.Fs) (Connection, error) {
	if local == nil {
		local = afero.NewOsFs()
	}
	return &SFTP{cfg: cfg, local: local, mapper: newPathMapper(cfg)}, nil
}

func (s *SFTP) Name() string               { return s.cfg.Name }
func (s *SFTP) Config() *config.Connection { return s.cfg }

func (s *SFTP) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Connect opens the TCP connection.
func (s *SFTP) Connect() error {
	conn, err := net.DialTimeout("tcp", s.addr(), time.Duration(s.cfg.Timeout)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to dial: %v", err)
	}
	s.mu.Lock()
	s.raw = conn
	s.mu.Unlock()
	return nil
}

// Authenticate runs the SSH handshake and starts the sftp subsystem.
func (s *SFTP) Authenticate() (bool, error) {
	s.mu.Lock()
	raw := s.raw
	s.mu.Unlock()
	if raw == nil {
		return false, ErrSessionTerminated
	}

	clientConfig, err := s.clientConfig()
	if err != nil {
		return false, err
	}

	conn, chans, reqs, err := ssh.NewClientConn(raw, s.addr(), clientConfig)
	if err != nil {
		return false, fmt.Errorf("ssh handshake failed: %v", err)
	}
	client := ssh.NewClient(conn, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return false, fmt.Errorf("failed to start sftp subsystem: %v", err)
	}

	s.mu.Lock()
	s.client = client
	s.sftp = sftpClient
	s.mu.Unlock()
	return true, nil
}

func (s *SFTP) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if s.cfg.PrivateKey != "" {
		key, err := afero.ReadFile(s.local, s.cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("unable to read private key: %v", err)
		}

		var signer ssh.Signer
		if s.cfg.PrivateKeyPass != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(s.cfg.PrivateKeyPass))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %v", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if s.cfg.Password != "" {
		auth = append(auth, ssh.Password(s.cfg.Password))
	}

	user := "anonymous"
	if s.cfg.Username != nil {
		user = *s.cfg.Username
	}

	return &ssh.ClientConfig{
		User: user,
		Auth: auth,
		// Host keys are not pinned in project configs.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         time.Duration(s.cfg.Timeout) * time.Second,
	}, nil
}

// Login is a no-op, SSH authenticates during the handshake.
func (s *SFTP) Login() error {
	_, err := s.session()
	return err
}

func (s *SFTP) Cwd(remotePath string) error {
	client, err := s.session()
	if err != nil {
		return err
	}
	info, err := client.Stat(remotePath)
	if err != nil {
		return fmt.Errorf("failed to change directory to %s: %w", remotePath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", remotePath)
	}
	return nil
}

func (s *SFTP) List(localPath string) ([]Metadata, error) {
	client, err := s.session()
	if err != nil {
		return nil, err
	}
	target, err := s.mapper.remote(localPath)
	if err != nil {
		return nil, err
	}

	info, err := client.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return nil, err
	}
	if !info.IsDir() {
		return []Metadata{s.metadata(info)}, nil
	}

	children, err := client.ReadDir(target)
	if err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(children))
	for _, c := range children {
		out = append(out, s.metadata(c))
	}
	return out, nil
}

func (s *SFTP) metadata(info os.FileInfo) Metadata {
	return Metadata{
		Name:    info.Name(),
		ModTime: withOffset(info.ModTime(), s.cfg.TimeOffset),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
	}
}

func (s *SFTP) Get(localPath string) error {
	client, err := s.session()
	if err != nil {
		return err
	}
	source, err := s.mapper.remote(localPath)
	if err != nil {
		return err
	}

	remoteFile, err := client.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer remoteFile.Close()

	return copyToLocal(s.local, localPath, remoteFile)
}

func (s *SFTP) Put(localPath string) error {
	client, err := s.session()
	if err != nil {
		return err
	}
	target, err := s.mapper.remote(localPath)
	if err != nil {
		return err
	}

	info, err := s.local.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat local file: %w", err)
	}
	if info.IsDir() {
		return client.MkdirAll(target)
	}

	if err := client.MkdirAll(path.Dir(target)); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	localFile, err := s.local.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer localFile.Close()

	remoteFile, err := client.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	if _, err := remoteFile.ReadFrom(localFile); err != nil {
		remoteFile.Close()
		return fmt.Errorf("failed to send file data: %w", err)
	}
	if err := remoteFile.Close(); err != nil {
		return err
	}

	return client.Chtimes(target, info.ModTime(), info.ModTime())
}

func (s *SFTP) Rename(localPath, newName string, forced bool) error {
	client, err := s.session()
	if err != nil {
		return err
	}
	source, err := s.mapper.remote(localPath)
	if err != nil {
		return err
	}
	target := path.Join(path.Dir(source), newName)
	if target == source {
		return nil
	}

	if _, err := client.Stat(target); err == nil {
		if !forced {
			return fmt.Errorf("%w: %s", ErrTargetAlreadyExists, target)
		}
		if err := client.Remove(target); err != nil {
			return fmt.Errorf("failed to replace %s: %w", target, err)
		}
	}
	return client.Rename(source, target)
}

func (s *SFTP) Close() error {
	s.mu.Lock()
	sftpClient, client, raw := s.sftp, s.client, s.raw
	s.sftp, s.client, s.raw = nil, nil, nil
	s.mu.Unlock()

	if sftpClient != nil {
		sftpClient.Close()
	}
	if client != nil {
		return client.Close()
	}
	if raw != nil {
		return raw.Close()
	}
	return nil
}

func (s *SFTP) IsAlive() bool {
	client, err := s.session()
	if err != nil {
		return false
	}
	_, err = client.Getwd()
	return err == nil
}

func (s *SFTP) session() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sftp == nil {
		return nil, ErrSessionTerminated
	}
	return s.sftp, nil
}
