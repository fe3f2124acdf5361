package remote

import (
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remote-sync/internal/config"
)

// fakeFTPServer answers the handful of commands the FTP connection sends.
// CWD replies late so a second command would interleave with it.
type fakeFTPServer struct {
	listener net.Listener

	mu       sync.Mutex
	commands []string
}

func startFakeFTPServer(t *testing.T) *fakeFTPServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeFTPServer{listener: l}
	t.Cleanup(func() { _ = l.Close() })
	go s.serve()
	return s
}

func (s *fakeFTPServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *fakeFTPServer) serve() {
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 ready")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])

		s.mu.Lock()
		s.commands = append(s.commands, verb)
		s.mu.Unlock()

		switch verb {
		case "USER":
			_ = tp.PrintfLine("230 logged in")
		case "TYPE", "NOOP":
			_ = tp.PrintfLine("200 ok")
		case "CWD":
			time.Sleep(50 * time.Millisecond)
			_ = tp.PrintfLine("250 directory changed")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 not implemented")
		}
	}
}

func (s *fakeFTPServer) seen(verb string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.commands {
		if c == verb {
			n++
		}
	}
	return n
}

func TestFTPSerializesConcurrentCommands(t *testing.T) {
	server := startFakeFTPServer(t)

	cfg := &config.Connection{
		Name:     "ftp",
		FilePath: "/proj/ftpsync.settings",
		Protocol: "ftp",
		Host:     "127.0.0.1",
		Port:     server.port(),
		Path:     "/www",
		Passive:  true,
		Timeout:  5,
	}
	conn, err := New(cfg, afero.NewMemMapFs())
	require.NoError(t, err)
	require.NoError(t, conn.Connect())

	var (
		wg     sync.WaitGroup
		cwdErr error
		alive  bool
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		cwdErr = conn.Cwd("/www")
	}()
	go func() {
		defer wg.Done()
		alive = conn.IsAlive()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent commands did not complete")
	}

	assert.NoError(t, cwdErr)
	assert.True(t, alive)
	assert.Equal(t, 1, server.seen("CWD"))
	assert.Equal(t, 1, server.seen("NOOP"))

	assert.NoError(t, conn.Close())
	assert.False(t, conn.IsAlive())
}
