package remote

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remote-sync/internal/config"
)

func localConnection(t *testing.T, fsys afero.Fs) Connection {
	t.Helper()
	cfg := &config.Connection{
		Name:     "mirror",
		FilePath: "/proj/ftpsync.settings",
		Protocol: "local",
		Path:     "/mirror",
	}
	conn, err := New(cfg, fsys)
	require.NoError(t, err)
	require.NoError(t, conn.Connect())
	return conn
}

func TestLocalRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/mirror", 0755))
	require.NoError(t, afero.WriteFile(fsys, "/proj/sub/a.txt", []byte("hello"), 0644))

	conn := localConnection(t, fsys)
	require.NoError(t, conn.Cwd("/mirror"))
	require.NoError(t, conn.Put("/proj/sub/a.txt"))

	data, err := afero.ReadFile(fsys, "/mirror/sub/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, fsys.Remove("/proj/sub/a.txt"))
	require.NoError(t, conn.Get("/proj/sub/a.txt"))

	data, err = afero.ReadFile(fsys, "/proj/sub/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalList(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/mirror/a.txt", []byte("12345"), 0644))
	require.NoError(t, fsys.MkdirAll("/mirror/dir", 0755))

	conn := localConnection(t, fsys)

	file, err := conn.List("/proj/a.txt")
	require.NoError(t, err)
	require.Len(t, file, 1)
	assert.Equal(t, "a.txt", file[0].Name)
	assert.EqualValues(t, 5, file[0].Size)

	dir, err := conn.List("/proj")
	require.NoError(t, err)
	assert.Len(t, dir, 2)

	_, err = conn.List("/proj/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = conn.List("/elsewhere/a.txt")
	assert.Error(t, err)
}

func TestLocalRename(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/mirror/old.txt", []byte("old"), 0644))
	require.NoError(t, afero.WriteFile(fsys, "/mirror/new.txt", []byte("taken"), 0644))

	conn := localConnection(t, fsys)

	err := conn.Rename("/proj/old.txt", "new.txt", false)
	assert.ErrorIs(t, err, ErrTargetAlreadyExists)

	require.NoError(t, conn.Rename("/proj/old.txt", "new.txt", true))
	data, err := afero.ReadFile(fsys, "/mirror/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestLocalClosedIsTerminated(t *testing.T) {
	fsys := afero.NewMemMapFs()
	conn := localConnection(t, fsys)
	assert.True(t, conn.IsAlive())

	require.NoError(t, conn.Close())
	assert.False(t, conn.IsAlive())

	_, err := conn.List("/proj/a.txt")
	assert.True(t, IsSessionTerminated(err))
}

func TestIsSessionTerminated(t *testing.T) {
	testCases := []struct {
		desc string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("read: %w", io.EOF), true},
		{"closed conn", &net.OpError{Op: "read", Err: net.ErrClosed}, true},
		{"service closing", &textproto.Error{Code: 421, Msg: "bye"}, true},
		{"not found", &textproto.Error{Code: 550, Msg: "no"}, false},
		{"other", errors.New("boom"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, IsSessionTerminated(tc.err))
		})
	}
}

func TestMetadataClassification(t *testing.T) {
	local := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := Metadata{ModTime: local.Add(time.Minute), Size: 10}

	assert.True(t, m.IsNewerThan(local))
	assert.False(t, m.IsNewerThan(local.Add(time.Hour)))
	assert.False(t, Metadata{ModTime: local.Add(300 * time.Millisecond)}.IsNewerThan(local))
	assert.False(t, m.IsDifferentSize(10))
	assert.True(t, m.IsDifferentSize(11))
}

func TestUnknownProtocol(t *testing.T) {
	_, err := New(&config.Connection{Name: "x", Protocol: "gopher"}, nil)
	assert.Error(t, err)
	assert.Contains(t, Protocols(), "sftp")
}

func TestDialFailureIsReported(t *testing.T) {
	// A port nothing listens on.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	for _, protocol := range []string{"ftp", "sftp"} {
		t.Run(protocol, func(t *testing.T) {
			cfg := &config.Connection{
				Name:     "down",
				FilePath: "/proj/ftpsync.settings",
				Protocol: protocol,
				Host:     "127.0.0.1",
				Port:     port,
				Path:     "/",
				Timeout:  2,
			}
			conn, err := New(cfg, afero.NewMemMapFs())
			require.NoError(t, err)

			err = conn.Connect()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to dial")
			assert.False(t, conn.IsAlive())
			assert.NoError(t, conn.Close())
		})
	}
}
