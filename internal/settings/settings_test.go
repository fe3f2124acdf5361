package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()

	assert.False(t, s.Debug)
	assert.Equal(t, 60, s.ConnectionTimeout)
	assert.Equal(t, 500, s.DownloadOnOpenDelay)
	assert.Equal(t, "ftp", s.ProjectDefaults["protocol"])
	assert.Contains(t, s.ProjectDefaults, "overwrite_newer_prevention")
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ftpsync.yaml")
	body := "debug: true\nconnection_timeout: 5\nproject_defaults:\n  port: 2121\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	t.Setenv("FTPSYNC_TIME_FORMAT", "15:04")

	s, err := Load(path)
	require.NoError(t, err)

	assert.True(t, s.Debug)
	assert.Equal(t, 5, s.ConnectionTimeout)
	assert.Equal(t, "15:04", s.TimeFormat)
	assert.EqualValues(t, 2121, s.ProjectDefaults["port"])
	assert.Equal(t, "ftp", s.ProjectDefaults["protocol"])
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
}
