package util

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLogPath returns the diagnostic log location under the user cache dir.
func DefaultLogPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "remote-sync", "logs", "sync.log")
}

// SetupLogFile points the standard logger at a rotating log file and returns
// the writer so callers can close it on exit.
func SetupLogFile(path string) (io.Closer, error) {
	if path == "" {
		path = DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return w, nil
}
