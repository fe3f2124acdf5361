package syncer

import (
	"errors"
	"path/filepath"

	"remote-sync/internal/config"
	"remote-sync/internal/remote"
)

// MetadataResult is the remote entry of one connection.
type MetadataResult struct {
	Connection string
	Metadata   remote.Metadata
}

// GetMetadata lists path on every applicable connection and returns the
// entries of the connections that have it. keep narrows the connections
// further when set.
func (e *Engine) GetMetadata(path string, whitelist []string, keep func(c *config.Connection) bool) []MetadataResult {
	c := e.newCommand(KindGetMetadata, path, filter{whitelist: whitelist, keep: keep})
	defer c.finish()

	if !c.ready() {
		return nil
	}

	base := filepath.Base(c.path)
	var results []MetadataResult

	c.each(func(conn remote.Connection) error {
		entries, err := conn.List(c.path)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, m := range entries {
			if m.Name == base {
				results = append(results, MetadataResult{Connection: conn.Name(), Metadata: m})
				break
			}
		}
		return nil
	})
	return results
}
