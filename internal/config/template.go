package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

const settingsTemplate = `{
	// Each key is a connection name, the value describes the remote.
	// Remove the keys you do not need, defaults are applied to the rest.

	"primary": {
		"protocol": "ftp", // ftp, sftp or local
		"host": "example.com",
		"username": null, // null logs in anonymously
		"password": "",
		"path": "/",

		"upload_on_save": true,
		"download_on_open": false,
		"overwrite_newer_prevention": true,

		"tls": false,
		"passive": true,
		"port": 21,
		"timeout": 30,
		"time_offset": 0,

		"ignore": null,
		"upload_delay": 0,
		"after_save_watch": null // e.g. [ [ "css", "*.css" ] ]
	}
}
`

// NewSettingsFile writes the default config template into dir unless a
// config already exists there. It returns the config file path and whether
// it was created.
func NewSettingsFile(fsys afero.Fs, dir string) (string, bool, error) {
	path := filepath.Join(dir, ConfigFileName)

	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return path, false, fmt.Errorf("failed to check %s: %w", path, err)
	}
	if exists {
		return path, false, nil
	}

	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return path, false, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := afero.WriteFile(fsys, path, []byte(settingsTemplate), 0644); err != nil {
		return path, false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, true, nil
}
