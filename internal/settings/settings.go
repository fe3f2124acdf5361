// Package settings holds the process-wide defaults every project config is
// merged with, plus the debug switches of the notification sink.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	SettingsName = "ftpsync"
	EnvPrefix    = "FTPSYNC"
)

// Settings is the resolved process-wide configuration.
type Settings struct {
	Debug               bool
	DebugVerbose        bool
	Ignore              string
	TimeFormat          string
	ConnectionTimeout   int
	DownloadOnOpenDelay int
	AsciiExtensions     []string
	BinaryExtensions    []string
	ProjectDefaults     map[string]interface{}
	LogFile             string
}

// DefaultProjectDefaults returns the per-connection defaults that are merged
// under every connection entry of a project config file.
func DefaultProjectDefaults() map[string]interface{} {
	return map[string]interface{}{
		"host":                       "localhost",
		"protocol":                   "ftp",
		"username":                   nil,
		"password":                   "",
		"private_key":                nil,
		"private_key_pass":           nil,
		"path":                       "/",
		"tls":                        false,
		"passive":                    true,
		"upload_on_save":             true,
		"download_on_open":           false,
		"overwrite_newer_prevention": true,
		"ignore":                     nil,
		"upload_delay":               0,
		"after_save_watch":           nil,
		"port":                       21,
		"timeout":                    30,
		"time_offset":                0,
		"debug_extras": map[string]interface{}{
			"dump_config_load": false,
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("debug_verbose", false)
	v.SetDefault("ignore", `/\.(git|svn|hg)/|\.DS_Store$|ftpsync\.settings$`)
	v.SetDefault("time_format", "2006-01-02 15:04")
	v.SetDefault("connection_timeout", 60)
	v.SetDefault("download_on_open_delay", 500)
	v.SetDefault("ascii_extensions", []string{"txt", "php", "html", "htm", "css", "js", "json", "xml", "md"})
	v.SetDefault("binary_extensions", []string{"png", "jpg", "jpeg", "gif", "ico", "zip", "gz", "pdf"})
	v.SetDefault("project_defaults", DefaultProjectDefaults())
	v.SetDefault("log_file", "")
}

// Default returns settings built only from built-in defaults.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

// ConfigDir returns the directory searched for the settings file.
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".remote-sync")
	}
	return filepath.Join(dir, "remote-sync")
}

// Load reads the settings file (explicit path, or ftpsync.yaml in ConfigDir)
// and environment overrides such as FTPSYNC_DEBUG=true. A missing settings
// file is not an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(ConfigDir())
		v.SetConfigName(SettingsName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Settings {
	defaults := DefaultProjectDefaults()
	for k, val := range v.GetStringMap("project_defaults") {
		defaults[k] = val
	}

	return &Settings{
		Debug:               v.GetBool("debug"),
		DebugVerbose:        v.GetBool("debug_verbose"),
		Ignore:              v.GetString("ignore"),
		TimeFormat:          v.GetString("time_format"),
		ConnectionTimeout:   v.GetInt("connection_timeout"),
		DownloadOnOpenDelay: v.GetInt("download_on_open_delay"),
		AsciiExtensions:     v.GetStringSlice("ascii_extensions"),
		BinaryExtensions:    v.GetStringSlice("binary_extensions"),
		ProjectDefaults:     defaults,
		LogFile:             v.GetString("log_file"),
	}
}
