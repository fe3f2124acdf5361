package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"remote-sync/internal/messages"
	"remote-sync/internal/settings"
)

// Loader parses config files and merges them with the process-wide settings.
type Loader struct {
	Fs       afero.Fs
	Settings *settings.Settings
	Sink     messages.Sink
}

// NewLoader returns a Loader; nil arguments fall back to the OS filesystem,
// built-in settings and a discarding sink.
func NewLoader(fsys afero.Fs, s *settings.Settings, sink messages.Sink) *Loader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if s == nil {
		s = settings.Default()
	}
	if sink == nil {
		sink = messages.Discard{}
	}
	return &Loader{Fs: fsys, Settings: s, Sink: sink}
}

// Load reads configFilePath and returns the resolved config. Entries that
// fail validation are reported and kept with Connection.Invalid set.
func (l *Loader) Load(configFilePath string) (*Config, error) {
	data, err := afero.ReadFile(l.Fs, configFilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoConfig, configFilePath)
		}
		messages.Failure(l.Sink, "", "Failed reading configuration file: "+configFilePath, err)
		return nil, fmt.Errorf("failed to read config %s: %w", configFilePath, err)
	}

	entries, err := parse(data)
	if err != nil {
		messages.Status(l.Sink, "", "Failed parsing configuration file: %s (commas problem?) <Exception: %v>", configFilePath, err)
		return nil, fmt.Errorf("failed to parse config %s: %w", configFilePath, err)
	}

	cfg := &Config{
		FilePath:          configFilePath,
		Ignore:            l.Settings.Ignore,
		ConnectionTimeout: l.Settings.ConnectionTimeout,
		AsciiExtensions:   l.Settings.AsciiExtensions,
		BinaryExtensions:  l.Settings.BinaryExtensions,
		Connections:       newConnections(),
	}

	for _, e := range entries {
		conn := l.buildConnection(configFilePath, e)
		if conn.Invalid != nil {
			messages.Status(l.Sink, conn.Name, "Invalid configuration loaded: %v", conn.Invalid)
		}
		if conn.DumpConfigLoad {
			l.dump(conn)
		}
		cfg.Connections.add(conn)
	}

	messages.Verbose(l.Sink, "", "Loaded config %s with %d connection(s)", configFilePath, cfg.Connections.Len())
	return cfg, nil
}

type rawEntry struct {
	name  string
	value interface{}
}

func (l *Loader) buildConnection(configFilePath string, e rawEntry) *Connection {
	user, ok := e.value.(map[string]interface{})
	if !ok {
		return &Connection{
			Name:     e.name,
			FilePath: configFilePath,
			Raw:      map[string]interface{}{},
			Invalid:  &ValidationError{Reason: "Config is not a {dict} type"},
		}
	}

	// Aliasing the user entry first keeps a user's check_time from being
	// shadowed by the default overwrite_newer_prevention.
	alias(user)
	merged := mergeDefaults(l.Settings.ProjectDefaults, user)
	merged["file_path"] = configFilePath
	alias(merged)

	conn := decode(e.name, configFilePath, merged)
	conn.Invalid = Verify(merged)
	return conn
}

func (l *Loader) dump(conn *Connection) {
	var b strings.Builder
	for _, k := range sortedKeys(conn.Raw) {
		fmt.Fprintf(&b, "\n  %s: %v", k, conn.Raw[k])
	}
	messages.Info(l.Sink, conn.Name, "Config dump:%s", b.String())
}

// alias copies every deprecated key onto its replacement and back, whichever
// of the two is missing.
func alias(entry map[string]interface{}) {
	for old, current := range deprecatedNames {
		oldV, hasOld := entry[old]
		newV, hasNew := entry[current]
		switch {
		case hasOld && !hasNew:
			entry[current] = oldV
		case hasNew && !hasOld:
			entry[old] = newV
		}
	}
}

// mergeDefaults returns a fresh map with user values laid over defaults.
// Nested maps present on both sides are merged recursively.
func mergeDefaults(defaults, user map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(defaults)+len(user))
	for k, v := range defaults {
		out[k] = deepCopy(v)
	}
	for k, v := range user {
		dm, dok := out[k].(map[string]interface{})
		um, uok := v.(map[string]interface{})
		if dok && uok {
			out[k] = mergeDefaults(dm, um)
			continue
		}
		out[k] = v
	}
	return out
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

// decode fills the typed fields leniently; type errors are Verify's job.
func decode(name, configFilePath string, m map[string]interface{}) *Connection {
	c := &Connection{
		Name:     name,
		FilePath: configFilePath,
		Raw:      m,
		hash:     structuralHash(m),
	}

	c.Protocol, _ = m["protocol"].(string)
	if c.Protocol == "" {
		c.Protocol = "ftp"
	}
	c.Host, _ = m["host"].(string)
	c.Port, _ = toInt(m["port"])
	if u, ok := m["username"].(string); ok {
		c.Username = &u
	}
	c.Password, _ = m["password"].(string)
	c.PrivateKey, _ = m["private_key"].(string)
	c.PrivateKeyPass, _ = m["private_key_pass"].(string)
	c.Path, _ = m["path"].(string)

	c.TLS, _ = m["tls"].(bool)
	c.Passive, _ = m["passive"].(bool)
	c.UploadOnSave, _ = m["upload_on_save"].(bool)
	c.DownloadOnOpen, _ = m["download_on_open"].(bool)
	c.OverwriteNewerPrevention, _ = m["overwrite_newer_prevention"].(bool)

	c.Ignore, _ = m["ignore"].(string)
	if c.Ignore != "" {
		c.ignoreR, _ = regexp.Compile(c.Ignore)
	}
	c.UploadDelay, _ = toInt(m["upload_delay"])
	if w := m["after_save_watch"]; w != nil {
		c.AfterSaveWatch, _ = toWatchRules(w)
	}
	c.Timeout, _ = toInt(m["timeout"])
	c.TimeOffset, _ = toInt(m["time_offset"])

	if extras, ok := m["debug_extras"].(map[string]interface{}); ok {
		c.DumpConfigLoad, _ = extras["dump_config_load"].(bool)
	}

	return c
}

// parse decodes a commented JSON document into its top-level entries,
// keeping declared order.
func parse(data []byte) ([]rawEntry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(stripComments(data), &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("top level must be an object")
	}

	entries := make([]rawEntry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		var value interface{}
		if err := root.Content[i+1].Decode(&value); err != nil {
			return nil, fmt.Errorf("connection %q: %w", root.Content[i].Value, err)
		}
		entries = append(entries, rawEntry{name: root.Content[i].Value, value: value})
	}
	return entries, nil
}

// stripComments drops // comments and turns tabs into spaces, both outside
// of string literals only.
func stripComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]

		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case c == '\t':
			out = append(out, ' ')
		default:
			out = append(out, c)
		}
	}
	return out
}
