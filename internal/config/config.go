package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/cespare/xxhash/v2"
)

const ConfigFileName = "ftpsync.settings"

// ErrNoConfig is returned when no config file applies to a path.
var ErrNoConfig = errors.New("no config file found")

// deprecatedNames maps old key names to their replacement. Both spellings
// are kept in sync on load.
var deprecatedNames = map[string]string{
	"check_time": "overwrite_newer_prevention",
}

// WatchRule is one (folder, glob) pair of after_save_watch.
type WatchRule struct {
	Folder  string
	Pattern string
}

// Connection is one named remote declared in a config file, merged with the
// project defaults.
type Connection struct {
	Name     string
	FilePath string

	Protocol       string
	Host           string
	Port           int
	Username       *string
	Password       string
	PrivateKey     string
	PrivateKeyPass string
	Path           string

	TLS                      bool
	Passive                  bool
	UploadOnSave             bool
	DownloadOnOpen           bool
	OverwriteNewerPrevention bool

	Ignore         string
	UploadDelay    int
	AfterSaveWatch []WatchRule
	Timeout        int
	TimeOffset     int
	DumpConfigLoad bool

	// Raw holds the merged property map the typed fields were decoded from.
	Raw map[string]interface{}
	// Invalid is the validation failure, nil for a valid entry.
	Invalid error

	hash    uint64
	ignoreR *regexp.Regexp
}

// Hash returns a structural hash of the merged properties. Two entries with
// equal content have equal hashes regardless of map ordering.
func (c *Connection) Hash() uint64 {
	return c.hash
}

// IgnoreMatch reports whether the connection's ignore pattern matches path.
// An invalid pattern never matches.
func (c *Connection) IgnoreMatch(path string) bool {
	if c.ignoreR == nil {
		return false
	}
	return c.ignoreR.MatchString(path)
}

// Anonymous reports whether the connection logs in without credentials.
func (c *Connection) Anonymous() bool {
	return c.Username == nil
}

// Connections is an ordered name -> connection mapping.
type Connections struct {
	names  []string
	byName map[string]*Connection
}

func newConnections() *Connections {
	return &Connections{byName: map[string]*Connection{}}
}

func (cs *Connections) add(c *Connection) {
	if _, ok := cs.byName[c.Name]; !ok {
		cs.names = append(cs.names, c.Name)
	}
	cs.byName[c.Name] = c
}

// Names returns connection names in declared order.
func (cs *Connections) Names() []string {
	out := make([]string, len(cs.names))
	copy(out, cs.names)
	return out
}

// Get returns the named connection.
func (cs *Connections) Get(name string) (*Connection, bool) {
	c, ok := cs.byName[name]
	return c, ok
}

// Len returns the number of connections.
func (cs *Connections) Len() int {
	return len(cs.names)
}

// Remove drops a connection from this mapping.
func (cs *Connections) Remove(name string) {
	if _, ok := cs.byName[name]; !ok {
		return
	}
	delete(cs.byName, name)
	for i, n := range cs.names {
		if n == name {
			cs.names = append(cs.names[:i], cs.names[i+1:]...)
			break
		}
	}
}

// Config is a loaded config file merged with the core settings.
type Config struct {
	FilePath          string
	Ignore            string
	ConnectionTimeout int
	AsciiExtensions   []string
	BinaryExtensions  []string
	Connections       *Connections
}

// Dir is the directory holding the config file, the local root of every
// connection.
func (c *Config) Dir() string {
	return filepath.Dir(c.FilePath)
}

// Clone returns a copy whose connection mapping can be filtered without
// affecting c. Connections themselves are shared.
func (c *Config) Clone() *Config {
	out := *c
	out.Connections = newConnections()
	for _, name := range c.Connections.Names() {
		conn, _ := c.Connections.Get(name)
		out.Connections.add(conn)
	}
	return &out
}

// Whitelist keeps only the named connections. An empty list keeps all.
func (c *Config) Whitelist(names []string) *Config {
	if len(names) == 0 {
		return c
	}
	allowed := map[string]bool{}
	for _, n := range names {
		allowed[n] = true
	}
	return c.Filter(func(conn *Connection) bool { return allowed[conn.Name] })
}

// Filter keeps connections for which keep returns true.
func (c *Config) Filter(keep func(conn *Connection) bool) *Config {
	for _, name := range c.Connections.Names() {
		conn, _ := c.Connections.Get(name)
		if !keep(conn) {
			c.Connections.Remove(name)
		}
	}
	return c
}

// structuralHash hashes the canonical JSON form of v; encoding/json sorts
// map keys so equal maps hash equally.
func structuralHash(v interface{}) uint64 {
	data, err := json.Marshal(canonical(v))
	if err != nil {
		return xxhash.Sum64String(fmt.Sprintf("%#v", v))
	}
	return xxhash.Sum64(data)
}

// canonical converts yaml-decoded values into JSON-marshalable ones.
func canonical(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = canonical(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = canonical(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = canonical(val)
		}
		return out
	default:
		return v
	}
}

// PathHash returns the pool cache key for a config file path.
func PathHash(configFilePath string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(configFilePath))
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
