package config

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remote-sync/internal/messages"
	"remote-sync/internal/settings"
)

func validEntry() map[string]interface{} {
	entry := mergeDefaults(settings.DefaultProjectDefaults(), map[string]interface{}{})
	alias(entry)
	return entry
}

func TestVerifyAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Verify(validEntry()))
}

func TestVerifyNamesMissingKey(t *testing.T) {
	for _, key := range requiredKeys {
		t.Run(key, func(t *testing.T) {
			entry := validEntry()
			delete(entry, key)

			err := Verify(entry)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, key, verr.Key)
			assert.Contains(t, err.Error(), "{"+key+"}")
		})
	}
}

func TestVerifyTypes(t *testing.T) {
	testCases := []struct {
		desc  string
		key   string
		value interface{}
		ok    bool
	}{
		{"string host", "host", "example.com", true},
		{"numeric host", "host", 12, false},
		{"null username", "username", nil, true},
		{"numeric username", "username", 5, false},
		{"bool flag", "tls", true, true},
		{"string flag", "tls", "yes", false},
		{"int port", "port", 2121, true},
		{"float port", "port", 21.5, false},
		{"negative delay", "upload_delay", -1, false},
		{"bad ignore", "ignore", "(", false},
		{"watch pairs", "after_save_watch", []interface{}{[]interface{}{"css", "*.css"}}, true},
		{"watch not pairs", "after_save_watch", []interface{}{"css"}, false},
		{"watch not list", "after_save_watch", "css", false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			entry := validEntry()
			entry[tc.key] = tc.value

			err := Verify(entry)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.key, verr.Key)
		})
	}
}

func TestStripComments(t *testing.T) {
	in := "{\n\t\"url\": \"http://x//y\", // trailing\n\t// full line\n\t\"a\\\"//\": 1\n}"
	out := string(stripComments([]byte(in)))

	assert.Contains(t, out, `"http://x//y"`)
	assert.Contains(t, out, `"a\"//": 1`)
	assert.NotContains(t, out, "trailing")
	assert.NotContains(t, out, "full line")
	assert.NotContains(t, out, "\t")
}

func writeConfig(t *testing.T, fsys afero.Fs, path, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, []byte(body), 0644))
}

func TestLoadKeepsOrderAndAliases(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/proj/ftpsync.settings", `{
		// staging first
		"zeta": { "host": "z.example.com", "check_time": false },
		"alpha": { "host": "a.example.com", "username": "bob", "overwrite_newer_prevention": false },
		"mid": { "host": "m.example.com", "debug_extras": { "other": 1 } }
	}`)

	cfg, err := NewLoader(fsys, nil, nil).Load("/proj/ftpsync.settings")
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, cfg.Connections.Names())
	assert.Equal(t, "/proj", cfg.Dir())

	zeta, _ := cfg.Connections.Get("zeta")
	assert.NoError(t, zeta.Invalid)
	assert.False(t, zeta.OverwriteNewerPrevention)
	assert.Equal(t, false, zeta.Raw["overwrite_newer_prevention"])
	assert.True(t, zeta.Anonymous())
	assert.Equal(t, "/proj/ftpsync.settings", zeta.Raw["file_path"])

	alpha, _ := cfg.Connections.Get("alpha")
	assert.Equal(t, false, alpha.Raw["check_time"])
	require.NotNil(t, alpha.Username)
	assert.Equal(t, "bob", *alpha.Username)

	mid, _ := cfg.Connections.Get("mid")
	assert.True(t, mid.OverwriteNewerPrevention)
	extras := mid.Raw["debug_extras"].(map[string]interface{})
	assert.Equal(t, false, extras["dump_config_load"])
	assert.Equal(t, 1, extras["other"])
}

func TestLoadReportsInvalidEntries(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/proj/ftpsync.settings", `{
		"good": { "host": "a" },
		"badport": { "host": "b", "port": "twenty-one" },
		"scalar": 5
	}`)

	rec := &messages.Recorder{}
	cfg, err := NewLoader(fsys, nil, rec).Load("/proj/ftpsync.settings")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Connections.Len())

	good, _ := cfg.Connections.Get("good")
	assert.NoError(t, good.Invalid)

	bad, _ := cfg.Connections.Get("badport")
	require.Error(t, bad.Invalid)
	assert.Contains(t, bad.Invalid.Error(), "port")

	scalar, _ := cfg.Connections.Get("scalar")
	assert.EqualError(t, scalar.Invalid, "Config is not a {dict} type")

	assert.Equal(t, 2, rec.Count("Invalid configuration loaded"))
}

func TestLoadFailures(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/proj/ftpsync.settings", `{ "a": { "host": "x" `)

	rec := &messages.Recorder{}
	loader := NewLoader(fsys, nil, rec)

	_, err := loader.Load("/proj/ftpsync.settings")
	require.Error(t, err)
	assert.Equal(t, 1, rec.Count("commas problem?"))

	_, err = loader.Load("/missing/ftpsync.settings")
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestConnectionHash(t *testing.T) {
	fsys := afero.NewMemMapFs()
	loader := NewLoader(fsys, nil, nil)

	writeConfig(t, fsys, "/a/ftpsync.settings", `{"s": {"host": "h", "port": 21, "username": "u"}}`)
	first, err := loader.Load("/a/ftpsync.settings")
	require.NoError(t, err)

	writeConfig(t, fsys, "/a/ftpsync.settings", `{"s": {"username": "u", "host": "h"}}`)
	same, err := loader.Load("/a/ftpsync.settings")
	require.NoError(t, err)

	writeConfig(t, fsys, "/a/ftpsync.settings", `{"s": {"username": "u", "host": "h", "port": 2121}}`)
	changed, err := loader.Load("/a/ftpsync.settings")
	require.NoError(t, err)

	f, _ := first.Connections.Get("s")
	s, _ := same.Connections.Get("s")
	c, _ := changed.Connections.Get("s")

	assert.Equal(t, f.Hash(), s.Hash())
	assert.NotEqual(t, f.Hash(), c.Hash())
}

func TestWhitelistAndFilter(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/p/ftpsync.settings", `{"a": {}, "b": {"upload_on_save": false}, "c": {}}`)

	cfg, err := NewLoader(fsys, nil, nil).Load("/p/ftpsync.settings")
	require.NoError(t, err)

	full := cfg.Clone()
	cfg.Whitelist([]string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, cfg.Connections.Names())
	assert.Equal(t, []string{"a", "b", "c"}, full.Connections.Names())

	cfg.Filter(func(c *Connection) bool { return c.UploadOnSave })
	assert.Equal(t, []string{"a"}, cfg.Connections.Names())
}

func TestTemplateLoads(t *testing.T) {
	fsys := afero.NewMemMapFs()

	path, created, err := NewSettingsFile(fsys, "/proj")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "/proj/ftpsync.settings", path)

	_, created, err = NewSettingsFile(fsys, "/proj")
	require.NoError(t, err)
	assert.False(t, created)

	cfg, err := NewLoader(fsys, nil, nil).Load(path)
	require.NoError(t, err)
	primary, ok := cfg.Connections.Get("primary")
	require.True(t, ok)
	assert.NoError(t, primary.Invalid)
	assert.Equal(t, "example.com", primary.Host)
}
