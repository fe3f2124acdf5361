package config

import (
	"fmt"
	"regexp"
)

// requiredKeys must be present in every merged connection entry.
var requiredKeys = []string{
	"host", "username", "password", "private_key", "private_key_pass", "path",
	"tls", "passive", "upload_on_save", "port", "timeout", "ignore", "check_time",
	"download_on_open", "upload_delay", "after_save_watch", "time_offset",
}

// ValidationError names the offending key of an invalid connection entry.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func missing(key string) error {
	return &ValidationError{Key: key, Reason: fmt.Sprintf("Config is missing a {%s} key", key)}
}

func mistyped(key, want string, got interface{}) error {
	return &ValidationError{
		Key:    key,
		Reason: fmt.Sprintf("Config entry '%s' must be %s, %s given", key, want, typeName(got)),
	}
}

func typeName(v interface{}) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

// Verify checks that a merged connection entry holds every required key with
// the required type. It does not check the semantic validity of values.
func Verify(entry map[string]interface{}) error {
	for _, key := range requiredKeys {
		if _, ok := entry[key]; !ok {
			return missing(key)
		}
	}

	for _, key := range []string{"username", "password", "private_key", "private_key_pass", "ignore"} {
		if v := entry[key]; v != nil && !isString(v) {
			return mistyped(key, "null or string", v)
		}
	}

	for _, key := range []string{"host", "path"} {
		if !isString(entry[key]) {
			return mistyped(key, "a string", entry[key])
		}
	}

	for _, key := range []string{"tls", "passive", "upload_on_save", "check_time", "download_on_open"} {
		if _, ok := entry[key].(bool); !ok {
			return mistyped(key, "true or false", entry[key])
		}
	}

	for _, key := range []string{"upload_delay", "port", "timeout", "time_offset"} {
		if _, ok := toInt(entry[key]); !ok {
			return mistyped(key, "an integer", entry[key])
		}
	}

	if d, _ := toInt(entry["upload_delay"]); d < 0 {
		return &ValidationError{Key: "upload_delay", Reason: "Config entry 'upload_delay' must not be negative"}
	}

	if s, ok := entry["ignore"].(string); ok {
		if _, err := regexp.Compile(s); err != nil {
			return &ValidationError{Key: "ignore", Reason: fmt.Sprintf("Config entry 'ignore' is not a valid pattern: %v", err)}
		}
	}

	if w := entry["after_save_watch"]; w != nil {
		if _, err := toWatchRules(w); err != nil {
			return err
		}
	}

	return nil
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}

func toWatchRules(v interface{}) ([]WatchRule, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, mistyped("after_save_watch", "null or list", v)
	}

	rules := make([]WatchRule, 0, len(list))
	for i, item := range list {
		pair, ok := item.([]interface{})
		if !ok || len(pair) != 2 || !isString(pair[0]) || !isString(pair[1]) {
			return nil, &ValidationError{
				Key:    "after_save_watch",
				Reason: fmt.Sprintf("Config entry 'after_save_watch' item %d must be a [folder, pattern] pair", i),
			}
		}
		rules = append(rules, WatchRule{Folder: pair[0].(string), Pattern: pair[1].(string)})
	}
	return rules, nil
}
