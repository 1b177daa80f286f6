// Package config loads netstress settings from flags, NETSTRESS_*
// environment variables and an optional configuration file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Raw values arrive as whatever viper decoded from the file or environment,
// or as typed flag values.

func asString(v interface{}) (string, error) { return cast.ToStringE(v) }

func asInt(v interface{}) (int, error) {
	if v = blank(v); v == nil {
		return 0, nil
	}
	return cast.ToIntE(v)
}

func asFloat64(v interface{}) (float64, error) {
	if v = blank(v); v == nil {
		return 0, nil
	}
	return cast.ToFloat64E(v)
}

func asBool(v interface{}) (bool, error) {
	if v = blank(v); v == nil {
		return false, nil
	}
	return cast.ToBoolE(v)
}

// blank trims strings and maps empty ones to nil.
func blank(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		if s = strings.TrimSpace(s); s == "" {
			return nil
		}
		return s
	}
	return v
}

// asDuration reads bare numbers as seconds and strings as Go durations.
func asDuration(v interface{}) (time.Duration, error) {
	switch d := blank(v).(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return d, nil
	case string:
		return time.ParseDuration(d)
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		secs, err := cast.ToFloat64E(d)
		return time.Duration(secs * float64(time.Second)), err
	}
	return cast.ToDurationE(v)
}

// asPairMap reads a header or metadata set given either as a map or as
// key=value entries. A plain string is split on commas, matching how list
// values arrive from the environment.
func asPairMap(v interface{}) (map[string]string, error) {
	var entries []string
	switch p := v.(type) {
	case nil:
		return map[string]string{}, nil
	case string:
		entries = strings.Split(p, ",")
	case []string, []interface{}:
		list, err := cast.ToStringSliceE(p)
		if err != nil {
			return nil, err
		}
		entries = list
	default:
		m, err := cast.ToStringMapStringE(v)
		if err != nil {
			return nil, fmt.Errorf("unsupported key/value type %T", v)
		}
		return m, nil
	}

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e = strings.TrimSpace(e); e == "" {
			continue
		}
		k, val, ok := strings.Cut(e, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", e)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return out, nil
}
