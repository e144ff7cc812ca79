// Package config loads vuload settings from defaults, an optional YAML or
// JSON file (viper) and command-line flags (cobra/pflag), in that order.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// settings is one level of a decoded config file. viper lowercases keys, so
// lookups use lowercase aliases covering the camel, snake and kebab spellings.
type settings map[string]any

func (s settings) lookup(keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := s[strings.ToLower(key)]; ok {
			return v, true
		}
	}
	return nil, false
}

// section returns the nested table under key. A missing or null section
// reports ok=false.
func (s settings) section(keys ...string) (settings, bool, error) {
	raw, ok := s.lookup(keys...)
	if !ok || raw == nil {
		return nil, false, nil
	}
	m, err := toSettings(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", keys[0], err)
	}
	return m, true, nil
}

func toSettings(v any) (settings, error) {
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, fmt.Errorf("expected a table, got %T", v)
	}
	out := make(settings, len(m))
	for k, val := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = val
	}
	return out, nil
}

// decode stores the value found under the first present key in dst. A
// missing key leaves dst untouched.
func decode[T any](s settings, dst *T, conv func(any) (T, error), keys ...string) error {
	raw, ok := s.lookup(keys...)
	if !ok {
		return nil
	}
	v, err := conv(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", keys[0], err)
	}
	*dst = v
	return nil
}

// blankable wraps a cast conversion so that null and blank strings decode
// to the zero value and other strings are trimmed first.
func blankable[T any](conv func(any) (T, error)) func(any) (T, error) {
	return func(v any) (T, error) {
		var zero T
		if v == nil {
			return zero, nil
		}
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s == "" {
				return zero, nil
			}
			v = s
		}
		return conv(v)
	}
}

var (
	toInt   = blankable(cast.ToIntE)
	toBool  = blankable(cast.ToBoolE)
	toFloat = blankable(cast.ToFloat64E)
)

func toText(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, err := cast.ToStringE(v)
	return strings.TrimSpace(s), err
}

// toRaw keeps surrounding whitespace, as request bodies need.
func toRaw(v any) (string, error) {
	return cast.ToStringE(v)
}

func toLowerText(v any) (string, error) {
	s, err := toText(v)
	return strings.ToLower(s), err
}

// toDuration accepts Go duration strings; bare numbers are seconds.
func toDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return d, nil
	case string:
		if d = strings.TrimSpace(d); d == "" {
			return 0, nil
		}
		return time.ParseDuration(d)
	default:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, fmt.Errorf("unsupported duration %v (%T)", v, v)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

// toList decodes a list of strings. A lone string is a one-element list, so
// a single check or threshold may be written without brackets.
func toList(v any) ([]string, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{l}, nil
	default:
		return cast.ToStringSliceE(v)
	}
}

// toStatusCodes accepts a list, a single code or "200, 204".
func toStatusCodes(v any) ([]int, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case string:
		var codes []int
		for _, part := range strings.Split(c, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			n, err := cast.ToIntE(part)
			if err != nil {
				return nil, err
			}
			codes = append(codes, n)
		}
		return codes, nil
	case []any, []int, []string:
		return cast.ToIntSliceE(v)
	default:
		n, err := cast.ToIntE(v)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	}
}

// toHeaders decodes a header table with canonical keys.
func toHeaders(v any) (map[string]string, error) {
	if v == nil {
		return map[string]string{}, nil
	}
	m, err := cast.ToStringMapStringE(v)
	if err != nil {
		return nil, fmt.Errorf("expected a table, got %T", v)
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, fmt.Errorf("header key cannot be empty")
		}
		out[http.CanonicalHeaderKey(key)] = val
	}
	return out, nil
}
