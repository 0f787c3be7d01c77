package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"seminar_standings/internal/common"
)

// Options is the JSON options bag of a round.
type Options map[string]json.RawMessage

func ParseOptions(raw json.RawMessage) (Options, error) {
	opts := Options{}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return opts, nil
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, fmt.Errorf("policy options are not a JSON object: %v: %w", err, common.ErrConfiguration)
	}
	return opts, nil
}

// lookup returns the first key present.
func (o Options) lookup(keys ...string) (string, json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := o[k]; ok && string(v) != "null" {
			return k, v, true
		}
	}
	return "", nil, false
}

func (o Options) String(keys ...string) (string, bool, error) {
	k, raw, ok := o.lookup(keys...)
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("option %q must be a string: %w", k, common.ErrConfiguration)
	}
	return s, true, nil
}

func (o Options) Int(keys ...string) (int, bool, error) {
	k, raw, ok := o.lookup(keys...)
	if !ok {
		return 0, false, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false, fmt.Errorf("option %q must be an integer: %w", k, common.ErrConfiguration)
	}
	return n, true, nil
}

// Time accepts RFC 3339 timestamps and plain dates (midnight UTC).
func (o Options) Time(keys ...string) (time.Time, bool, error) {
	s, ok, err := o.String(keys...)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, perr := time.Parse(layout, s); perr == nil {
			return t.UTC(), true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("option %q is not a valid date: %q: %w", keys[0], s, common.ErrConfiguration)
}

func (o Options) Decode(v any, keys ...string) (bool, error) {
	k, raw, ok := o.lookup(keys...)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("option %q is malformed: %v: %w", k, err, common.ErrConfiguration)
	}
	return true, nil
}
