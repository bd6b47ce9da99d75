package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// flexString accepts a JSON string, number or bool. Snowflake ids are usually
// written as strings since they overflow float64.
type flexString struct {
	value string
	set   bool
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &f.value); err != nil {
			return err
		}
		f.set = true
		return nil
	}
	if bytes.Equal(b, []byte("true")) || bytes.Equal(b, []byte("false")) {
		f.value = string(b)
		f.set = true
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string, number or bool, got %s", b)
	}
	f.value = n.String()
	f.set = true
	return nil
}

// decodeParams unmarshals a predicate's params into dst. Empty params
// decode as an empty object.
func decodeParams(predicate string, raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return predicateErrorf(ErrCodeInvalidParams, predicate, "decode params: %v", err)
	}
	return nil
}

// stringParam reads a required string-or-number parameter.
func stringParam(predicate string, raw json.RawMessage, key string) (string, error) {
	var m map[string]flexString
	if err := decodeParams(predicate, raw, &m); err != nil {
		return "", err
	}
	v, ok := m[key]
	if !ok || !v.set {
		return "", predicateErrorf(ErrCodeInvalidParams, predicate, "missing %q", key)
	}
	return v.value, nil
}

// idParam reads a required integer id parameter.
func idParam(predicate string, raw json.RawMessage, key string) (int64, error) {
	s, err := stringParam(predicate, raw, key)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, predicateErrorf(ErrCodeInvalidParams, predicate, "%q is not an integer id: %q", key, s)
	}
	return id, nil
}

// thresholdParam reads the required numeric "threshold" parameter.
func thresholdParam(predicate string, raw json.RawMessage) (float64, error) {
	s, err := stringParam(predicate, raw, "threshold")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, predicateErrorf(ErrCodeInvalidParams, predicate, "threshold is not a number: %q", s)
	}
	return v, nil
}
