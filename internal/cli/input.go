package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/roster/internal/value"
)

// decodeObject parses a JSON object flag. Numbers keep their exact text
// until value conversion. Empty input is an empty map.
func decodeObject(flag, text string) (value.Map, error) {
	if strings.TrimSpace(text) == "" {
		return value.Map{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("--%s: invalid JSON: %w", flag, err)
	}
	m, err := value.MapFromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return m, nil
}

// fieldsMap converts key=value flags to a value map. Keys are trimmed and
// empty keys dropped.
func fieldsMap(fields map[string]string) value.Map {
	m := make(value.Map, len(fields))
	for k, v := range fields {
		if k = strings.TrimSpace(k); k != "" {
			m[k] = value.String(v)
		}
	}
	return m
}

// profileFromFlags layers a JSON profile, then key=value fields, then the
// named flags that were given.
func profileFromFlags(profileJSON string, fields map[string]string, named map[string]string) (value.Map, error) {
	profile, err := decodeObject("profile", profileJSON)
	if err != nil {
		return nil, err
	}
	for k, v := range fieldsMap(fields) {
		profile[k] = v
	}
	for k, v := range named {
		if v != "" {
			profile[k] = value.String(v)
		}
	}
	return profile, nil
}
