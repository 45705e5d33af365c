// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtraField is an object member the index carries that no struct field
// models (for example "pubtime"). It is written back verbatim, in its
// original position relative to other extra fields, after the known fields.
type ExtraField struct {
	Key   string
	Value json.RawMessage
}

// keySet holds lowercased JSON member names. encoding/json matches members
// to fields case-insensitively, so lookups fold case the same way.
type keySet map[string]bool

func newKeySet(keys ...string) keySet {
	s := make(keySet, len(keys))
	for _, k := range keys {
		s[strings.ToLower(k)] = true
	}
	return s
}

var (
	indexRecordKeys = newKeySet("name", "vers", "deps", "cksum", "features",
		"features2", "yanked", "links", "rust_version", "v")
	dependencyKeys = newKeySet("name", "req", "features", "optional",
		"default_features", "target", "kind", "package")
)

// splitExtra returns the members of the JSON object data whose names are
// not in known, in document order. A JSON null yields nothing.
func splitExtra(data []byte, known keySet) ([]ExtraField, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	var extra []ExtraField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if known[strings.ToLower(key)] {
			continue
		}
		extra = append(extra, ExtraField{Key: key, Value: raw})
	}
	return extra, nil
}

// marshalWithExtra encodes known (a struct without custom marshaling) and
// appends extra members before the closing brace. HTML characters are not
// escaped.
func marshalWithExtra(known any, extra []ExtraField) ([]byte, error) {
	out, err := encodeNoEscape(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return out, nil
	}

	out = out[:len(out)-1]
	for _, f := range extra {
		if out[len(out)-1] != '{' {
			out = append(out, ',')
		}
		key, err := encodeNoEscape(f.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, key...)
		out = append(out, ':')
		out = append(out, f.Value...)
	}
	return append(out, '}'), nil
}

func encodeNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// indexRecordFields and dependencyFields drop the JSON methods so the
// default struct codec handles the known fields.
type (
	indexRecordFields IndexRecord
	dependencyFields  Dependency
)

func (r IndexRecord) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(indexRecordFields(r), r.Extra)
}

func (r *IndexRecord) UnmarshalJSON(data []byte) error {
	var f indexRecordFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := splitExtra(data, indexRecordKeys)
	if err != nil {
		return err
	}
	f.Extra = extra
	*r = IndexRecord(f)
	return nil
}

func (d Dependency) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(dependencyFields(d), d.Extra)
}

func (d *Dependency) UnmarshalJSON(data []byte) error {
	var f dependencyFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := splitExtra(data, dependencyKeys)
	if err != nil {
		return err
	}
	f.Extra = extra
	*d = Dependency(f)
	return nil
}
