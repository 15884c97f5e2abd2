// Package serialize reads and writes the JSON documents that make up a
// resource tree. Output formatting is stable (sorted keys, four-space
// indent, no HTML escaping) so repeated exports and rewrites of unchanged
// content produce byte-identical files.
package serialize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/util"
)

// Marshal renders v in the tree's canonical JSON form.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadValue parses a JSON file into a generic value (object or array).
func ReadValue(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// ReadDoc parses a JSON file that must hold a single object.
func ReadDoc(path string) (map[string]any, error) {
	v, err := ReadValue(path)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: not a JSON object", path)
	}
	return doc, nil
}

// WriteValue writes v to path in canonical form, creating parent
// directories as needed.
func WriteValue(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	return fsutil.WriteFile(path, data)
}

// WriteValueIfChanged writes v only when the canonical encoding differs from
// the file's current content. Returns whether a write happened.
func WriteValueIfChanged(path string, v any) (bool, error) {
	data, err := Marshal(v)
	if err != nil {
		return false, err
	}
	if current, err := os.ReadFile(path); err == nil {
		if util.SHA256Bytes(current) == util.SHA256Bytes(data) {
			return false, nil
		}
	}
	if err := fsutil.WriteFile(path, data); err != nil {
		return false, err
	}
	return true, nil
}
