package boundary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNoInput reports a boundary object stream with no content at all, so
// commands reading from stdin fail loudly instead of summarizing nothing.
var ErrNoInput = errors.New("no boundary object input provided")

// ParseStream reads boundary objects from r, accepting a single JSON object,
// a JSON array of objects, or NDJSON, auto-detecting which.
func ParseStream(r io.Reader) ([]Object, error) {
	raws, err := ParseRawStream(r)
	if err != nil {
		return nil, err
	}
	objects := make([]Object, 0, len(raws))
	for i, raw := range raws {
		var obj Object
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse boundary object %d in stream: %w", i+1, err)
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// ParseRawStream splits the same three input shapes into raw JSON documents
// without binding them to the Object type, so callers can schema-validate
// unknown fields too.
func ParseRawStream(r io.Reader) ([]json.RawMessage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundary object stream: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrNoInput
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("failed to parse boundary object array: %w", err)
		}
		return raws, nil
	}

	// A json.Decoder consumes concatenated objects regardless of line
	// breaks, so the single-object and NDJSON cases share one path.
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	var raws []json.RawMessage
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return raws, nil
			}
			return nil, fmt.Errorf("failed to parse boundary object %d in stream: %w", len(raws)+1, err)
		}
		raws = append(raws, raw)
	}
}
