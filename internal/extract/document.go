package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Document is one raw scraped record. Its shape is not guaranteed: every
// accessor is total and reports absence instead of failing.
type Document map[string]any

// maxCount bounds whole numbers read from documents; larger values are
// treated as unreadable.
const maxCount = math.MaxInt32

// ParseDocument decodes a single raw JSON record. Anything that is not a JSON
// object is rejected. Numbers are kept as json.Number so large numeric ids
// are not rounded through float64.
func ParseDocument(raw json.RawMessage) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ExtractionError{Reason: "invalid json", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ExtractionError{Reason: "trailing data after object", Err: err}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ExtractionError{Reason: fmt.Sprintf("expected object, got %T", v)}
	}
	return Document(m), nil
}

// Path walks nested objects by key and arrays by decimal index, e.g.
// Path("listing_photos", "0", "image", "uri").
func (d Document) Path(keys ...string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range keys {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// String returns the trimmed string at path. Numbers are rendered without
// exponent so identifiers stored as numbers survive.
func (d Document) String(keys ...string) (string, bool) {
	v, ok := d.Path(keys...)
	if !ok {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Float returns the number at path; numeric strings are parsed.
func (d Document) Float(keys ...string) (float64, bool) {
	v, ok := d.Path(keys...)
	if !ok {
		return 0, false
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int returns a non-negative whole number at path, up to maxCount.
func (d Document) Int(keys ...string) (int, bool) {
	f, ok := d.Float(keys...)
	if !ok || f < 0 || f > maxCount || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Slice returns the array at path.
func (d Document) Slice(keys ...string) ([]any, bool) {
	v, ok := d.Path(keys...)
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

// Strings collects the string found at field inside every object element of
// the array at path, skipping elements where it is missing.
func (d Document) Strings(field []string, keys ...string) []string {
	items, ok := d.Slice(keys...)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := Document(obj).String(field...); ok {
			out = append(out, s)
		}
	}
	return out
}
