package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field is one attribute of a feature. Value is nil, float64, string, bool,
// or json.RawMessage for nested objects and arrays.
type Field struct {
	Name  string
	Value any
}

// Attributes are the fields of a single feature, in upstream JSON order.
type Attributes []Field

// Lookup returns the value of the first field with the given name.
func (a Attributes) Lookup(name string) (any, bool) {
	for _, f := range a {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// UnmarshalJSON decodes a JSON object while keeping key order.
// null or any non-object leaves the receiver nil, {} yields an empty
// non-nil slice.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		*a = nil
		return nil
	}

	out := Attributes{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("attributes: expected key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("attributes: field %q: %w", name, err)
		}
		value, err := decodeScalar(raw)
		if err != nil {
			return fmt.Errorf("attributes: field %q: %w", name, err)
		}
		out = append(out, Field{Name: name, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}

func decodeScalar(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case 'n':
		return nil, nil
	case 't', 'f':
		var b bool
		err := json.Unmarshal(trimmed, &b)
		return b, err
	case '"':
		var s string
		err := json.Unmarshal(trimmed, &s)
		return s, err
	case '{', '[':
		return json.RawMessage(trimmed), nil
	default:
		f, err := strconv.ParseFloat(string(trimmed), 64)
		if errors.Is(err, strconv.ErrRange) {
			// out of float64 range reads as ±Inf
			return f, nil
		}
		return f, err
	}
}

// MarshalJSON encodes the fields as an object in their original order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, f := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(f.Name); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends '\n'
		buf.WriteByte(':')
		v := f.Value
		if n, ok := v.(float64); ok && (math.IsInf(n, 0) || math.IsNaN(n)) {
			v = nil
		}
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PopupText renders the attributes as two-space indented JSON.
func (a Attributes) PopupText() string {
	raw, err := a.MarshalJSON()
	if err != nil {
		return ""
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

// FormatNumber renders a float the way JavaScript's String(n) does:
// shortest round-trip digits, exponent form below 1e-6 and from 1e21.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if format == 'e' {
		// e-07 -> e-7
		n := len(s)
		if n >= 4 && s[n-4] == 'e' && s[n-3] == '-' && s[n-2] == '0' {
			s = s[:n-2] + s[n-1:]
		}
	}
	return s
}

// numericValue reports whether v is a number or a numeric string, and its value.
// Non-finite values still count as numeric; callers check finiteness.
func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// valueString renders a raw attribute value as the response "value".
func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return FormatNumber(t)
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
