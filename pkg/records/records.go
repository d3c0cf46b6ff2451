// Package records holds the loosely-typed record shape produced by the
// extractor and the accessors the loaders use to read it.
//
// Records come from document-store exports, so nothing about their shape is
// guaranteed. Every accessor distinguishes three outcomes:
//   - absent: the field is missing or JSON null (ok=false, err=nil)
//   - wrong shape: the field exists but cannot be read as requested (err != nil)
//   - present: the value was read (ok=true)
//
// Numbers are json.Number (Decode uses UseNumber), so integer and
// floating-point literals stay distinguishable.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Record is one decoded JSON object. It keeps the key order of the source
// document; nested objects are *Record, arrays are []any.
type Record struct {
	keys   []string
	values map[string]any
}

// New returns an empty record.
func New() *Record {
	return &Record{values: make(map[string]any)}
}

// Set stores v under key. A new key is appended to the key order.
func (r *Record) Set(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the raw value stored under key.
func (r *Record) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in source order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// Len returns the number of keys.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// ErrWrongShape is the sentinel wrapped by every ShapeError.
var ErrWrongShape = errors.New("records: wrong shape")

// ShapeError reports a field whose value does not have the expected shape.
type ShapeError struct {
	Path string
	Want string
	Got  any
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("records: %s: want %s, got %s", e.Path, e.Want, TypeName(e.Got))
}

func (e *ShapeError) Unwrap() error { return ErrWrongShape }

// TypeName returns a JSON-flavoured name for v, used in diagnostics.
func TypeName(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		if IsIntegerLiteral(t) {
			return "integer"
		}
		return "number"
	case int, int32, int64:
		return "integer"
	case float32, float64:
		return "number"
	case *Record:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// IsIntegerLiteral reports whether n was written without a fraction or exponent.
func IsIntegerLiteral(n json.Number) bool {
	return !strings.ContainsAny(string(n), ".eE")
}

// Ref reads the two-level reference field.key, e.g. "_id.$oid" or
// "createDate.$date", and renders the scalar as a string.
//
// The reference is absent when field is missing or null, or when the nested
// object has no key. A field that is not an object, or a key that holds an
// object or array, is a ShapeError.
func (r *Record) Ref(field, key string) (string, bool, error) {
	raw, ok := r.Get(field)
	if !ok || raw == nil {
		return "", false, nil
	}
	obj, ok := asObject(raw)
	if !ok {
		return "", false, &ShapeError{Path: field, Want: "object with " + key, Got: raw}
	}
	v, ok := obj.Get(key)
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := scalarString(v)
	if !ok {
		return "", false, &ShapeError{Path: field + "." + key, Want: "scalar", Got: v}
	}
	return s, true, nil
}

// Object returns the nested object stored under field.
func (r *Record) Object(field string) (*Record, bool, error) {
	raw, ok := r.Get(field)
	if !ok || raw == nil {
		return nil, false, nil
	}
	obj, ok := asObject(raw)
	if !ok {
		return nil, false, &ShapeError{Path: field, Want: "object", Got: raw}
	}
	return obj, true, nil
}

// Text returns a scalar field rendered as a string.
func (r *Record) Text(field string) (string, bool, error) {
	raw, ok := r.Get(field)
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := scalarString(raw)
	if !ok {
		return "", false, &ShapeError{Path: field, Want: "scalar", Got: raw}
	}
	return s, true, nil
}

// Float coerces a field to float64. Numeric strings ("26.00") and booleans
// are accepted; anything else that is present is a ShapeError.
func (r *Record) Float(field string) (float64, bool, error) {
	raw, ok := r.Get(field)
	if !ok || raw == nil {
		return 0, false, nil
	}
	f, err := ToFloat(raw)
	if err != nil {
		return 0, false, &ShapeError{Path: field, Want: "number", Got: raw}
	}
	return f, true, nil
}

// Int coerces a field to int64. Fractional numbers are truncated toward zero;
// strings must hold an integer literal.
func (r *Record) Int(field string) (int64, bool, error) {
	raw, ok := r.Get(field)
	if !ok || raw == nil {
		return 0, false, nil
	}
	n, err := ToInt(raw)
	if err != nil {
		return 0, false, &ShapeError{Path: field, Want: "integer", Got: raw}
	}
	return n, true, nil
}

// Objects returns the list of nested objects stored under field.
// A missing or null field yields an empty list.
func (r *Record) Objects(field string) ([]*Record, error) {
	raw, ok := r.Get(field)
	if !ok || raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, &ShapeError{Path: field, Want: "array", Got: raw}
	}
	out := make([]*Record, 0, len(arr))
	for i, elem := range arr {
		obj, ok := asObject(elem)
		if !ok {
			return nil, &ShapeError{Path: fmt.Sprintf("%s[%d]", field, i), Want: "object", Got: elem}
		}
		out = append(out, obj)
	}
	return out, nil
}

// ToFloat converts a scalar to float64.
func ToFloat(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Float64()
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("cannot convert %s to float", TypeName(v))
	}
}

// ToInt converts a scalar to int64.
func ToInt(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		if IsIntegerLiteral(t) {
			return t.Int64()
		}
		f, err := t.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %s to integer", TypeName(v))
	}
}

func asObject(v any) (*Record, bool) {
	obj, ok := v.(*Record)
	return obj, ok && obj != nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
