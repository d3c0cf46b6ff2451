package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode parses exactly one JSON object from data. Numbers are kept as
// json.Number and object key order is preserved. Trailing data after the
// object is an error.
func Decode(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("json: read first token: %w", err)
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("json: root is %v, want object", tok)
	}
	v, err := materialize(dec, tok)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("json: extra data after object at offset %d", dec.InputOffset())
		}
		return nil, fmt.Errorf("json: extra data after object: %w", err)
	}
	return v.(*Record), nil
}

// MustDecode is Decode for literals in tests and fixtures. It panics on error.
func MustDecode(s string) *Record {
	r, err := Decode([]byte(s))
	if err != nil {
		panic(err)
	}
	return r
}

// materialize builds a value whose first token has already been read.
func materialize(dec *json.Decoder, tok json.Token) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch d {
	case '{':
		obj := New()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read object key: %w", err)
			}
			k, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("json: object key not a string (got %T)", kt)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read value of %q: %w", k, err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			obj.Set(k, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("json: read object end: %w", err)
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read array element: %w", err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("json: read array end: %w", err)
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("json: unexpected delimiter %q", d)
	}
}

// MarshalJSON writes the record with its keys in source order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
