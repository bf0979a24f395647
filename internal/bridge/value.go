package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindOmitted marks a value that must not appear in the row (BLOB).
	// It is the zero Kind.
	KindOmitted Kind = iota
	KindNull
	KindInteger
	KindReal
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	default:
		return "omitted"
	}
}

// Value is a single column value of a query result.
// The zero Value is Omitted.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Integer returns an integer Value.
func Integer(v int64) Value { return Value{kind: KindInteger, i: v} }

// Real returns a floating-point Value.
func Real(v float64) Value { return Value{kind: KindReal, f: v} }

// Text returns a string Value.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Null returns the SQL NULL Value.
func Null() Value { return Value{kind: KindNull} }

// Omitted returns the Value used for BLOB columns.
func Omitted() Value { return Value{} }

// Int returns the integer payload. Only meaningful for KindInteger.
func (v Value) Int() int64 { return v.i }

// Float returns the real payload. Only meaningful for KindReal.
func (v Value) Float() float64 { return v.f }

// Text returns the string payload. Only meaningful for KindText.
func (v Value) Text() string { return v.s }

// String formats v for logs.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return strconv.Quote(v.s)
	default:
		return "<omitted>"
	}
}

// MarshalJSON implements json.Marshaler. Omitted values have no JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInteger:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindReal:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("unsupported real value %v", v.f)
		}
		return json.Marshal(v.f)
	case KindText:
		return encodeJSON(v.s)
	default:
		return nil, fmt.Errorf("omitted value has no JSON form")
	}
}

// encodeJSON encodes without HTML escaping and without a trailing newline.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
