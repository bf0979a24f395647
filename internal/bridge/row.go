package bridge

import "bytes"

// Row maps column names to values, remembering the order in which names
// were first set.
type Row struct {
	columns []string
	values  map[string]Value
}

// Set stores v under col. Omitted values are ignored, so they neither add
// the column nor replace an earlier value for it.
func (r *Row) Set(col string, v Value) {
	if v.kind == KindOmitted {
		return
	}
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[col]; !ok {
		r.columns = append(r.columns, col)
	}
	r.values[col] = v
}

// Get returns the value stored under col.
func (r Row) Get(col string) (Value, bool) {
	v, ok := r.values[col]
	return v, ok
}

// Columns returns column names in first-seen order.
func (r Row) Columns() []string {
	return append([]string(nil), r.columns...)
}

// MarshalJSON encodes the row as an object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encodeJSON(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := r.values[col].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
