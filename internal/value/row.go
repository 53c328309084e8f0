package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Row is an ordered mapping from column name to Value.
// Column order is insertion order; setting an existing column keeps its slot.
type Row struct {
	cols []string
	vals []Value
}

// NewRow builds a Row from alternating column/value pairs.
func NewRow(pairs ...any) (Row, error) {
	if len(pairs)%2 != 0 {
		return Row{}, fmt.Errorf("value: odd number of row arguments")
	}
	var r Row
	for i := 0; i < len(pairs); i += 2 {
		col, ok := pairs[i].(string)
		if !ok {
			return Row{}, fmt.Errorf("value: column name at %d is %T, not string", i, pairs[i])
		}
		v, err := Of(pairs[i+1])
		if err != nil {
			return Row{}, fmt.Errorf("value: column %s: %w", col, err)
		}
		r.Set(col, v)
	}
	return r, nil
}

func (r *Row) Set(col string, v Value) {
	for i, c := range r.cols {
		if c == col {
			r.vals[i] = v
			return
		}
	}
	r.cols = append(r.cols, col)
	r.vals = append(r.vals, v)
}

func (r Row) Get(col string) (Value, bool) {
	for i, c := range r.cols {
		if c == col {
			return r.vals[i], true
		}
	}
	return Value{}, false
}

// Lookup is Get with case-insensitive column matching.
func (r Row) Lookup(col string) (Value, bool) {
	for i, c := range r.cols {
		if strings.EqualFold(c, col) {
			return r.vals[i], true
		}
	}
	return Value{}, false
}

func (r Row) Len() int { return len(r.cols) }

func (r Row) Columns() []string { return append([]string(nil), r.cols...) }

func (r Row) Values() []Value { return append([]Value(nil), r.vals...) }

// Each calls fn for every column in order.
func (r Row) Each(fn func(col string, v Value)) {
	for i, c := range r.cols {
		fn(c, r.vals[i])
	}
}

// Equal reports whether both rows hold the same columns, in the same order, with equal values.
func (r Row) Equal(o Row) bool {
	if len(r.cols) != len(o.cols) {
		return false
	}
	for i := range r.cols {
		if r.cols[i] != o.cols[i] || !r.vals[i].Equal(o.vals[i]) {
			return false
		}
	}
	return true
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.vals[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping its key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("value: row must be a JSON object")
	}
	var out Row
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("value: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("value: column %s: %w", key, err)
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("value: column %s: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// Params decodes a JSON object into a parameter map.
func Params(data []byte) (map[string]Value, error) {
	var r Row
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	out := make(map[string]Value, r.Len())
	r.Each(func(col string, v Value) { out[col] = v })
	return out, nil
}
