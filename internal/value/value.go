// Package value holds the dynamically typed scalars and ordered rows that flow
// between the data-access core and its callers.
package value

import (
	"bytes"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the closed set of scalar kinds a Value can hold.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an immutable scalar. The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	num  decimal.Decimal
	b    bool
	t    time.Time
	bin  []byte
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }
func Int(i int64) Value { return Number(decimal.NewFromInt(i)) }
func Float(f float64) Value { return Number(decimal.NewFromFloat(f)) }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Binary copies b.
func Binary(b []byte) Value {
	return Value{kind: KindBinary, bin: append([]byte(nil), b...)}
}

// Of converts a native Go value into a Value.
func Of(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Number(decimal.RequireFromString(strconv.FormatUint(uint64(x), 10))), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return Number(decimal.RequireFromString(strconv.FormatUint(x, 10))), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Value{}, fmt.Errorf("value: non-finite float %v", x)
		}
		return Float(x), nil
	case decimal.Decimal:
		return Number(x), nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return Value{}, fmt.Errorf("value: invalid number %q: %w", x, err)
		}
		return Number(d), nil
	case time.Time:
		return Time(x), nil
	case []byte:
		return Binary(x), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported type %T", v)
	}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Text() string { return v.str }
func (v Value) Decimal() decimal.Decimal { return v.num }
func (v Value) Truth() bool { return v.b }
func (v Value) Instant() time.Time { return v.t }
func (v Value) Bytes() []byte { return v.bin }

// Any returns the natural Go representation.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	case KindBinary:
		return v.bin
	default:
		return nil
	}
}

// Equal compares kind and content; numbers compare by magnitude, so 1500 equals 1500.00.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num.Equal(o.num)
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	case KindBinary:
		return bytes.Equal(v.bin, o.bin)
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindString:
		return v.str
	case KindNumber:
		return v.num.String()
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindBinary:
		return base64.StdEncoding.EncodeToString(v.bin)
	}
	return ""
}

// Value implements driver.Valuer. Whole numbers that fit bind as int64,
// other numbers bind as their exact decimal text.
func (v Value) Value() (driver.Value, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindString:
		return v.str, nil
	case KindNumber:
		if v.num.IsInteger() {
			if i := v.num.IntPart(); decimal.NewFromInt(i).Equal(v.num) {
				return i, nil
			}
		}
		return v.num.String(), nil
	case KindBool:
		return v.b, nil
	case KindTime:
		return v.t, nil
	case KindBinary:
		return v.bin, nil
	}
	return nil, fmt.Errorf("value: unknown kind %d", v.kind)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	case KindBinary:
		return json.Marshal(v.bin)
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON accepts any JSON value. Objects and arrays are kept as their
// compact JSON text so they can be bound to json/jsonb style parameters.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("value: empty JSON")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*v = String(buf.String())
		return nil
	default:
		d, err := decimal.NewFromString(string(data))
		if err != nil {
			return fmt.Errorf("value: invalid number %s: %w", data, err)
		}
		*v = Number(d)
		return nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts ISO-8601 forms with or without zone and bare dates.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsDateOnly reports whether s looks like YYYY-MM-DD with no time part.
func IsDateOnly(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 10 || strings.Count(s, "-") != 2 {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// Coerce converts a String value to kind when its text parses as that kind.
// Values that are not strings, or that do not parse, are returned unchanged
// and left for the database to convert or reject.
func Coerce(v Value, kind Kind) Value {
	if v.kind != KindString || kind == KindString || kind == KindNull {
		return v
	}
	s := strings.TrimSpace(v.str)
	switch kind {
	case KindNumber:
		if d, err := decimal.NewFromString(s); err == nil {
			return Number(d)
		}
	case KindBool:
		switch strings.ToLower(s) {
		case "true", "1", "yes", "si", "t", "y":
			return Bool(true)
		case "false", "0", "no", "f", "n":
			return Bool(false)
		}
	case KindTime:
		if t, ok := ParseTime(s); ok {
			return Time(t)
		}
	}
	return v
}
