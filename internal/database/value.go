package database

import (
	"bytes"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind tags the scalar held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a single cell: text, number, boolean or null.
type Value struct {
	Kind  Kind
	Text  string
	Int   int64
	Float float64
	Bool  bool
}

// Null is the null Value.
var Null = Value{}

func Text(s string) Value    { return Value{Kind: KindText, Text: s} }
func Int(n int64) Value      { return Value{Kind: KindInt, Int: n} }
func Float(f float64) Value  { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func (v Value) IsNull() bool { return v.Kind == KindNull }

// ValueOf converts a value produced by a driver scan into a Value.
// Byte slices become text when they are valid UTF-8 and base64 text otherwise;
// times are rendered as RFC 3339 text and 16-byte arrays as UUIDs.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case string:
		return Text(x)
	case []byte:
		if utf8.Valid(x) {
			return Text(string(x))
		}
		return Text(base64.StdEncoding.EncodeToString(x))
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Float(float64(x))
		}
		return Int(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return Float(float64(x))
		}
		return Int(int64(x))
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case time.Time:
		return Text(x.Format(time.RFC3339Nano))
	case [16]byte:
		// pgx decodes uuid columns into a bare array.
		return Text(uuid.UUID(x).String())
	case driver.Valuer:
		// pgtype values (numeric, interval, …) render through their driver value.
		dv, err := x.Value()
		if err != nil {
			return Text(fmt.Sprint(x))
		}
		if _, again := dv.(driver.Valuer); again {
			return Text(fmt.Sprint(dv))
		}
		return ValueOf(dv)
	case fmt.Stringer:
		return Text(x.String())
	default:
		return Text(fmt.Sprint(x))
	}
}

// Any returns the Go-native representation of v.
func (v Value) Any() any {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}

// String renders v for display; null renders as the empty string.
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// MarshalJSON encodes v as a JSON scalar. NaN and infinities, which JSON
// cannot represent, are encoded as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindFloat && (math.IsNaN(v.Float) || math.IsInf(v.Float, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Any())
}

// Record is one result row: column names in result order and their values.
type Record struct {
	Columns []string
	Values  []Value
}

// Get returns the value of the named column.
func (r Record) Get(column string) (Value, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return Null, false
}

// Map returns the row as a plain map of Go-native values.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i].Any()
	}
	return m
}

// MarshalJSON encodes the row as a JSON object whose keys keep column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.Values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
