// Package xmlrpc implements the subset of XML-RPC needed to talk to an Odoo
// style ERP: a value codec, an HTTP transport and a thin client exposing
// authenticate and execute_kw.
package xmlrpc

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/shopspring/decimal"
)

// Kind identifies the variant held by a Value
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindArray
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a tagged union over the XML-RPC types. The zero Value is Nil.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	st   Struct
}

// Member is a single named entry of a Struct
type Member struct {
	Name  string
	Value Value
}

// Struct is an ordered XML-RPC struct; members encode in insertion order
type Struct []Member

// Nil returns the nil sentinel. It has no wire type of its own and encodes as
// boolean false.
func Nil() Value { return Value{kind: KindNil} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Double wraps a float
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a list of values
func Array(vs ...Value) Value {
	return Value{kind: KindArray, arr: append([]Value{}, vs...)}
}

// StructValue wraps a struct
func StructValue(s Struct) Value {
	return Value{kind: KindStruct, st: append(Struct{}, s...)}
}

// Kind returns the variant held by v
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the nil sentinel
func (v Value) IsNil() bool { return v.kind == KindNil }

// AsBool returns the boolean payload
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsDouble returns the float payload. Integers are widened.
func (v Value) AsDouble() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsString returns the string payload
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsArray returns the array elements
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsStruct returns the struct members
func (v Value) AsStruct() (Struct, bool) { return v.st, v.kind == KindStruct }

// Truthy follows the ERP convention where false, 0, "" and empty
// collections stand for "no value".
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindDouble:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindArray:
		return len(v.arr) > 0
	case KindStruct:
		return len(v.st) > 0
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindDouble:
		return formatDouble(v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.arr))
	case KindStruct:
		return fmt.Sprintf("struct(%d)", len(v.st))
	}
	return "?"
}

// Get returns the value of the named member
func (s Struct) Get(name string) (Value, bool) {
	for _, m := range s {
		if m.Name == name {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Has reports whether the named member exists
func (s Struct) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Set replaces the named member or appends it, keeping insertion order
func (s *Struct) Set(name string, v Value) {
	for i := range *s {
		if (*s)[i].Name == name {
			(*s)[i].Value = v
			return
		}
	}
	*s = append(*s, Member{Name: name, Value: v})
}

// GetString returns a string member; ERP false and missing members yield ""
func (s Struct) GetString(name string) string {
	v, ok := s.Get(name)
	if !ok {
		return ""
	}
	str, _ := v.AsString()
	return str
}

// GetInt returns an integer member. Many2one fields arrive as [id, name] and
// yield their id.
func (s Struct) GetInt(name string) int64 {
	v, ok := s.Get(name)
	if !ok {
		return 0
	}
	if i, ok := v.AsInt(); ok {
		return i
	}
	if arr, ok := v.AsArray(); ok && len(arr) > 0 {
		i, _ := arr[0].AsInt()
		return i
	}
	return 0
}

// GetFloat returns a numeric member as float64
func (s Struct) GetFloat(name string) float64 {
	v, ok := s.Get(name)
	if !ok {
		return 0
	}
	f, _ := v.AsDouble()
	return f
}

// FromGo converts a native Go value. Numbers with no fractional part become
// Int, others Double.
func FromGo(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Nil(), nil
	case Value:
		return t, nil
	case Struct:
		return StructValue(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case float32:
		return fromFloat(float64(t)), nil
	case float64:
		return fromFloat(t), nil
	case decimal.Decimal:
		if t.Equal(t.Truncate(0)) && t.Abs().LessThan(decimal.NewFromInt(math.MaxInt64)) {
			return Int(t.IntPart()), nil
		}
		return Double(t.InexactFloat64()), nil
	case []Value:
		return Array(t...), nil
	case []any:
		out := make([]Value, 0, len(t))
		for i, e := range t {
			v, err := FromGo(e)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, v)
		}
		return Array(out...), nil
	case []int64:
		out := make([]Value, 0, len(t))
		for _, e := range t {
			out = append(out, Int(e))
		}
		return Array(out...), nil
	case []string:
		out := make([]Value, 0, len(t))
		for _, e := range t {
			out = append(out, String(e))
		}
		return Array(out...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		st := make(Struct, 0, len(keys))
		for _, k := range keys {
			v, err := FromGo(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("member %q: %w", k, err)
			}
			st = append(st, Member{Name: k, Value: v})
		}
		return StructValue(st), nil
	}
	return Value{}, fmt.Errorf("xmlrpc: unsupported native type %s", reflect.TypeOf(x))
}

// MustFromGo is FromGo for literals known to be representable
func MustFromGo(x any) Value {
	v, err := FromGo(x)
	if err != nil {
		panic(err)
	}
	return v
}

func fromFloat(f float64) Value {
	if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
		return Int(int64(f))
	}
	return Double(f)
}
