package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Kind is the dynamic type carried by a Value
type Kind string

const (
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
)

// Value is a tagged setting value. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Null returns the null value
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a float
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the value's type tag
func (v Value) Kind() Kind {
	if v.kind == "" {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether v carries no value
func (v Value) IsNull() bool { return v.Kind() == KindNull }

// IsBool reports whether v is a boolean
func (v Value) IsBool() bool { return v.kind == KindBool }

// AsBool returns the value interpreted as a boolean using permissive rules.
func (v Value) AsBool() bool {
	switch v.Kind() {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return ParseBool(v.s)
	default:
		return false
	}
}

// AsInt returns the value as an integer; non-numeric values yield 0.
func (v Value) AsInt() int64 {
	switch v.Kind() {
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	case KindString:
		return parseInt(v.s)
	default:
		return 0
	}
}

// AsFloat returns the value as a float; non-numeric values yield 0.
func (v Value) AsFloat() float64 {
	switch v.Kind() {
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	case KindString:
		return parseFloat(v.s)
	default:
		return 0
	}
}

// IsNumeric reports whether v is an int or float, or a string holding a
// numeric literal.
func (v Value) IsNumeric() bool {
	switch v.Kind() {
	case KindInt, KindFloat:
		return true
	case KindString:
		return numericLiteral.MatchString(strings.TrimSpace(v.s))
	default:
		return false
	}
}

// Text returns the canonical textual form used for storage and comparison.
// Null renders as the empty string.
func (v Value) Text() string {
	switch v.Kind() {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return strconv.FormatFloat(v.f, 'g', -1, 64)
		}
		return decimal.NewFromFloat(v.f).String()
	case KindString:
		return v.s
	default:
		return ""
	}
}

// String implements fmt.Stringer
func (v Value) String() string {
	if v.IsNull() {
		return "null"
	}
	return v.Text()
}

// Interface returns the plain Go value for encoders (nil, bool, int64,
// float64 or string).
func (v Value) Interface() any {
	switch v.Kind() {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Portable returns the form stored in backups and export documents. Floats
// stay Values so their encoders keep a fractional part and the kind survives
// a round trip; everything else is the plain Go value.
func (v Value) Portable() any {
	if v.Kind() == KindFloat {
		return v
	}
	return v.Interface()
}

// floatText renders a float so that decoders read it back as a float
func (v Value) floatText() string {
	text := v.Text()
	if strings.Contains(text, ".") {
		return text
	}
	return text + ".0"
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind() != KindFloat {
		return json.Marshal(v.Interface())
	}
	if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
		return nil, fmt.Errorf("unsupported float value %s", v.Text())
	}
	return []byte(v.floatText()), nil
}

// MarshalYAML implements yaml.Marshaler
func (v Value) MarshalYAML() (any, error) {
	if v.Kind() != KindFloat {
		return v.Interface(), nil
	}
	text := v.floatText()
	switch {
	case math.IsNaN(v.f):
		text = ".nan"
	case math.IsInf(v.f, 1):
		text = ".inf"
	case math.IsInf(v.f, -1):
		text = "-.inf"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: text}, nil
}

// FromAny converts a decoded document value into a Value. Integral numbers
// stay integers, maps and slices fall back to their text form.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Int(int64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return Int(int64(t))
	case float32:
		return fromFloat(float64(t))
	case float64:
		return fromFloat(t)
	case string:
		return String(t)
	case fmt.Stringer:
		// json.Number and friends
		return Coerce(t.String(), HintAuto)
	default:
		s, err := cast.ToStringE(x)
		if err != nil {
			return String(fmt.Sprintf("%v", x))
		}
		return String(s)
	}
}

func fromFloat(f float64) Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return Int(int64(f))
	}
	return Float(f)
}

// Equivalent compares an intended value with a value read back from the
// store. Booleans compare by truthiness, numbers by numeric value and
// everything else by canonical text.
func Equivalent(expected, actual Value) bool {
	if expected.IsBool() || actual.IsBool() {
		if expected.IsNull() || actual.IsNull() {
			return false
		}
		return expected.AsBool() == actual.AsBool()
	}
	if expected.IsNull() || actual.IsNull() {
		return expected.IsNull() && actual.IsNull()
	}
	if expected.IsNumeric() && actual.IsNumeric() {
		a, errA := decimal.NewFromString(strings.TrimSpace(expected.Text()))
		b, errB := decimal.NewFromString(strings.TrimSpace(actual.Text()))
		if errA == nil && errB == nil {
			return a.Equal(b)
		}
	}
	return expected.Text() == actual.Text()
}
