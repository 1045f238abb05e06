package value

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Hint selects how raw text is converted into a Value
type Hint string

const (
	HintAuto   Hint = "auto"
	HintBool   Hint = "bool"
	HintInt    Hint = "int"
	HintFloat  Hint = "float"
	HintString Hint = "string"
)

// ParseHint validates a --type flag value. An empty string means auto.
func ParseHint(s string) (Hint, error) {
	switch Hint(strings.ToLower(strings.TrimSpace(s))) {
	case "", HintAuto:
		return HintAuto, nil
	case HintBool, "boolean":
		return HintBool, nil
	case HintInt, "integer":
		return HintInt, nil
	case HintFloat, "double":
		return HintFloat, nil
	case HintString, "str":
		return HintString, nil
	default:
		return "", fmt.Errorf("unknown value type %q (expected auto, bool, int, float or string)", s)
	}
}

var numericLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// truthy tokens accepted by the explicit bool hint; anything else is false.
var truthy = map[string]bool{
	"1":    true,
	"true": true,
	"t":    true,
	"yes":  true,
	"y":    true,
	"on":   true,
}

// Coerce converts raw operator input into a typed Value.
//
// With HintAuto the literals "true" and "false" (case-sensitive) become
// booleans, numeric literals containing a dot become floats, other numeric
// literals become integers, and everything else stays a string. Explicit
// hints always succeed: non-numeric input to int/float yields 0.
func Coerce(raw string, hint Hint) Value {
	switch hint {
	case HintBool:
		return Bool(ParseBool(raw))
	case HintInt:
		return Int(parseInt(raw))
	case HintFloat:
		return Float(parseFloat(raw))
	case HintString:
		return String(raw)
	}

	switch raw {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if !numericLiteral.MatchString(raw) {
		return String(raw)
	}
	if strings.Contains(raw, ".") {
		return Float(parseFloat(raw))
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Int(i)
	}
	// exponent form or overflow
	f := parseFloat(raw)
	if f == math.Trunc(f) && math.Abs(f) <= math.MaxInt64 {
		return Int(int64(f))
	}
	return Float(f)
}

// ParseBool applies permissive boolean parsing: 1, true, t, yes, y and on
// (case-insensitive) are true, everything else is false.
func ParseBool(s string) bool {
	return truthy[strings.ToLower(strings.TrimSpace(s))]
}

func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if numericLiteral.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && !math.IsInf(f, 0) {
			return int64(f)
		}
	}
	return 0
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if !numericLiteral.MatchString(s) {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
