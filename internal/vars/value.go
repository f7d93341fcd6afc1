// Package vars holds the typed variable store shared by the steps of one run.
package vars

import (
	"strconv"
	"strings"
)

// Type is the declared type of a variable literal
type Type string

const (
	Int    Type = "int"
	Bool   Type = "bool"
	String Type = "string"
)

// ParseType normalizes a declared type name. Unknown or empty names mean String.
func ParseType(name string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(name))) {
	case Int:
		return Int
	case Bool:
		return Bool
	default:
		return String
	}
}

// Value is a tagged int, bool or string. The zero Value is absent.
type Value struct {
	typ Type
	i   int64
	b   bool
	s   string
}

func IntValue(i int64) Value     { return Value{typ: Int, i: i} }
func BoolValue(b bool) Value     { return Value{typ: Bool, b: b} }
func StringValue(s string) Value { return Value{typ: String, s: s} }

// Type returns the value's type, or "" when absent
func (v Value) Type() Type { return v.typ }

// Present reports whether the value holds anything
func (v Value) Present() bool { return v.typ != "" }

// Int returns the integer payload and whether the value is an int
func (v Value) Int() (int64, bool) { return v.i, v.typ == Int }

// Equal compares type and payload. Values of different types are never equal.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case Int:
		return v.i == o.i
	case Bool:
		return v.b == o.b
	case String:
		return v.s == o.s
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.typ {
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Bool:
		return strconv.FormatBool(v.b)
	case String:
		return v.s
	default:
		return "None"
	}
}

var truthy = map[string]bool{"1": true, "true": true, "yes": true, "on": true}

// Parse converts literal text to a Value of the declared type.
// Malformed integers become 0; bools are true only for 1/true/yes/on.
func Parse(text string, typ Type) Value {
	switch typ {
	case Int:
		n, _ := parseInt(text)
		return IntValue(n)
	case Bool:
		return BoolValue(truthy[strings.ToLower(strings.TrimSpace(text))])
	default:
		return StringValue(text)
	}
}

// parseInt reads a decimal integer. Underscores may group digits ("1_000")
// but only between two digits; anything malformed reports false.
func parseInt(text string) (int64, bool) {
	s := strings.TrimSpace(text)
	if strings.Contains(s, "_") {
		for i := 0; i < len(s); i++ {
			if s[i] == '_' && (i == 0 || i == len(s)-1 || !isDigit(s[i-1]) || !isDigit(s[i+1])) {
				return 0, false
			}
		}
		s = strings.ReplaceAll(s, "_", "")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
