package vars

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotInteger is returned when += targets a variable holding a non-integer
var ErrNotInteger = errors.New("variable does not hold an integer")

// ErrEmptyName is returned when a variable name is blank
var ErrEmptyName = errors.New("variable name is empty")

const incrementToken = "+="

// Comparison operators accepted by Evaluate
const (
	OpEqual    = "=="
	OpNotEqual = "!="
)

// Store maps variable names to typed values for the lifetime of one run.
// It is owned by a single worker and is not safe for concurrent use.
type Store struct {
	values map[string]Value
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{values: make(map[string]Value)}
}

// Get returns the value for name; absent variables return the zero Value and false
func (s *Store) Get(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Set overwrites name with v
func (s *Store) Set(name string, v Value) {
	s.values[name] = v
}

// Len returns the number of variables set
func (s *Store) Len() int {
	return len(s.values)
}

// Snapshot returns the current values rendered as text, keyed by name
func (s *Store) Snapshot() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v.String()
	}
	return out
}

// Names returns the variable names in sorted order
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Assign stores valueText under name and returns the status message "<name> = <value>".
//
// Text containing "+=" is an increment: the rest is parsed as an integer and added
// to the current value. A missing variable counts as 0; a non-integer one is
// ErrNotInteger.
func (s *Store) Assign(name, valueText string, typ Type) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}

	var v Value
	if strings.Contains(valueText, incrementToken) {
		delta, _ := parseInt(strings.ReplaceAll(valueText, incrementToken, ""))
		cur, ok := s.values[name]
		if !ok {
			cur = IntValue(0)
		}
		n, isInt := cur.Int()
		if !isInt {
			return "", fmt.Errorf("%s += %d: %w (holds %s)", name, delta, ErrNotInteger, cur.Type())
		}
		v = IntValue(n + delta)
	} else {
		v = Parse(valueText, typ)
	}

	s.values[name] = v
	return fmt.Sprintf("%s = %s", name, v), nil
}

// Evaluate compares the stored value of name against the parsed literal.
// Unknown operators behave like "!=".
func (s *Store) Evaluate(name, op, valueText string, typ Type) bool {
	left := s.values[strings.TrimSpace(name)]
	right := Parse(valueText, typ)
	if op == OpEqual {
		return left.Equal(right)
	}
	return !left.Equal(right)
}
