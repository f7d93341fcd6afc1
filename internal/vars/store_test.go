package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		typ  Type
		want Value
	}{
		{"int literal", "42", Int, IntValue(42)},
		{"int with spaces", " -7 ", Int, IntValue(-7)},
		{"malformed int", "abc", Int, IntValue(0)},
		{"empty int", "", Int, IntValue(0)},
		{"grouped int", "1_000", Int, IntValue(1000)},
		{"grouped negative int", "-2_500_000", Int, IntValue(-2500000)},
		{"leading zeros stay decimal", "010", Int, IntValue(10)},
		{"hex prefix rejected", "0x10", Int, IntValue(0)},
		{"octal prefix rejected", "0o17", Int, IntValue(0)},
		{"doubled underscore", "1__0", Int, IntValue(0)},
		{"trailing underscore", "10_", Int, IntValue(0)},
		{"bool true", "TRUE", Bool, BoolValue(true)},
		{"bool yes", "yes", Bool, BoolValue(true)},
		{"bool on padded", " On ", Bool, BoolValue(true)},
		{"bool one", "1", Bool, BoolValue(true)},
		{"bool other", "nope", Bool, BoolValue(false)},
		{"string kept verbatim", " hi there ", String, StringValue(" hi there ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text, tt.typ)
			assert.True(t, tt.want.Equal(got), "got %v (%s)", got, got.Type())
		})
	}
}

func TestParseType(t *testing.T) {
	assert.Equal(t, Int, ParseType("INT"))
	assert.Equal(t, Bool, ParseType(" bool"))
	assert.Equal(t, String, ParseType("string"))
	assert.Equal(t, String, ParseType(""))
	assert.Equal(t, String, ParseType("float"))
}

func TestAssignThenEvaluate(t *testing.T) {
	s := NewStore()

	msg, err := s.Assign("x", "5", Int)
	require.NoError(t, err)
	assert.Equal(t, "x = 5", msg)

	assert.True(t, s.Evaluate("x", OpEqual, "5", Int))
	assert.False(t, s.Evaluate("x", OpNotEqual, "5", Int))
}

func TestAssignIncrement(t *testing.T) {
	s := NewStore()

	_, err := s.Assign("x", "3", Int)
	require.NoError(t, err)

	msg, err := s.Assign("x", "+=2", Int)
	require.NoError(t, err)
	assert.Equal(t, "x = 5", msg)

	v, ok := s.Get("x")
	require.True(t, ok)
	n, isInt := v.Int()
	assert.True(t, isInt)
	assert.Equal(t, int64(5), n)
}

func TestAssignIncrementGroupedDigits(t *testing.T) {
	s := NewStore()

	msg, err := s.Assign("x", "+=1_000", Int)
	require.NoError(t, err)
	assert.Equal(t, "x = 1000", msg)
}

func TestAssignBoolRendersLowercase(t *testing.T) {
	s := NewStore()

	msg, err := s.Assign("flag", "yes", Bool)
	require.NoError(t, err)
	assert.Equal(t, "flag = true", msg)
}

func TestAssignIncrementMissingStartsAtZero(t *testing.T) {
	s := NewStore()

	_, err := s.Assign("counter", "+= 4", Int)
	require.NoError(t, err)
	assert.True(t, s.Evaluate("counter", OpEqual, "4", Int))
}

func TestAssignIncrementNonInteger(t *testing.T) {
	s := NewStore()
	_, err := s.Assign("name", "bob", String)
	require.NoError(t, err)

	_, err = s.Assign("name", "+=1", Int)
	assert.ErrorIs(t, err, ErrNotInteger)

	// value is left untouched
	assert.True(t, s.Evaluate("name", OpEqual, "bob", String))
}

func TestAssignEmptyName(t *testing.T) {
	s := NewStore()
	_, err := s.Assign("  ", "1", Int)
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Equal(t, 0, s.Len())
}

func TestEvaluateAbsentVariable(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Evaluate("missing", OpEqual, "0", Int))
	assert.True(t, s.Evaluate("missing", OpNotEqual, "0", Int))
}

func TestEvaluateMismatchedTypes(t *testing.T) {
	s := NewStore()
	_, err := s.Assign("flag", "true", Bool)
	require.NoError(t, err)

	// no coercion between bool and int
	assert.False(t, s.Evaluate("flag", OpEqual, "1", Int))
	assert.True(t, s.Evaluate("flag", OpNotEqual, "1", Int))
	assert.False(t, s.Evaluate("flag", OpEqual, "True", String))
	assert.True(t, s.Evaluate("flag", OpEqual, "yes", Bool))
}

func TestEvaluateUnknownOperator(t *testing.T) {
	s := NewStore()
	_, _ = s.Assign("x", "1", Int)
	assert.False(t, s.Evaluate("x", "<", "1", Int))
	assert.True(t, s.Evaluate("x", "<", "2", Int))
}

func TestSnapshotAndNames(t *testing.T) {
	s := NewStore()
	_, _ = s.Assign("b", "on", Bool)
	_, _ = s.Assign("a", "7", Int)

	assert.Equal(t, []string{"a", "b"}, s.Names())
	assert.Equal(t, map[string]string{"a": "7", "b": "true"}, s.Snapshot())
}
