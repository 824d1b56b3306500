package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/internal/value"
)

func lookupFrom(vars map[string]value.Value) Lookup {
	return func(name string) (value.Value, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

var emptyLookup = lookupFrom(nil)

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want value.Value
	}{
		{"1 + 2 * 3", value.Int(7)},
		{"(1 + 2) * 3", value.Int(9)},
		{"10 / 4", value.Int(2)},
		{"10.0 / 4", value.Float(2.5)},
		{"10 % 3", value.Int(1)},
		{"-5 + 2", value.Int(-3)},
		{"1 + 2.5", value.Float(3.5)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := EvalString(tt.src, emptyLookup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalStringsAndCollections(t *testing.T) {
	got, err := EvalString(`"foo" + "bar"`, emptyLookup)
	require.NoError(t, err)
	assert.Equal(t, value.Str("foobar"), got)

	got, err = EvalString(`[1, 2] + [3]`, emptyLookup)
	require.NoError(t, err)
	assert.Equal(t, value.List{value.Int(1), value.Int(2), value.Int(3)}, got)

	got, err = EvalString(`{"a": 1, "b": 2}["b"]`, emptyLookup)
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), got)

	got, err = EvalString(`[10, 20, 30][1]`, emptyLookup)
	require.NoError(t, err)
	assert.Equal(t, value.Int(20), got)
}

func TestEvalComparisonsAndLogic(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"1 == 1.0", true},
		{`"a" < "b"`, true},
		{"true && false", false},
		{"true || false", true},
		{"!false", true},
		{"1 != 2", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := EvalString(tt.src, emptyLookup)
			require.NoError(t, err)
			assert.Equal(t, value.Bool(tt.want), got)
		})
	}
}

func TestShortCircuit(t *testing.T) {
	// The right side references an undefined variable; short-circuiting
	// must prevent it from ever being evaluated.
	got, err := EvalString("false && missing", emptyLookup)
	require.NoError(t, err)
	assert.Equal(t, value.Bool(false), got)

	got, err = EvalString("true || missing", emptyLookup)
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), got)
}

func TestEvalVariables(t *testing.T) {
	vars := map[string]value.Value{
		"price": value.Int(10),
		"qty":   value.Int(3),
	}
	got, err := EvalString("price * qty", lookupFrom(vars))
	require.NoError(t, err)
	assert.Equal(t, value.Int(30), got)

	_, err = EvalString("price * missing", lookupFrom(vars))
	require.Error(t, err)
	assert.Equal(t, ErrCodeUndefinedReference, CodeOf(err))
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		src  string
		want value.Value
	}{
		{`len("héllo")`, value.Int(5)},
		{"len([1, 2, 3])", value.Int(3)},
		{"min(3, 1, 2)", value.Int(1)},
		{"max(3, 1, 2.5)", value.Int(3)},
		{"abs(-4)", value.Int(4)},
		{"round(2.6)", value.Int(3)},
		{`upper("abc")`, value.Str("ABC")},
		{`lower("ABC")`, value.Str("abc")},
		{`concat("n=", 4)`, value.Str("n=4")},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := EvalString(tt.src, emptyLookup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		src  string
		code ErrorCode
	}{
		{"1 +", ErrCodeParse},
		{"1 / 0", ErrCodeDivZero},
		{"5 % 0", ErrCodeDivZero},
		{`"a" + 1`, ErrCodeType},
		{"len()", ErrCodeArity},
		{"nosuchfn(1)", ErrCodeUnknownFunction},
		{"missing + 1", ErrCodeUndefinedReference},
		{"[1, 2][5]", ErrCodeType},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := EvalString(tt.src, emptyLookup)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestExtractReferences(t *testing.T) {
	refs, err := ExtractReferences("price * qty + price + len(items)")
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "qty", "items"}, refs, "deduplicated, first-appearance order")

	refs, err = ExtractReferences("1 + 2")
	require.NoError(t, err)
	assert.Empty(t, refs)

	// true/false are literals, function names are not references
	refs, err = ExtractReferences("true && len(xs) > 0")
	require.NoError(t, err)
	assert.Equal(t, []string{"xs"}, refs)
}
