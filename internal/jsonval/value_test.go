package jsonval

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
	}{
		{"string", `"hello"`, KindString},
		{"integer", `42`, KindNumber},
		{"float", `3.14`, KindNumber},
		{"bool", `true`, KindBool},
		{"array", `["a","b"]`, KindArray},
		{"object", `{"k":"v"}`, KindMap},
		{"null", `null`, KindNull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.input), &v))
			assert.Equal(t, tt.wantKind, v.Kind())
		})
	}
}

func TestAsString(t *testing.T) {
	assert.Equal(t, "hello", String("hello").AsString())
	assert.Equal(t, "true", Bool(true).AsString())
	assert.Equal(t, "false", Bool(false).AsString())
	assert.Equal(t, "42", Number(42).AsString())
	assert.Equal(t, "3.5", Number(3.5).AsString())
	assert.Equal(t, "a,b,c", Array([]Value{String("a"), String("b"), String("c")}).AsString())
	assert.Equal(t, "", Null().AsString())
}

func TestAsNumber(t *testing.T) {
	n, ok := Number(7).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, float64(7), n)

	n, ok = String("12.5").AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 12.5, n)

	_, ok = String("not-a-number").AsNumber()
	assert.False(t, ok)

	n, ok = Bool(true).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, float64(1), n)
}

func TestAsStringSlice(t *testing.T) {
	got := Array([]Value{String("a"), Number(1)}).AsStringSlice()
	assert.Equal(t, []string{"a", "1"}, got)

	got = String("a, b ,c").AsStringSlice()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestMarshalJSONRoundTrip(t *testing.T) {
	original := Array([]Value{Number(1), String("x"), Bool(false)})
	body, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Value
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, KindArray, decoded.Kind())
	assert.Equal(t, original.AsString(), decoded.AsString())
}
