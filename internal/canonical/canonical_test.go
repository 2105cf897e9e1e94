package canonical

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"integral float", 12.0, "12"},
		{"fraction", 12.5, "12.5"},
		{"json number", json.Number("7"), "7"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalSortsKeys(t *testing.T) {
	out, err := Marshal(map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
		"beta":  "x",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":"x","zebra":1}`, string(out))
}

func TestMarshalNoHTMLEscaping(t *testing.T) {
	out, err := Marshal("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(out))
}

func TestMarshalControlCharacters(t *testing.T) {
	out, err := Marshal("a\nb\x01\"\\")
	require.NoError(t, err)
	assert.Equal(t, `"a\nb\u0001\"\\"`, string(out))
}

func TestMarshalNFCNormalisation(t *testing.T) {
	// "e" + combining acute composes to U+00E9
	decomposed, err := Marshal("cafe\u0301")
	require.NoError(t, err)
	composed, err := Marshal("caf\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalRejectsNonFinite(t *testing.T) {
	_, err := Marshal(math.NaN())
	require.Error(t, err)

	_, err = Marshal(map[string]any{"x": math.Inf(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "x"`)
}

func TestMarshalRejectsUnsupported(t *testing.T) {
	_, err := Marshal(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestDigestStableAcrossMapOrder(t *testing.T) {
	a := map[string]any{"x": 1, "y": []any{"p", "q"}}
	b := map[string]any{"y": []any{"p", "q"}, "x": 1}

	da, err := Digest("test/v1", a)
	require.NoError(t, err)
	db, err := Digest("test/v1", b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Len(t, da, 64)

	other, err := Digest("test/v2", a)
	require.NoError(t, err)
	assert.NotEqual(t, da, other, "domain must separate digests")
}

func TestFromStructSortsFieldsAndKeepsIntegers(t *testing.T) {
	type row struct {
		Zeta  string  `json:"zeta"`
		Alpha int     `json:"alpha"`
		Qty   float64 `json:"qty"`
		Skip  string  `json:"skip,omitempty"`
	}

	got, err := FromStruct(row{Zeta: "z", Alpha: 7, Qty: 2.5})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":7,"qty":2.5,"zeta":"z"}`, string(got))
}

func TestDigestStructMatchesDigestOfMap(t *testing.T) {
	type row struct {
		B string `json:"b"`
		A string `json:"a"`
	}

	a, err := DigestStruct("test/v1", row{B: "2", A: "1"})
	require.NoError(t, err)
	b, err := Digest("test/v1", map[string]any{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
