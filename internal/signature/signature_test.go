package signature_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paygate/internal/signature"
)

func TestHexHMACGolden(t *testing.T) {
	require.Equal(t,
		"88aab3ede8d3adf94d26ab90d3bafd4a2083070c3bcce9c014ee04a443847c0b",
		signature.HexHMAC(signature.SHA256, "secret", "hello"))
	require.Equal(t,
		"db1595ae88a62fd151ec1cba81b98c39df82daae7b4cb9820f446d5bf02f1dcfca6683d88cab3e273f5963ab8ec469a746b5b19086371239f67d1e5f99a79440",
		signature.HexHMAC(signature.SHA512, "secret", "hello"))
}

func TestEqual(t *testing.T) {
	digest := signature.HexHMAC(signature.SHA256, "k", "m")
	require.True(t, signature.Equal(digest, digest))
	require.True(t, signature.Equal(digest, " "+digest+"\n"))
	require.False(t, signature.Equal(digest, digest[:len(digest)-1]))
	require.False(t, signature.Equal("", ""))
	require.False(t, signature.Equal(digest, ""))
}

func TestConcatSkipsAbsentAndKeepsOrder(t *testing.T) {
	data := map[string]any{
		"b":     "2",
		"a":     "1",
		"list":  []any{"x", float64(1)},
		"flag":  true,
		"empty": nil,
	}
	lookup := func(key string) (any, bool) {
		v, ok := data[key]
		return v, ok
	}
	got := signature.Concat([]string{"a", "missing", "b", "list", "flag", "empty"}, lookup)
	require.Equal(t, `12["x",1]true`, got)
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"false", false, "false"},
		{"whole float", float64(10000), "10000"},
		{"fraction", 12.5, "12.5"},
		{"json number", json.Number("9007199254740993"), "9007199254740993"},
		{"int", 42, "42"},
		{"object", map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, signature.FormatValue(tc.in))
		})
	}
}

func TestJoinPairs(t *testing.T) {
	pairs := []signature.Pair{
		{Key: "paymentStatus", Value: "SUCCESS"},
		{Key: "signature", Value: "abc"},
		{Key: "mode", Value: "test"},
		{Key: "orderId", Value: "42"},
	}
	require.Equal(t, "paymentStatus=SUCCESS&orderId=42", signature.JoinPairs(pairs, "signature", "mode"))
	require.Equal(t, "", signature.JoinPairs(nil))
}
