package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"hash"
	"slices"
	"strconv"
	"strings"
)

// Algorithm selects the digest used for an HMAC.
type Algorithm int

const (
	SHA256 Algorithm = iota
	SHA512
)

func (a Algorithm) newHash() func() hash.Hash {
	if a == SHA512 {
		return sha512.New
	}
	return sha256.New
}

// Pair is a single key/value entry of an ordered parameter list.
type Pair struct {
	Key   string
	Value string
}

// HexHMAC returns the lowercase hex HMAC of message keyed by key.
func HexHMAC(alg Algorithm, key, message string) string {
	mac := hmac.New(alg.newHash(), []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two digests in constant time. Empty inputs never match.
func Equal(expected, provided string) bool {
	expected = strings.TrimSpace(expected)
	provided = strings.TrimSpace(provided)
	if expected == "" || provided == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(provided))
}

// Lookup resolves a field value by name; ok is false when the field is absent.
type Lookup func(key string) (value any, ok bool)

// Concat appends the rendered value of every key, in order, with no separator.
// Absent keys contribute nothing.
func Concat(keys []string, lookup Lookup) string {
	var b strings.Builder
	for _, key := range keys {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		b.WriteString(FormatValue(v))
	}
	return b.String()
}

// JoinPairs renders pairs as key=value joined by '&', in the given order,
// dropping any key listed in skip.
func JoinPairs(pairs []Pair, skip ...string) string {
	var b strings.Builder
	for _, p := range pairs {
		if slices.Contains(skip, p.Key) {
			continue
		}
		b.WriteByte('&')
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return strings.TrimPrefix(b.String(), "&")
}

// FormatValue renders a scalar the way it travels on the wire. Slices and
// maps are JSON encoded; nil renders as the empty string.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case []any, map[string]any, []string, []map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		if s, ok := v.(interface{ String() string }); ok {
			return s.String()
		}
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
