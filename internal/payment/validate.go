package payment

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// requireFilled checks fields in order and names the first one that is absent
// or empty. Collections must hold at least one element.
func requireFilled(src map[string]any, prefix string, fields ...string) error {
	for _, f := range fields {
		if !filled(src[f]) {
			return &ValidationError{Field: prefix + f}
		}
	}
	return nil
}

// requirePresent checks fields in order and names the first one that is absent
// or null. Empty values are accepted.
func requirePresent(src map[string]any, prefix string, fields ...string) error {
	for _, f := range fields {
		if v, ok := src[f]; !ok || v == nil {
			return &ValidationError{Field: prefix + f}
		}
	}
	return nil
}

func filled(v any) bool {
	if v == nil {
		return false
	}
	rule := "required"
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		rule = "required,gt=0"
	}
	return validate.Var(v, rule) == nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

func asMapSlice(v any) ([]map[string]any, bool) {
	switch s := v.(type) {
	case []map[string]any:
		return s, true
	case []any:
		out := make([]map[string]any, 0, len(s))
		for _, item := range s {
			m, ok := asMap(item)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	}
	return nil, false
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		return int(f), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	case json.Number:
		return b.String() != "0"
	case int:
		return b != 0
	case float64:
		return b != 0
	}
	return false
}

func stringOf(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// decodeInto fills out from a loosely typed map using mapstructure tags.
func decodeInto(src any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}
