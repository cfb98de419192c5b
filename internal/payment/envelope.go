package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/paygate/internal/signature"
)

// QueryParams is a query string decoded into pairs, in received order.
type QueryParams []signature.Pair

// ParseQuery decodes a raw query string without reordering it. Repeated keys
// are kept; Get returns the last one.
func ParseQuery(raw string) QueryParams {
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return nil
	}
	var out QueryParams
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		out = append(out, signature.Pair{Key: unescape(key), Value: unescape(value)})
	}
	return out
}

func unescape(s string) string {
	v, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return v
}

// Get returns the last value for key.
func (q QueryParams) Get(key string) (string, bool) {
	for i := len(q) - 1; i >= 0; i-- {
		if q[i].Key == key {
			return q[i].Value, true
		}
	}
	return "", false
}

// Map flattens the pairs; later keys win.
func (q QueryParams) Map() map[string]any {
	out := make(map[string]any, len(q))
	for _, p := range q {
		out[p.Key] = p.Value
	}
	return out
}

// Envelope is an inbound provider callback.
type Envelope struct {
	Query     QueryParams
	Body      map[string]any
	Signature string
}

// Lookup resolves key from the body first, then the query.
func (e Envelope) Lookup(key string) (any, bool) {
	if v, ok := e.Body[key]; ok {
		return v, true
	}
	if v, ok := e.Query.Get(key); ok {
		return v, true
	}
	return nil, false
}

// Merged returns query fields overlaid with body fields, minus the excluded keys.
func (e Envelope) Merged(exclude ...string) map[string]any {
	out := e.Query.Map()
	for k, v := range e.Body {
		out[k] = v
	}
	for _, k := range exclude {
		delete(out, k)
	}
	return out
}

// EnvelopeFromRequest captures the raw query in order and decodes a JSON or
// form body. Numbers in JSON bodies keep their textual form.
func EnvelopeFromRequest(r *http.Request) (Envelope, error) {
	env := Envelope{Query: ParseQuery(r.URL.RawQuery)}
	if r.Body == nil || r.Body == http.NoBody {
		return env, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return env, fmt.Errorf("read callback body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return env, nil
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			return env, fmt.Errorf("decode callback form: %w", err)
		}
		env.Body = make(map[string]any, len(form))
		for k := range form {
			env.Body[k] = form.Get(k)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var body map[string]any
		if err := dec.Decode(&body); err != nil {
			return env, fmt.Errorf("decode callback body: %w", err)
		}
		env.Body = body
	}
	return env, nil
}
