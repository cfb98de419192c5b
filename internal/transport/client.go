package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const userAgent = "paygate/1.0"

// Request describes a single outbound call. At most one of JSON or Form is set.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	JSON    any
	Form    url.Values
}

// Response is the provider reply. Body is nil when the payload is not a JSON object.
type Response struct {
	StatusCode int
	Successful bool
	Body       map[string]any
	Raw        string
}

// Caller performs outbound provider calls.
type Caller interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Doer executes a prepared HTTP request. *resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client is the default Caller backed by a Doer.
type Client struct {
	doer Doer
}

// New constructs a Client. A nil doer falls back to a plain instrumented http.Client.
func New(doer Doer) *Client {
	if doer == nil {
		doer = plainDoer{client: NewHTTPClient(15 * time.Second)}
	}
	return &Client{doer: doer}
}

// NewHTTPClient returns an http.Client whose transport emits client spans.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Do encodes req, sends it and decodes the reply. Non-2xx statuses are not
// errors; callers inspect Successful.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	ctx, span := otel.Tracer("transport.Client").Start(ctx, "Client.Do")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", redactURL(req.URL)),
	)

	body, contentType, err := encodeBody(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode body")
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.doer.Do(ctx, httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, fmt.Errorf("read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	return &Response{
		StatusCode: resp.StatusCode,
		Successful: resp.StatusCode >= 200 && resp.StatusCode < 300,
		Body:       decodeObject(raw),
		Raw:        string(raw),
	}, nil
}

func encodeBody(req Request) (io.Reader, string, error) {
	switch {
	case req.JSON != nil && req.Form != nil:
		return nil, "", errors.New("transport: request has both json and form bodies")
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("encode json: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	case req.Form != nil:
		return strings.NewReader(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return nil, "", nil
	}
}

func decodeObject(raw []byte) map[string]any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

type plainDoer struct {
	client *http.Client
}

func (p plainDoer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return p.client.Do(req.WithContext(ctx))
}
