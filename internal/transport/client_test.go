package transport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paygate/internal/resilience"
	"github.com/noah-isme/paygate/internal/transport"
)

func TestClientSendsJSONWithHeaders(t *testing.T) {
	var gotAuth, gotType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"client_secret":"abc","amount":10000}`))
	}))
	defer srv.Close()

	client := transport.New(resilience.HTTPClient{Client: srv.Client()})
	resp, err := client.Do(context.Background(), transport.Request{
		Method:  http.MethodPost,
		URL:     srv.URL + "/intention/",
		Headers: map[string]string{"Authorization": "Token sk"},
		JSON:    map[string]any{"amount": 10000},
	})
	require.NoError(t, err)
	require.True(t, resp.Successful)
	require.Equal(t, "Token sk", gotAuth)
	require.Equal(t, "application/json", gotType)
	require.EqualValues(t, 10000, gotBody["amount"])
	require.Equal(t, "abc", resp.Body["client_secret"])
	require.Equal(t, json.Number("10000"), resp.Body["amount"])
}

func TestClientSendsForm(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"order":{"ref":"R1"}}`))
	}))
	defer srv.Close()

	client := transport.New(resilience.HTTPClient{Client: srv.Client()})
	resp, err := client.Do(context.Background(), transport.Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Form:   url.Values{"ivp_method": {"check"}, "order_ref": {"R1"}},
	})
	require.NoError(t, err)
	require.True(t, resp.Successful)
	require.Equal(t, "check", form.Get("ivp_method"))
	require.Equal(t, "R1", form.Get("order_ref"))
}

func TestClientNonSuccessKeepsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "denied")
	}))
	defer srv.Close()

	client := transport.New(resilience.HTTPClient{Client: srv.Client()})
	resp, err := client.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	require.False(t, resp.Successful)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "denied", resp.Raw)
	require.Nil(t, resp.Body)
}

func TestClientRejectsAmbiguousBody(t *testing.T) {
	client := transport.New(nil)
	_, err := client.Do(context.Background(), transport.Request{
		Method: http.MethodPost,
		URL:    "http://127.0.0.1:1",
		JSON:   map[string]any{},
		Form:   url.Values{},
	})
	require.Error(t, err)
}
