package payment_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paygate/internal/payment"
	"github.com/noah-isme/paygate/internal/transport"
)

func newRouter(t *testing.T, caller transport.Caller) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	guard := &payment.Guard{R: client, IdempotencyTTL: time.Minute, ReplayTTL: time.Minute}
	h := &payment.Handler{Svc: newService(caller), Guard: guard}
	r := chi.NewRouter()
	h.Register(r, guard.Idempotency)
	return r, mr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestIntentEndpoint(t *testing.T) {
	caller := &stubCaller{reply: okJSON(map[string]any{"client_secret": "abc"})}
	router, _ := newRouter(t, caller)

	body, err := json.Marshal(map[string]any{"orderId": "ORD-1", "amount": "250.75", "data": paymobData()})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/payments/paymob", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeBody(t, rr)
	require.Equal(t, true, out["success"])
	require.Equal(t, "https://paymob.test/unifiedcheckout?publicKey=egy_pk_test&clientSecret=abc", out["checkout_url"])

	payload, ok := caller.last().JSON.(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 25075, payload["amount"])
}

func TestIntentEndpointRejections(t *testing.T) {
	router, _ := newRouter(t, &stubCaller{})

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown gateway", "/payments/stripe", `{"orderId":"1","amount":"1"}`, http.StatusNotFound},
		{"malformed body", "/payments/kashier", `{`, http.StatusBadRequest},
		{"missing order id", "/payments/kashier", `{"orderId":"  ","amount":"1"}`, http.StatusBadRequest},
		{"non-positive amount", "/payments/kashier", `{"orderId":"1","amount":"0"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestIntentIdempotencyKey(t *testing.T) {
	router, _ := newRouter(t, &stubCaller{})
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payments/kashier", strings.NewReader(`{"orderId":"ORD-7","amount":"100.5"}`))
		req.Header.Set("Idempotency-Key", "checkout-42")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	require.Contains(t, decodeBody(t, first)["checkout_url"], "hash="+kashierOrderHash)

	second := send()
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, second.Body.String(), "IDEMPOTENT_REPLAY")
}

func TestCallbackEndpoint(t *testing.T) {
	router, _ := newRouter(t, &stubCaller{})
	query := payment.ParseQuery(kashierCallbackQS)
	signed := kashierCallbackQS + "&signature=" + payment.KashierCallbackSignature(kashierSecret, query)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/kashier/callback?"+signed, nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeBody(t, rr)
	require.Equal(t, true, out["is_paid"])
	require.Equal(t, "success", out["status"])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/kashier/callback?"+signed, nil))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "REPLAY")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/kashier/callback?"+kashierCallbackQS+"&signature=deadbeef", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "signature verification failed", decodeBody(t, rr)["message"])
}

func TestCallbackEndpointAcceptsForm(t *testing.T) {
	router, _ := newRouter(t, &stubCaller{})
	req := httptest.NewRequest(http.MethodPost, "/payments/fawaterak/callback",
		strings.NewReader("invoice_id=1001&invoice_status=paid"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeBody(t, rr)
	require.Equal(t, true, out["is_paid"])
	require.Equal(t, "1001", out["gateway_response"].(map[string]any)["invoice_id"])
}

func TestCallbackReplayStoreFailure(t *testing.T) {
	router, mr := newRouter(t, &stubCaller{})
	mr.SetError("replay store down")

	req := httptest.NewRequest(http.MethodPost, "/payments/fawaterak/callback", strings.NewReader(`{"invoice_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMethodsEndpoint(t *testing.T) {
	caller := &stubCaller{reply: okJSON(map[string]any{"data": []any{map[string]any{"paymentId": 2}}})}
	router, _ := newRouter(t, caller)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/fawaterak/methods", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, decodeBody(t, rr)["data"], 1)

	failing := &stubCaller{reply: func(transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: 500, Raw: "boom"}, nil
	}}
	router, _ = newRouter(t, failing)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/fawaterak/methods", nil))
	require.Equal(t, http.StatusBadGateway, rr.Code)
}
