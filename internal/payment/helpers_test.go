package payment_test

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/paygate/internal/payment"
	"github.com/noah-isme/paygate/internal/transport"
)

// stubCaller records every outbound request and answers from a canned reply.
type stubCaller struct {
	mu    sync.Mutex
	calls []transport.Request
	reply func(transport.Request) (*transport.Response, error)
}

func (s *stubCaller) Do(_ context.Context, req transport.Request) (*transport.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.reply == nil {
		return &transport.Response{StatusCode: 200, Successful: true, Body: map[string]any{}}, nil
	}
	return s.reply(req)
}

func (s *stubCaller) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubCaller) last() transport.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func okJSON(body map[string]any) func(transport.Request) (*transport.Response, error) {
	return func(transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: 200, Successful: true, Body: body}, nil
	}
}

func testDefaults() map[payment.Type]payment.Credentials {
	return map[payment.Type]payment.Credentials{
		payment.Paymob: {
			BaseURL:     "https://paymob.test/v1",
			CheckoutURL: "https://paymob.test/unifiedcheckout",
			PublicKey:   "egy_pk_test",
			SecretKey:   "egy_sk_test",
			HMACSecret:  paymobSecret,
			CallbackURL: "https://shop.test/paymob/callback",
		},
		payment.Kashier: {
			BaseURL:     "https://checkout.kashier.test",
			MerchantID:  "MID-1",
			SecretKey:   kashierSecret,
			Mode:        "test",
			RedirectURL: "https://shop.test/kashier/return",
			Currency:    "EGP",
			Display:     "en",
		},
		payment.Telr: {
			BaseURL:    "https://telr.test/gateway/order.json",
			MerchantID: "store-1",
			SecretKey:  "telr-auth",
			SuccessURL: "https://shop.test/telr/ok",
			CancelURL:  "https://shop.test/telr/cancel",
			DeclineURL: "https://shop.test/telr/decline",
		},
		payment.Fawaterak: {
			BaseURL:   "https://fawaterak.test/api/v2/",
			SecretKey: "fw-token",
		},
	}
}

func newFactory(caller transport.Caller) *payment.Factory {
	return payment.NewFactory(testDefaults(), caller, zerolog.Nop())
}

func paymobData() map[string]any {
	return map[string]any{
		"method_id": 1,
		"items": []any{
			map[string]any{"name": "Mug", "amount": 10000, "description": "Ceramic mug", "quantity": 1},
		},
		"billing_data": map[string]any{
			"first_name":   "Mona",
			"last_name":    "Adel",
			"email":        "mona@example.com",
			"phone_number": "+201000000000",
			"street":       "Tahrir",
			"building":     "12",
			"apartment":    "3",
			"floor":        "2",
			"city":         "Cairo",
			"state":        "Cairo",
			"country":      "EG",
		},
	}
}

func fawaterakData() map[string]any {
	return map[string]any{
		"payment_method_id": 2,
		"cartTotal":         "150",
		"currency":          "EGP",
		"invoice_number":    "INV-9",
		"customerData": map[string]any{
			"first_name": "Omar",
			"last_name":  "Samy",
			"email":      "omar@example.com",
			"phone":      "01000000000",
		},
		"cartItems": []any{
			map[string]any{"name": "Plan", "price": "150", "quantity": "1"},
		},
		"redirectionUrls": map[string]any{
			"successUrl": "https://shop.test/ok",
			"failUrl":    "https://shop.test/fail",
			"pendingUrl": "https://shop.test/pending",
		},
	}
}
