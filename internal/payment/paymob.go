package payment

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/paygate/internal/signature"
	"github.com/noah-isme/paygate/internal/transport"
)

const (
	defaultPaymobBaseURL     = "https://accept.paymob.com/v1"
	defaultPaymobCheckoutURL = "https://accept.paymob.com/unifiedcheckout"
)

var (
	paymobBillingFields = []string{
		"first_name", "last_name", "email", "phone_number", "street",
		"building", "apartment", "floor", "city", "state", "country",
	}
	paymobItemFields = []string{"name", "amount", "description", "quantity"}

	// paymobHMACFields is the concatenation order Paymob signs callbacks with.
	paymobHMACFields = []string{
		"amount_cents",
		"created_at",
		"currency",
		"error_occured",
		"has_parent_transaction",
		"id",
		"integration_id",
		"is_3d_secure",
		"is_auth",
		"is_capture",
		"is_refunded",
		"is_standalone_payment",
		"is_voided",
		"order",
		"owner",
		"pending",
		"source_data_pan",
		"source_data_sub_type",
		"source_data_type",
		"success",
	}
)

// PaymobGateway creates Paymob payment intentions and checks callback HMACs.
type PaymobGateway struct {
	creds  Credentials
	caller transport.Caller
	logger zerolog.Logger
}

// NewPaymob builds a Paymob adapter. Empty URLs fall back to the public endpoints.
func NewPaymob(creds Credentials, caller transport.Caller, logger zerolog.Logger) *PaymobGateway {
	creds.BaseURL = strings.TrimRight(firstNonEmpty(creds.BaseURL, defaultPaymobBaseURL), "/")
	creds.CheckoutURL = firstNonEmpty(creds.CheckoutURL, defaultPaymobCheckoutURL)
	creds.Currency = firstNonEmpty(creds.Currency, "EGP")
	return &PaymobGateway{creds: creds, caller: caller, logger: logger.With().Str("gateway", string(Paymob)).Logger()}
}

func (g *PaymobGateway) Name() Type { return Paymob }

func (g *PaymobGateway) PriceFactor(any) float64 { return defaultPriceFactor }

// Initialize creates a payment intention. The result carries the intention
// response, from which CheckoutURL reads client_secret.
func (g *PaymobGateway) Initialize(ctx context.Context, orderID string, amount decimal.Decimal, data map[string]any) (Result, error) {
	intent, err := NewIntent(orderID, amount, data)
	if err != nil {
		return Result{}, err
	}
	payload, err := g.buildIntention(intent)
	if err != nil {
		return Result{}, err
	}
	if g.creds.SecretKey == "" {
		return Result{}, &ConfigurationError{Gateway: Paymob, Key: "secret_key"}
	}

	resp, err := g.caller.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     g.creds.BaseURL + "/intention/",
		Headers: map[string]string{"Authorization": "Token " + g.creds.SecretKey},
		JSON:    payload,
	})
	if err != nil {
		g.logger.Error().Err(err).Str("order_id", intent.OrderID).Msg("paymob intention request failed")
		return Result{}, &UpstreamError{Gateway: Paymob, Op: "create intention", Err: err}
	}
	if !resp.Successful || resp.Body == nil {
		g.logger.Error().Int("status", resp.StatusCode).Str("order_id", intent.OrderID).Msg("paymob intention rejected")
		return Result{}, &UpstreamError{Gateway: Paymob, Op: "create intention", StatusCode: resp.StatusCode, Body: resp.Raw}
	}
	return Result{Kind: ResultRaw, Raw: resp.Body}, nil
}

func (g *PaymobGateway) buildIntention(intent Intent) (map[string]any, error) {
	data := intent.Data
	if err := requireFilled(data, "", "method_id"); err != nil {
		return nil, err
	}
	methodID, err := toInt(data["method_id"])
	if err != nil {
		return nil, &ValidationError{Field: "method_id", Message: "must be an integer"}
	}
	items, ok := asMapSlice(data["items"])
	if !ok || len(items) == 0 {
		return nil, &ValidationError{Field: "items", Message: "at least one item is required"}
	}
	billing, _ := asMap(data["billing_data"])
	if err := requirePresent(billing, "billing_data.", paymobBillingFields...); err != nil {
		return nil, err
	}
	for i, item := range items {
		if err := requirePresent(item, itemPrefix(i), paymobItemFields...); err != nil {
			return nil, err
		}
	}

	billingPayload := make(map[string]any, len(paymobBillingFields)+2)
	for _, f := range paymobBillingFields {
		billingPayload[f] = billing[f]
	}
	billingPayload["shipping_method"] = orEmpty(billing["shipping_method"])
	billingPayload["postal_code"] = orEmpty(billing["postal_code"])

	payload := map[string]any{
		"amount":            intent.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		"currency":          firstNonEmpty(intent.Currency, g.creds.Currency),
		"payment_methods":   []int{methodID},
		"items":             items,
		"billing_data":      billingPayload,
		"customer":          data["customer"],
		"extras":            data["extras"],
		"special_reference": intent.OrderID,
	}
	if redirect := g.redirectionURL(truthy(data["app"])); redirect != "" {
		payload["redirection_url"] = redirect
	}
	return payload, nil
}

func (g *PaymobGateway) redirectionURL(app bool) string {
	base := g.creds.CallbackURL
	if base == "" || !app {
		return base
	}
	if strings.Contains(base, "?") {
		return base + "&app=true"
	}
	return base + "?app=true"
}

// CheckoutURL renders the unified checkout link with publicKey before clientSecret.
func (g *PaymobGateway) CheckoutURL(result Result) (string, error) {
	secret := stringOf(result.Raw["client_secret"])
	if secret == "" {
		return "", &InvalidStateError{Gateway: Paymob, Field: "client_secret"}
	}
	return g.creds.CheckoutURL + "?publicKey=" + url.QueryEscape(g.creds.PublicKey) +
		"&clientSecret=" + url.QueryEscape(secret), nil
}

// VerifyCallback recomputes the HMAC-SHA512 over the ordered transaction fields.
func (g *PaymobGateway) VerifyCallback(_ context.Context, env Envelope) (Outcome, error) {
	if g.creds.HMACSecret == "" {
		return g.reject("hmac secret is not configured", nil), nil
	}
	received := strings.TrimSpace(env.Signature)
	if received == "" {
		received, _ = env.Query.Get("hmac")
	}
	if strings.TrimSpace(received) == "" {
		return g.reject("hmac is missing from request", nil), nil
	}
	data := env.Merged("hmac")
	if len(data) == 0 {
		return g.reject("request data is empty", nil), nil
	}

	expected := PaymobHMAC(g.creds.HMACSecret, data)
	match := signature.Equal(expected, received)
	g.logger.Debug().Int("fields", len(data)).Bool("match", match).Msg("paymob hmac verification")
	if !match {
		return g.reject("hmac verification failed", data), nil
	}

	paid := truthy(data["success"]) && !truthy(data["pending"])
	status := "failed"
	switch {
	case paid:
		status = "paid"
	case truthy(data["pending"]):
		status = "pending"
	}
	return Outcome{Verified: true, Paid: paid, Status: status, Data: data}, nil
}

func (g *PaymobGateway) reject(reason string, data map[string]any) Outcome {
	g.logger.Warn().Str("reason", reason).Msg("paymob callback rejected")
	return Outcome{Verified: false, Status: "unverified", Data: data, Reason: reason}
}

// PaymobHMAC computes the hex HMAC-SHA512 Paymob attaches to transaction callbacks.
func PaymobHMAC(secret string, data map[string]any) string {
	lookup := func(key string) (any, bool) {
		if v, ok := data[key]; ok {
			return v, true
		}
		if key == "source_data_pan" {
			v, ok := data["source_data.pan"]
			return v, ok
		}
		return nil, false
	}
	return signature.HexHMAC(signature.SHA512, secret, signature.Concat(paymobHMACFields, lookup))
}

func itemPrefix(i int) string {
	return "items[" + strconv.Itoa(i) + "]."
}

func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}
