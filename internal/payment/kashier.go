package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/paygate/internal/signature"
)

const defaultKashierBaseURL = "https://checkout.kashier.io"

// KashierGateway builds signed hosted-checkout links locally and verifies the
// query-string signature Kashier appends to redirects.
type KashierGateway struct {
	creds  Credentials
	logger zerolog.Logger
}

// NewKashier builds a Kashier adapter with the documented defaults applied.
func NewKashier(creds Credentials, logger zerolog.Logger) *KashierGateway {
	creds.BaseURL = strings.TrimRight(firstNonEmpty(creds.BaseURL, defaultKashierBaseURL), "/")
	creds.Mode = firstNonEmpty(creds.Mode, "live")
	creds.Currency = firstNonEmpty(creds.Currency, "EGP")
	creds.Display = firstNonEmpty(creds.Display, "ar")
	creds.RedirectMethod = firstNonEmpty(creds.RedirectMethod, "get")
	return &KashierGateway{creds: creds, logger: logger.With().Str("gateway", string(Kashier)).Logger()}
}

func (g *KashierGateway) Name() Type { return Kashier }

func (g *KashierGateway) PriceFactor(any) float64 { return defaultPriceFactor }

// Initialize signs the order and returns the pay-now URL. No network call is made.
func (g *KashierGateway) Initialize(_ context.Context, orderID string, amount decimal.Decimal, data map[string]any) (Result, error) {
	intent, err := NewIntent(orderID, amount, data)
	if err != nil {
		return Result{}, err
	}
	if g.creds.SecretKey == "" {
		return Result{}, &ConfigurationError{Gateway: Kashier, Key: "api_key"}
	}
	if err := checkAbsoluteURL(g.creds.RedirectURL); err != nil {
		return Result{}, &ConfigurationError{Gateway: Kashier, Key: "redirect_url", Message: err.Error()}
	}

	amountText := intent.Amount.String()
	hash := KashierOrderHash(g.creds.SecretKey, g.creds.MerchantID, intent.OrderID, amountText, g.creds.Currency)

	params := []signature.Pair{
		{Key: "merchantId", Value: g.creds.MerchantID},
		{Key: "orderId", Value: intent.OrderID},
		{Key: "amount", Value: amountText},
		{Key: "currency", Value: g.creds.Currency},
		{Key: "hash", Value: hash},
		{Key: "mode", Value: g.creds.Mode},
		{Key: "merchantRedirect", Value: g.creds.RedirectURL},
		{Key: "metaData", Value: signature.FormatValue(intent.Data["meta_data"])},
		{Key: "paymentRequestId", Value: signature.FormatValue(intent.Data["payment_request_id"])},
		{Key: "redirectMethod", Value: g.creds.RedirectMethod},
		{Key: "display", Value: g.creds.Display},
	}
	var b strings.Builder
	b.WriteString(g.creds.BaseURL)
	b.WriteString("/?")
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	link := b.String()

	return Result{
		Kind:        ResultRedirect,
		RedirectURL: link,
		Raw:         map[string]any{"url": link, "hash": hash, "order_id": intent.OrderID},
	}, nil
}

// CheckoutURL returns the pay-now URL produced by Initialize.
func (g *KashierGateway) CheckoutURL(result Result) (string, error) {
	if result.RedirectURL == "" {
		return "", &InvalidStateError{Gateway: Kashier, Field: "redirect url"}
	}
	return result.RedirectURL, nil
}

// VerifyCallback signs the received query pairs in their original order,
// leaving out signature and mode.
func (g *KashierGateway) VerifyCallback(_ context.Context, env Envelope) (Outcome, error) {
	if g.creds.SecretKey == "" {
		return Outcome{}, &ConfigurationError{Gateway: Kashier, Key: "api_key"}
	}
	data := env.Query.Map()
	delete(data, "signature")
	received, _ := env.Query.Get("signature")
	if received == "" {
		received = env.Signature
	}
	if strings.TrimSpace(received) == "" {
		return Outcome{Status: "unverified", Data: data, Reason: "signature is missing from request"}, nil
	}

	expected := KashierCallbackSignature(g.creds.SecretKey, env.Query)
	if !signature.Equal(expected, received) {
		g.logger.Warn().Int("params", len(env.Query)).Msg("kashier signature mismatch")
		return Outcome{Status: "unverified", Data: data, Reason: "signature verification failed"}, nil
	}
	status, _ := env.Query.Get("paymentStatus")
	return Outcome{
		Verified: true,
		Paid:     strings.EqualFold(status, "SUCCESS"),
		Status:   strings.ToLower(status),
		Data:     data,
	}, nil
}

// KashierOrderHash signs the "/?payment=merchant.order.amount.currency" path.
func KashierOrderHash(secret, merchantID, orderID, amount, currency string) string {
	path := fmt.Sprintf("/?payment=%s.%s.%s.%s", merchantID, orderID, amount, currency)
	return signature.HexHMAC(signature.SHA256, secret, path)
}

// KashierCallbackSignature signs the pairs as key=value joined by '&', in the
// given order, without signature and mode.
func KashierCallbackSignature(secret string, query QueryParams) string {
	return signature.HexHMAC(signature.SHA256, secret, signature.JoinPairs(query, "signature", "mode"))
}

func checkAbsoluteURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute url")
	}
	return nil
}
