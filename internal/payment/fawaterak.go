package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/paygate/internal/signature"
	"github.com/noah-isme/paygate/internal/transport"
)

const defaultFawaterakAPIURL = "https://staging.fawaterk.com/api/v2/"

var (
	fawaterakRequired = []string{
		"payment_method_id", "cartTotal", "currency", "invoice_number",
		"customerData", "cartItems", "redirectionUrls",
	}
	fawaterakOptional = []string{
		"frequency", "customExpireDate", "discountData", "taxData",
		"authAndCapture", "payLoad", "mobileWalletNumber",
		"due_date", "sendEmail", "sendSMS", "lang", "redirectOption",
	}
)

// FawaterakGateway creates invoices. Depending on the method the invoice
// yields a redirect (cards) or a payment code (cash networks, wallets).
type FawaterakGateway struct {
	creds  Credentials
	caller transport.Caller
	logger zerolog.Logger
}

type fawaterakCustomer struct {
	FirstName string `mapstructure:"first_name" json:"first_name"`
	LastName  string `mapstructure:"last_name" json:"last_name"`
	Email     string `mapstructure:"email" json:"email"`
	Phone     string `mapstructure:"phone" json:"phone"`
	Address   string `mapstructure:"address" json:"address"`
}

type fawaterakRedirects struct {
	SuccessURL string `mapstructure:"successUrl" json:"successUrl"`
	FailURL    string `mapstructure:"failUrl" json:"failUrl"`
	PendingURL string `mapstructure:"pendingUrl" json:"pendingUrl"`
}

// NewFawaterak builds a Fawaterak adapter; SecretKey holds the API token.
func NewFawaterak(creds Credentials, caller transport.Caller, logger zerolog.Logger) *FawaterakGateway {
	creds.BaseURL = strings.TrimRight(firstNonEmpty(creds.BaseURL, defaultFawaterakAPIURL), "/") + "/"
	return &FawaterakGateway{creds: creds, caller: caller, logger: logger.With().Str("gateway", string(Fawaterak)).Logger()}
}

func (g *FawaterakGateway) Name() Type { return Fawaterak }

func (g *FawaterakGateway) PriceFactor(any) float64 { return defaultPriceFactor }

func (g *FawaterakGateway) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + g.creds.SecretKey}
}

// PaymentMethods lists the methods enabled for the merchant account.
func (g *FawaterakGateway) PaymentMethods(ctx context.Context) ([]any, error) {
	if g.creds.SecretKey == "" {
		return nil, &ConfigurationError{Gateway: Fawaterak, Key: "token"}
	}
	resp, err := g.caller.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     g.creds.BaseURL + "getPaymentmethods",
		Headers: g.headers(),
	})
	if err != nil {
		return nil, &UpstreamError{Gateway: Fawaterak, Op: "list payment methods", Err: err}
	}
	if !resp.Successful {
		return nil, &UpstreamError{Gateway: Fawaterak, Op: "list payment methods", StatusCode: resp.StatusCode, Body: resp.Raw}
	}
	methods, _ := resp.Body["data"].([]any)
	if methods == nil {
		methods = []any{}
	}
	return methods, nil
}

// Initialize validates the invoice fields and calls invoiceInitPay.
func (g *FawaterakGateway) Initialize(ctx context.Context, orderID string, amount decimal.Decimal, data map[string]any) (Result, error) {
	intent, err := NewIntent(orderID, amount, data)
	if err != nil {
		return Result{}, err
	}
	payload, err := buildFawaterakInvoice(intent.Data)
	if err != nil {
		return Result{}, err
	}
	if g.creds.SecretKey == "" {
		return Result{}, &ConfigurationError{Gateway: Fawaterak, Key: "token"}
	}

	resp, err := g.caller.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     g.creds.BaseURL + "invoiceInitPay",
		Headers: g.headers(),
		JSON:    payload,
	})
	if err != nil {
		g.logger.Error().Err(err).Str("order_id", intent.OrderID).Msg("fawaterak invoice failed")
		return Result{}, &UpstreamError{Gateway: Fawaterak, Op: "create invoice", Err: err}
	}
	if !resp.Successful || stringOf(resp.Body["status"]) != "success" {
		g.logger.Error().Int("status", resp.StatusCode).Str("order_id", intent.OrderID).Msg("fawaterak invoice rejected")
		return Result{}, &UpstreamError{Gateway: Fawaterak, Op: "create invoice", StatusCode: resp.StatusCode, Body: resp.Raw}
	}

	body, _ := asMap(resp.Body["data"])
	paymentData, _ := asMap(body["payment_data"])
	if redirect := stringOf(paymentData["redirectTo"]); redirect != "" {
		return Result{Kind: ResultRedirect, RedirectURL: redirect, Raw: resp.Body}, nil
	}
	if paymentData == nil {
		paymentData = map[string]any{}
	}
	return Result{Kind: ResultCode, Code: paymentData, Raw: resp.Body}, nil
}

func buildFawaterakInvoice(data map[string]any) (map[string]any, error) {
	if err := requireFilled(data, "", fawaterakRequired...); err != nil {
		return nil, err
	}
	methodID, err := toInt(data["payment_method_id"])
	if err != nil {
		return nil, &ValidationError{Field: "payment_method_id", Message: "must be an integer"}
	}
	var customer fawaterakCustomer
	if err := decodeInto(data["customerData"], &customer); err != nil {
		return nil, &ValidationError{Field: "customerData", Message: err.Error()}
	}
	var redirects fawaterakRedirects
	if err := decodeInto(data["redirectionUrls"], &redirects); err != nil {
		return nil, &ValidationError{Field: "redirectionUrls", Message: err.Error()}
	}

	payload := map[string]any{
		"payment_method_id": methodID,
		"cartTotal":         signature.FormatValue(data["cartTotal"]),
		"currency":          data["currency"],
		"invoice_number":    data["invoice_number"],
		"customer":          customer,
		"redirectionUrls":   redirects,
		"cartItems":         data["cartItems"],
	}
	options, _ := asMap(data["options"])
	for _, field := range fawaterakOptional {
		if v, ok := options[field]; ok {
			payload[field] = v
		}
	}
	return payload, nil
}

// CheckoutURL returns the redirect target, or the JSON encoded payment code.
func (g *FawaterakGateway) CheckoutURL(result Result) (string, error) {
	switch {
	case result.Kind == ResultRedirect && result.RedirectURL != "":
		return result.RedirectURL, nil
	case result.Kind == ResultCode && result.Code != nil:
		b, err := json.Marshal(result.Code)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", &InvalidStateError{Gateway: Fawaterak, Field: "payment_data"}
}

// VerifyCallback accepts every callback. Fawaterak publishes no signature
// scheme for these notifications, so authenticity is not established here.
func (g *FawaterakGateway) VerifyCallback(_ context.Context, env Envelope) (Outcome, error) {
	data := env.Merged()
	g.logger.Info().Int("fields", len(data)).Msg("fawaterak callback received")
	status := strings.ToLower(signature.FormatValue(data["invoice_status"]))
	return Outcome{
		Verified: true,
		Paid:     status == "paid",
		Status:   status,
		Data:     data,
		Reason:   "fawaterak defines no callback signature; payload accepted without verification",
	}, nil
}

// IsCodePayload reports whether a checkout value is a JSON payment code rather
// than a URL.
func IsCodePayload(checkout string) bool {
	s := strings.TrimSpace(checkout)
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}
