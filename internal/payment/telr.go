package payment

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/paygate/internal/transport"
)

const defaultTelrAPIURL = "https://secure.telr.com/gateway/order.json"

// telrPaidCode is the order status Telr reports for an authorised payment.
const telrPaidCode = "A"

// TelrGateway creates hosted payment pages and confirms callbacks with a
// remote status check.
type TelrGateway struct {
	creds  Credentials
	caller transport.Caller
	logger zerolog.Logger
}

type telrCustomer struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
	Phone string `mapstructure:"phone"`
}

// NewTelr builds a Telr adapter; MerchantID is the store id and SecretKey the auth key.
func NewTelr(creds Credentials, caller transport.Caller, logger zerolog.Logger) *TelrGateway {
	creds.BaseURL = firstNonEmpty(creds.BaseURL, defaultTelrAPIURL)
	creds.Currency = firstNonEmpty(creds.Currency, "USD")
	return &TelrGateway{creds: creds, caller: caller, logger: logger.With().Str("gateway", string(Telr)).Logger()}
}

func (g *TelrGateway) Name() Type { return Telr }

func (g *TelrGateway) PriceFactor(any) float64 { return defaultPriceFactor }

// Initialize posts an ivp_method=create order and returns its payment page.
func (g *TelrGateway) Initialize(ctx context.Context, orderID string, amount decimal.Decimal, data map[string]any) (Result, error) {
	intent, err := NewIntent(orderID, amount, data)
	if err != nil {
		return Result{}, err
	}
	var customer telrCustomer
	if raw, ok := intent.Data["customer_data"]; ok && raw != nil {
		if err := decodeInto(raw, &customer); err != nil {
			return Result{}, &ValidationError{Field: "customer_data", Message: err.Error()}
		}
	}
	if g.creds.SecretKey == "" {
		return Result{}, &ConfigurationError{Gateway: Telr, Key: "api_key"}
	}

	description := stringOf(intent.Data["description"])
	if description == "" {
		description = "Payment for order " + intent.OrderID
	}
	testFlag := "0"
	if g.creds.TestMode {
		testFlag = "1"
	}
	form := url.Values{
		"ivp_method":   {"create"},
		"ivp_store":    {g.creds.MerchantID},
		"ivp_authkey":  {g.creds.SecretKey},
		"ivp_cart":     {intent.OrderID},
		"ivp_test":     {testFlag},
		"ivp_amount":   {intent.Amount.String()},
		"ivp_currency": {firstNonEmpty(intent.Currency, g.creds.Currency)},
		"ivp_desc":     {description},
		"return_auth":  {g.creds.SuccessURL},
		"return_can":   {g.creds.CancelURL},
		"return_decl":  {g.creds.DeclineURL},
	}
	if customer.Name != "" {
		form.Set("bill_fname", customer.Name)
	}
	if customer.Email != "" {
		form.Set("bill_email", customer.Email)
	}
	if customer.Phone != "" {
		form.Set("bill_tel", customer.Phone)
	}

	resp, err := g.caller.Do(ctx, transport.Request{Method: http.MethodPost, URL: g.creds.BaseURL, Form: form})
	if err != nil {
		g.logger.Error().Err(err).Str("order_id", intent.OrderID).Msg("telr create failed")
		return Result{}, &UpstreamError{Gateway: Telr, Op: "create order", Err: err}
	}
	if !resp.Successful {
		g.logger.Error().Int("status", resp.StatusCode).Str("order_id", intent.OrderID).Msg("telr create rejected")
		return Result{}, &UpstreamError{Gateway: Telr, Op: "create order", StatusCode: resp.StatusCode, Body: resp.Raw}
	}
	order, _ := asMap(resp.Body["order"])
	redirect, ref := stringOf(order["url"]), stringOf(order["ref"])
	if redirect == "" || ref == "" {
		return Result{}, &UpstreamError{Gateway: Telr, Op: "create order", Body: resp.Raw}
	}
	return Result{
		Kind:        ResultRedirect,
		RedirectURL: redirect,
		Raw: map[string]any{
			"redirect_url": redirect,
			"order_id":     intent.OrderID,
			"reference":    ref,
		},
	}, nil
}

// CheckoutURL returns the Telr payment page.
func (g *TelrGateway) CheckoutURL(result Result) (string, error) {
	if result.RedirectURL != "" {
		return result.RedirectURL, nil
	}
	if u := stringOf(result.Raw["redirect_url"]); u != "" {
		return u, nil
	}
	return "", &InvalidStateError{Gateway: Telr, Field: "redirect_url"}
}

// VerifyCallback asks Telr for the order status. Every failure of the check
// is reported as an unverified outcome.
func (g *TelrGateway) VerifyCallback(ctx context.Context, env Envelope) (Outcome, error) {
	if g.creds.SecretKey == "" {
		return Outcome{}, &ConfigurationError{Gateway: Telr, Key: "api_key"}
	}
	rawRef, _ := env.Lookup("order_ref")
	ref := strings.TrimSpace(stringOf(rawRef))
	if ref == "" {
		return g.reject("order reference is missing from request", ""), nil
	}

	resp, err := g.caller.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    g.creds.BaseURL,
		Form: url.Values{
			"ivp_method":  {"check"},
			"ivp_store":   {g.creds.MerchantID},
			"ivp_authkey": {g.creds.SecretKey},
			"order_ref":   {ref},
		},
	})
	if err != nil {
		return g.reject("failed to retrieve payment status: "+err.Error(), ref), nil
	}
	if !resp.Successful {
		return g.reject("failed to retrieve payment status: "+
			(&UpstreamError{Gateway: Telr, Op: "check order", StatusCode: resp.StatusCode, Body: resp.Raw}).Error(), ref), nil
	}
	order, ok := asMap(resp.Body["order"])
	if !ok {
		return g.reject("failed to retrieve payment status: invalid response from payment gateway", ref), nil
	}
	status, _ := asMap(order["status"])
	code := stringOf(status["code"])
	return Outcome{
		Verified: true,
		Paid:     code == telrPaidCode,
		Status:   code,
		Data:     order,
	}, nil
}

func (g *TelrGateway) reject(reason, ref string) Outcome {
	g.logger.Warn().Str("reason", reason).Str("order_ref", ref).Msg("telr verification failed")
	return Outcome{Verified: false, Status: "unverified", Reason: reason}
}
