package payment

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Type identifies a supported payment gateway.
type Type string

const (
	Paymob    Type = "paymob"
	Kashier   Type = "kashier"
	Telr      Type = "telr"
	Fawaterak Type = "fawaterak"
)

// Types lists every gateway the factory can build.
var Types = []Type{Paymob, Kashier, Telr, Fawaterak}

// ParseType maps an identifier onto a known gateway, ignoring case.
func ParseType(id string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(id)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", &UnsupportedGatewayError{Gateway: id}
}

// ResultKind tags the variant held by a Result.
type ResultKind int

const (
	ResultRaw ResultKind = iota
	ResultRedirect
	ResultCode
)

func (k ResultKind) String() string {
	switch k {
	case ResultRedirect:
		return "redirect"
	case ResultCode:
		return "code"
	default:
		return "raw"
	}
}

// Result is what Initialize returns. Raw always holds the adapter's provider
// response for diagnostics.
type Result struct {
	Kind        ResultKind
	RedirectURL string
	Code        map[string]any
	Raw         map[string]any
}

// Outcome is the verdict on a provider callback. A failed verification is
// reported through Verified and Reason, never as an error.
type Outcome struct {
	Verified bool
	Paid     bool
	Status   string
	Data     map[string]any
	Reason   string
}

// Intent is a validated payment initiation request.
type Intent struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
	Data     map[string]any
}

// NewIntent validates the order id and amount shared by every gateway.
func NewIntent(orderID string, amount decimal.Decimal, data map[string]any) (Intent, error) {
	orderID = strings.TrimSpace(orderID)
	if err := validate.Var(orderID, "required"); err != nil {
		return Intent{}, &ValidationError{Field: "order_id"}
	}
	if !amount.IsPositive() {
		return Intent{}, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if data == nil {
		data = map[string]any{}
	}
	currency, _ := data["currency"].(string)
	return Intent{OrderID: orderID, Amount: amount, Currency: strings.TrimSpace(currency), Data: data}, nil
}

// Gateway is the contract every provider adapter implements.
type Gateway interface {
	Name() Type
	// Initialize validates the intent and issues the provider request.
	Initialize(ctx context.Context, orderID string, amount decimal.Decimal, data map[string]any) (Result, error)
	// CheckoutURL derives the user-facing redirect target, or a JSON encoded
	// payment code for code based flows.
	CheckoutURL(result Result) (string, error)
	// VerifyCallback checks the authenticity of a provider notification.
	VerifyCallback(ctx context.Context, env Envelope) (Outcome, error)
	PriceFactor(method any) float64
}

// defaultPriceFactor is shared by all current gateways; no provider applies
// method-specific fees yet.
const defaultPriceFactor = 1.0
