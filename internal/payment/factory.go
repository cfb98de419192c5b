package payment

import (
	"github.com/rs/zerolog"

	"github.com/noah-isme/paygate/internal/transport"
)

// Factory builds gateway adapters from configured defaults.
type Factory struct {
	defaults map[Type]Credentials
	caller   transport.Caller
	logger   zerolog.Logger
}

// NewFactory copies defaults so later changes to the map do not leak into adapters.
func NewFactory(defaults map[Type]Credentials, caller transport.Caller, logger zerolog.Logger) *Factory {
	copied := make(map[Type]Credentials, len(defaults))
	for k, v := range defaults {
		copied[k] = v
	}
	if caller == nil {
		caller = transport.New(nil)
	}
	return &Factory{defaults: copied, caller: caller, logger: logger}
}

// Create returns the adapter for id. A non-nil override is merged over the
// defaults for this adapter only.
func (f *Factory) Create(id string, override *Credentials) (Gateway, error) {
	t, err := ParseType(id)
	if err != nil {
		return nil, err
	}
	creds := f.defaults[t].Merge(override)
	switch t {
	case Paymob:
		return NewPaymob(creds, f.caller, f.logger), nil
	case Kashier:
		return NewKashier(creds, f.logger), nil
	case Telr:
		return NewTelr(creds, f.caller, f.logger), nil
	case Fawaterak:
		return NewFawaterak(creds, f.caller, f.logger), nil
	default:
		return nil, &UnsupportedGatewayError{Gateway: id}
	}
}

// CreateFromMap is Create with credentials given as a snake_case map.
func (f *Factory) CreateFromMap(id string, creds map[string]any) (Gateway, error) {
	override, err := CredentialsFromMap(creds)
	if err != nil {
		return nil, &ValidationError{Field: "credentials", Message: err.Error()}
	}
	return f.Create(id, override)
}
