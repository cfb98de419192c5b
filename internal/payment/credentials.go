package payment

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/noah-isme/paygate/internal/config"
)

// Credentials carries the per-gateway settings an adapter is built with. Each
// gateway reads only the subset it needs.
type Credentials struct {
	BaseURL        string `mapstructure:"base_url"`
	CheckoutURL    string `mapstructure:"checkout_url"`
	PublicKey      string `mapstructure:"public_key"`
	SecretKey      string `mapstructure:"secret_key"`
	HMACSecret     string `mapstructure:"hmac_secret"`
	MerchantID     string `mapstructure:"merchant_id"`
	Mode           string `mapstructure:"mode"`
	Currency       string `mapstructure:"currency"`
	Display        string `mapstructure:"display"`
	RedirectMethod string `mapstructure:"redirect_method"`
	RedirectURL    string `mapstructure:"redirect_url"`
	CallbackURL    string `mapstructure:"callback_url"`
	SuccessURL     string `mapstructure:"success_url"`
	CancelURL      string `mapstructure:"cancel_url"`
	DeclineURL     string `mapstructure:"decline_url"`
	TestMode       bool   `mapstructure:"test_mode"`
}

// CredentialsFromMap decodes snake_case keys into Credentials. The provider
// aliases api_key, api_url and token are accepted as well.
func CredentialsFromMap(m map[string]any) (*Credentials, error) {
	if len(m) == 0 {
		return nil, nil
	}
	var aux struct {
		Credentials `mapstructure:",squash"`
		APIKey      string `mapstructure:"api_key"`
		APIURL      string `mapstructure:"api_url"`
		Token       string `mapstructure:"token"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &aux,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	creds := aux.Credentials
	creds.SecretKey = firstNonEmpty(creds.SecretKey, aux.APIKey, aux.Token)
	creds.BaseURL = firstNonEmpty(creds.BaseURL, aux.APIURL)
	return &creds, nil
}

// Merge overlays the non-empty fields of override onto c. TestMode can only
// be switched on by an override.
func (c Credentials) Merge(override *Credentials) Credentials {
	if override == nil {
		return c
	}
	out := c
	out.BaseURL = firstNonEmpty(override.BaseURL, c.BaseURL)
	out.CheckoutURL = firstNonEmpty(override.CheckoutURL, c.CheckoutURL)
	out.PublicKey = firstNonEmpty(override.PublicKey, c.PublicKey)
	out.SecretKey = firstNonEmpty(override.SecretKey, c.SecretKey)
	out.HMACSecret = firstNonEmpty(override.HMACSecret, c.HMACSecret)
	out.MerchantID = firstNonEmpty(override.MerchantID, c.MerchantID)
	out.Mode = firstNonEmpty(override.Mode, c.Mode)
	out.Currency = firstNonEmpty(override.Currency, c.Currency)
	out.Display = firstNonEmpty(override.Display, c.Display)
	out.RedirectMethod = firstNonEmpty(override.RedirectMethod, c.RedirectMethod)
	out.RedirectURL = firstNonEmpty(override.RedirectURL, c.RedirectURL)
	out.CallbackURL = firstNonEmpty(override.CallbackURL, c.CallbackURL)
	out.SuccessURL = firstNonEmpty(override.SuccessURL, c.SuccessURL)
	out.CancelURL = firstNonEmpty(override.CancelURL, c.CancelURL)
	out.DeclineURL = firstNonEmpty(override.DeclineURL, c.DeclineURL)
	out.TestMode = c.TestMode || override.TestMode
	return out
}

// DefaultCredentials maps process configuration onto per-gateway credentials.
func DefaultCredentials(cfg config.Config) map[Type]Credentials {
	return map[Type]Credentials{
		Paymob: {
			BaseURL:     cfg.Paymob.BaseURL,
			CheckoutURL: cfg.Paymob.CheckoutURL,
			PublicKey:   cfg.Paymob.PublicKey,
			SecretKey:   cfg.Paymob.SecretKey,
			HMACSecret:  cfg.Paymob.HMACSecret,
			CallbackURL: cfg.Paymob.CallbackURL,
			Currency:    "EGP",
		},
		Kashier: {
			BaseURL:        cfg.Kashier.BaseURL,
			PublicKey:      cfg.Kashier.PublicKey,
			SecretKey:      cfg.Kashier.APIKey,
			MerchantID:     cfg.Kashier.MerchantID,
			Mode:           cfg.Kashier.Mode,
			RedirectURL:    cfg.Kashier.RedirectURL,
			Currency:       cfg.Kashier.Currency,
			Display:        cfg.Kashier.Display,
			RedirectMethod: cfg.Kashier.RedirectMethod,
		},
		Telr: {
			BaseURL:    cfg.Telr.APIURL,
			MerchantID: cfg.Telr.MerchantID,
			SecretKey:  cfg.Telr.APIKey,
			TestMode:   cfg.Telr.TestMode,
			SuccessURL: cfg.Telr.SuccessURL,
			CancelURL:  cfg.Telr.CancelURL,
			DeclineURL: cfg.Telr.DeclineURL,
			Currency:   "USD",
		},
		Fawaterak: {
			BaseURL:   cfg.Fawaterak.APIURL,
			SecretKey: cfg.Fawaterak.Token,
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
