package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/paygate/internal/obs"
)

// ProcessResult is the uniform answer of ProcessPayment.
type ProcessResult struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message,omitempty"`
	CheckoutURL     string         `json:"checkout_url,omitempty"`
	GatewayResponse map[string]any `json:"gateway_response,omitempty"`
	Gateway         string         `json:"gateway"`
}

// VerifyResult is the uniform answer of VerifyPayment.
type VerifyResult struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message,omitempty"`
	Paid            bool           `json:"is_paid"`
	Status          string         `json:"status,omitempty"`
	GatewayResponse map[string]any `json:"gateway_response,omitempty"`
	Gateway         string         `json:"gateway"`
}

// Service runs the initiate and verify flows without letting errors escape.
type Service struct {
	Factory *Factory
	Logger  zerolog.Logger
}

// ProcessPayment initialises a payment on gateway and derives its checkout URL.
func (s *Service) ProcessPayment(ctx context.Context, gateway string, override *Credentials, orderID string, amount decimal.Decimal, data map[string]any) (res ProcessResult) {
	label := gatewayLabel(gateway)
	res.Gateway = label
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.ProcessPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider", label), attribute.String("order.id", orderID))

	start := time.Now()
	outcome := "error"
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			span.RecordError(err)
			res = ProcessResult{Success: false, Message: err.Error(), Gateway: label}
			outcome = "panic"
		}
		span.SetAttributes(
			attribute.String("payment.intent.result", outcome),
			attribute.Float64("payment.intent.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		if obs.PaymentIntentTotal != nil {
			obs.PaymentIntentTotal.WithLabelValues(label, outcome).Inc()
		}
	}()

	fail := func(err error) ProcessResult {
		outcome = errorLabel(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.Logger.Error().Err(err).Str("gateway", label).Str("order_id", orderID).Msg("payment processing failed")
		return ProcessResult{Success: false, Message: err.Error(), Gateway: label}
	}

	if s == nil || s.Factory == nil {
		return fail(errors.New("payment service not configured"))
	}
	gw, err := s.Factory.Create(gateway, override)
	if err != nil {
		return fail(err)
	}
	result, err := gw.Initialize(ctx, orderID, amount, data)
	if err != nil {
		return fail(err)
	}
	checkout, err := gw.CheckoutURL(result)
	if err != nil {
		return fail(err)
	}
	outcome = "success"
	s.Logger.Info().Str("gateway", label).Str("order_id", orderID).Str("kind", result.Kind.String()).Msg("payment initialised")
	return ProcessResult{
		Success:         true,
		CheckoutURL:     checkout,
		GatewayResponse: result.Raw,
		Gateway:         label,
	}
}

// VerifyPayment checks a callback envelope against gateway.
func (s *Service) VerifyPayment(ctx context.Context, gateway string, override *Credentials, env Envelope) (res VerifyResult) {
	label := gatewayLabel(gateway)
	res.Gateway = label
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.VerifyPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider", label))

	outcome := "error"
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			span.RecordError(err)
			res = VerifyResult{Success: false, Message: err.Error(), Gateway: label}
			outcome = "panic"
		}
		span.SetAttributes(attribute.String("payment.webhook.result", outcome))
		if obs.PaymentWebhookTotal != nil {
			obs.PaymentWebhookTotal.WithLabelValues(label, outcome).Inc()
		}
	}()

	if s == nil || s.Factory == nil {
		return VerifyResult{Success: false, Message: "payment service not configured", Gateway: label}
	}
	gw, err := s.Factory.Create(gateway, override)
	if err != nil {
		outcome = errorLabel(err)
		span.RecordError(err)
		return VerifyResult{Success: false, Message: err.Error(), Gateway: label}
	}
	verdict, err := gw.VerifyCallback(ctx, env)
	if err != nil {
		outcome = errorLabel(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.Logger.Error().Err(err).Str("gateway", label).Msg("payment verification failed")
		return VerifyResult{Success: false, Message: err.Error(), Gateway: label}
	}
	if !verdict.Verified {
		outcome = "invalid"
		s.Logger.Warn().Str("gateway", label).Str("reason", verdict.Reason).Msg("payment callback rejected")
		return VerifyResult{Success: false, Message: verdict.Reason, Status: verdict.Status, GatewayResponse: verdict.Data, Gateway: label}
	}
	outcome = "verified"
	span.SetAttributes(attribute.Bool("payment.paid", verdict.Paid))
	return VerifyResult{
		Success:         true,
		Message:         firstNonEmpty(verdict.Reason, "payment verification successful"),
		Paid:            verdict.Paid,
		Status:          verdict.Status,
		GatewayResponse: verdict.Data,
		Gateway:         label,
	}
}

func gatewayLabel(gateway string) string {
	if t, err := ParseType(gateway); err == nil {
		return string(t)
	}
	return "unknown"
}

func errorLabel(err error) string {
	var (
		validation  *ValidationError
		config      *ConfigurationError
		upstream    *UpstreamError
		unsupported *UnsupportedGatewayError
	)
	switch {
	case errors.As(err, &validation):
		return "invalid_request"
	case errors.As(err, &config):
		return "misconfigured"
	case errors.As(err, &upstream):
		return "upstream_error"
	case errors.As(err, &unsupported):
		return "unsupported"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
