package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel"

	"github.com/noah-isme/paygate/internal/common"
	"github.com/noah-isme/paygate/internal/obs"
)

// Handler exposes payment initiation and provider callbacks over HTTP.
type Handler struct {
	Svc   *Service
	Guard *Guard
}

type intentReq struct {
	OrderID string          `json:"orderId" validate:"required"`
	Amount  decimal.Decimal `json:"amount"`
	Data    map[string]any  `json:"data"`
}

// Register mounts the payment routes. guards wrap the initiation endpoint only.
func (h *Handler) Register(r chi.Router, guards ...func(http.Handler) http.Handler) {
	r.Route("/payments", func(r chi.Router) {
		r.Get("/fawaterak/methods", h.Methods)
		r.With(guards...).Post("/{gateway}", h.Intent)
		r.Get("/{gateway}/callback", h.Callback)
		r.Post("/{gateway}/callback", h.Callback)
	})
}

// Intent starts a payment on the gateway named in the path.
func (h *Handler) Intent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	gateway := chi.URLParam(r, "gateway")
	if _, err := ParseType(gateway); err != nil {
		common.JSONError(w, http.StatusNotFound, "UNSUPPORTED_GATEWAY", err.Error(), nil)
		return
	}
	var req intentReq
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if err := validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}

	res := h.Svc.ProcessPayment(r.Context(), gateway, nil, req.OrderID, req.Amount, req.Data)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	common.JSON(w, status, res)
}

// Methods lists Fawaterak payment methods for the configured account.
func (h *Handler) Methods(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil || h.Svc.Factory == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	gw, err := h.Svc.Factory.Create(string(Fawaterak), nil)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", err.Error(), nil)
		return
	}
	fg, ok := gw.(*FawaterakGateway)
	if !ok {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "fawaterak adapter unavailable", nil)
		return
	}
	methods, err := fg.PaymentMethods(r.Context())
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": methods})
}

// Callback verifies a provider notification. Verified callbacks answer 200,
// rejected ones 401; a verified payload seen before answers 409.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	ctx, span := otel.Tracer("payment.Handler").Start(r.Context(), "PaymentCallback.Handle")
	defer span.End()

	gateway := chi.URLParam(r, "gateway")
	if _, err := ParseType(gateway); err != nil {
		common.JSONError(w, http.StatusNotFound, "UNSUPPORTED_GATEWAY", err.Error(), nil)
		return
	}
	var raw []byte
	if r.Body != nil {
		var err error
		raw, err = io.ReadAll(r.Body)
		if err != nil {
			span.RecordError(err)
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read payload", nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
	}
	env, err := EnvelopeFromRequest(r)
	if err != nil {
		span.RecordError(err)
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}

	res := h.Svc.VerifyPayment(ctx, gateway, nil, env)
	if !res.Success {
		common.JSON(w, http.StatusUnauthorized, res)
		return
	}
	first, err := h.Guard.FirstDelivery(ctx, gateway, r.URL.RawQuery, raw)
	if err != nil {
		span.RecordError(err)
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "replay protection failed", nil)
		return
	}
	if !first {
		span.AddEvent("payment callback replay prevented")
		if obs.PaymentCallbackReplays != nil {
			obs.PaymentCallbackReplays.WithLabelValues(gatewayLabel(gateway)).Inc()
		}
		common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate callback payload", nil)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

// appError maps a gateway error onto its HTTP representation.
func appError(err error) *common.AppError {
	var (
		validation *ValidationError
		config     *ConfigurationError
		upstream   *UpstreamError
	)
	switch {
	case errors.As(err, &validation):
		return &common.AppError{Code: "BAD_REQUEST", HTTPStatus: http.StatusBadRequest, Err: err, Details: map[string]any{"field": validation.Field}}
	case errors.As(err, &config):
		return common.NewAppError("PAYMENT_NOT_CONFIGURED", "", http.StatusServiceUnavailable, err)
	case errors.As(err, &upstream):
		return common.NewAppError("UPSTREAM_ERROR", "", http.StatusBadGateway, err)
	default:
		return common.NewAppError("INTERNAL", "", http.StatusInternalServerError, err)
	}
}
