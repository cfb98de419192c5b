package payment_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paygate/internal/obs"
	"github.com/noah-isme/paygate/internal/payment"
	"github.com/noah-isme/paygate/internal/transport"
)

func init() {
	obs.MustRegisterDomainMetrics("paygate_test", prometheus.NewRegistry())
}

func newService(caller transport.Caller) *payment.Service {
	return &payment.Service{Factory: newFactory(caller), Logger: zerolog.Nop()}
}

func TestProcessPaymentReturnsCheckoutURL(t *testing.T) {
	caller := &stubCaller{reply: okJSON(map[string]any{"client_secret": "abc", "id": "pi_1"})}
	before := testutil.ToFloat64(obs.PaymentIntentTotal.WithLabelValues("paymob", "success"))

	res := newService(caller).ProcessPayment(context.Background(), "PayMob", nil, "ORD-1", decimal.NewFromInt(100), paymobData())
	require.True(t, res.Success, res.Message)
	require.Equal(t, "paymob", res.Gateway)
	require.Equal(t, "https://paymob.test/unifiedcheckout?publicKey=egy_pk_test&clientSecret=abc", res.CheckoutURL)
	require.Equal(t, "pi_1", res.GatewayResponse["id"])
	require.Equal(t, before+1, testutil.ToFloat64(obs.PaymentIntentTotal.WithLabelValues("paymob", "success")))
}

func TestProcessPaymentFoldsErrors(t *testing.T) {
	svc := newService(&stubCaller{})
	ctx := context.Background()

	res := svc.ProcessPayment(ctx, "stripe", nil, "ORD-1", decimal.NewFromInt(1), nil)
	require.False(t, res.Success)
	require.Equal(t, "unknown", res.Gateway)
	require.Contains(t, res.Message, "stripe")

	data := paymobData()
	delete(data, "method_id")
	before := testutil.ToFloat64(obs.PaymentIntentTotal.WithLabelValues("paymob", "invalid_request"))
	res = svc.ProcessPayment(ctx, "paymob", nil, "ORD-1", decimal.NewFromInt(1), data)
	require.False(t, res.Success)
	require.Contains(t, res.Message, "method_id")
	require.Empty(t, res.CheckoutURL)
	require.Equal(t, before+1, testutil.ToFloat64(obs.PaymentIntentTotal.WithLabelValues("paymob", "invalid_request")))
}

func TestProcessPaymentRecoversFromPanic(t *testing.T) {
	caller := &stubCaller{reply: func(transport.Request) (*transport.Response, error) {
		panic("provider client exploded")
	}}
	before := testutil.ToFloat64(obs.PaymentIntentTotal.WithLabelValues("paymob", "panic"))

	res := newService(caller).ProcessPayment(context.Background(), "paymob", nil, "ORD-1", decimal.NewFromInt(1), paymobData())
	require.False(t, res.Success)
	require.Equal(t, "paymob", res.Gateway)
	require.Contains(t, res.Message, "provider client exploded")
	require.Equal(t, before+1, testutil.ToFloat64(obs.PaymentIntentTotal.WithLabelValues("paymob", "panic")))
}

func TestProcessPaymentUsesOverride(t *testing.T) {
	caller := &stubCaller{reply: okJSON(map[string]any{"client_secret": "abc"})}
	res := newService(caller).ProcessPayment(context.Background(), "paymob",
		&payment.Credentials{PublicKey: "egy_pk_tenant"}, "ORD-1", decimal.NewFromInt(5), paymobData())
	require.True(t, res.Success, res.Message)
	require.Contains(t, res.CheckoutURL, "publicKey=egy_pk_tenant")
}

func TestVerifyPaymentKashier(t *testing.T) {
	svc := newService(&stubCaller{})
	query := payment.ParseQuery(kashierCallbackQS)
	query = append(query, payment.QueryParams{{Key: "signature", Value: payment.KashierCallbackSignature(kashierSecret, query)}}...)

	res := svc.VerifyPayment(context.Background(), "kashier", nil, payment.Envelope{Query: query})
	require.True(t, res.Success, res.Message)
	require.True(t, res.Paid)
	require.Equal(t, "success", res.Status)
	require.Equal(t, "kashier", res.Gateway)

	before := testutil.ToFloat64(obs.PaymentWebhookTotal.WithLabelValues("kashier", "invalid"))
	query[0].Value = "FAILED"
	res = svc.VerifyPayment(context.Background(), "kashier", nil, payment.Envelope{Query: query})
	require.False(t, res.Success)
	require.False(t, res.Paid)
	require.Equal(t, "signature verification failed", res.Message)
	require.Equal(t, before+1, testutil.ToFloat64(obs.PaymentWebhookTotal.WithLabelValues("kashier", "invalid")))
}

func TestVerifyPaymentMisconfigured(t *testing.T) {
	svc := &payment.Service{Factory: payment.NewFactory(nil, &stubCaller{}, zerolog.Nop()), Logger: zerolog.Nop()}
	res := svc.VerifyPayment(context.Background(), "kashier", nil, payment.Envelope{Query: payment.ParseQuery(kashierCallbackQS)})
	require.False(t, res.Success)
	require.Contains(t, res.Message, "api_key")
}

func TestVerifyPaymentFawaterakCarriesReason(t *testing.T) {
	res := newService(&stubCaller{}).VerifyPayment(context.Background(), "fawaterak", nil, payment.Envelope{
		Body: map[string]any{"invoice_id": "1001", "invoice_status": "unpaid"},
	})
	require.True(t, res.Success)
	require.False(t, res.Paid)
	require.Equal(t, "unpaid", res.Status)
	require.NotEmpty(t, res.Message)
}

func TestNilServiceIsNotConfigured(t *testing.T) {
	var svc *payment.Service
	res := svc.VerifyPayment(context.Background(), "telr", nil, payment.Envelope{})
	require.False(t, res.Success)
	require.Equal(t, "telr", res.Gateway)

	proc := svc.ProcessPayment(context.Background(), "telr", nil, "ORD-1", decimal.NewFromInt(1), nil)
	require.False(t, proc.Success)
}
