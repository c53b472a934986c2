package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"terralumen/internal/core/payment"
	"terralumen/internal/core/payment/paymenttest"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, payment.CheckoutCompleted, payment.KindOf("checkout.session.completed"))
	assert.Equal(t, payment.SubscriptionUpdated, payment.KindOf("customer.subscription.updated"))
	assert.Equal(t, payment.SubscriptionDeleted, payment.KindOf("customer.subscription.deleted"))
	assert.Equal(t, payment.InvoicePaymentFailed, payment.KindOf("invoice.payment_failed"))
	assert.Equal(t, payment.Unrecognized, payment.KindOf("charge.refunded"))
	assert.Equal(t, "unrecognized", payment.EventKind(99).String())
}

func TestParseWebhookCheckout(t *testing.T) {
	created := time.Unix(1_700_000_000, 0).UTC()
	body, sig := paymenttest.Sign("evt_1", "checkout.session.completed", created,
		paymenttest.CheckoutObject("cs_1", "cus_1", "u1", "lifetime", 9900))

	ev, err := payment.ParseWebhook(body, sig, paymenttest.Secret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, payment.CheckoutCompleted, ev.Kind)
	assert.Equal(t, created, ev.Created)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "cs_1", ev.Session.ID)
	assert.Equal(t, "cus_1", ev.Session.CustomerRef)
	assert.Equal(t, "pi_cs_1", ev.Session.PaymentIntentRef)
	assert.True(t, ev.Session.Paid)
	assert.Equal(t, int64(9900), ev.Session.AmountTotal)
	assert.Equal(t, "USD", ev.Session.Currency)
	assert.Equal(t, "lifetime", ev.Session.Metadata["membership_type"])
}

func TestParseWebhookCheckoutPaymentStatus(t *testing.T) {
	cases := map[string]bool{
		"paid":                true,
		"no_payment_required": true,
		"unpaid":              false,
	}
	for status, settled := range cases {
		t.Run(status, func(t *testing.T) {
			obj := paymenttest.CheckoutObject("cs_1", "cus_1", "u1", "annual", 0)
			obj["payment_status"] = status
			body, sig := paymenttest.Sign("evt_1", "checkout.session.completed", time.Now(), obj)

			ev, err := payment.ParseWebhook(body, sig, paymenttest.Secret)
			require.NoError(t, err)
			assert.Equal(t, settled, ev.Session.Paid)
		})
	}
}

func TestParseWebhookInvoiceParentSubscription(t *testing.T) {
	obj := map[string]any{
		"id":       "in_1",
		"customer": "cus_1",
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_9"},
		},
	}
	body, sig := paymenttest.Sign("evt_2", "invoice.payment_failed", time.Now(), obj)
	ev, err := payment.ParseWebhook(body, sig, paymenttest.Secret)
	require.NoError(t, err)
	require.NotNil(t, ev.Invoice)
	assert.Equal(t, "sub_9", ev.Invoice.SubscriptionRef)
	assert.Equal(t, "cus_1", ev.Invoice.CustomerRef)
}

func TestParseWebhookUnrecognized(t *testing.T) {
	body, sig := paymenttest.Sign("evt_3", "charge.refunded", time.Now(), map[string]any{"id": "ch_1"})
	ev, err := payment.ParseWebhook(body, sig, paymenttest.Secret)
	require.NoError(t, err)
	assert.Equal(t, payment.Unrecognized, ev.Kind)
	assert.Nil(t, ev.Session)
}

func TestParseWebhookRejects(t *testing.T) {
	body, sig := paymenttest.Sign("evt_4", "checkout.session.completed", time.Now(),
		paymenttest.CheckoutObject("cs_1", "cus_1", "u1", "annual", 100))

	tampered := bytes.Replace(body, []byte(`"u1"`), []byte(`"u2"`), 1)
	_, err := payment.ParseWebhook(tampered, sig, paymenttest.Secret)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = payment.ParseWebhook(body, "", paymenttest.Secret)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = payment.ParseWebhook(body, sig, "whsec_other")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = payment.ParseWebhook(body, sig, "")
	assert.ErrorIs(t, err, payment.ErrNotConfigured)

	junk := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte("{not json"),
		Secret:    paymenttest.Secret,
		Timestamp: time.Now(),
	})
	_, err = payment.ParseWebhook(junk.Payload, junk.Header, paymenttest.Secret)
	assert.ErrorIs(t, err, payment.ErrMalformedPayload)

	body, sig = paymenttest.Sign("evt_5", "customer.subscription.updated", time.Now(), map[string]any{"status": "active"})
	_, err = payment.ParseWebhook(body, sig, paymenttest.Secret)
	assert.ErrorIs(t, err, payment.ErrMalformedPayload)
}

func fakeStripeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/customers", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "a@b.c", r.PostForm.Get("email"))
		assert.Equal(t, "u1", r.PostForm.Get("metadata[user_id]"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "cus_new", "object": "customer"})
	})
	mux.HandleFunc("/v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "price_a", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "annual", r.PostForm.Get("metadata[membership_type]"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "cs_new", "object": "checkout.session", "customer": "cus_new",
			"mode": "subscription", "payment_status": "unpaid", "url": "https://checkout.stripe.com/c/pay/cs_new",
		})
	})
	mux.HandleFunc("/v1/checkout/sessions/cs_paid", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "cs_paid", "object": "checkout.session", "customer": "cus_new",
			"subscription": "sub_1", "payment_status": "paid", "mode": "subscription",
			"amount_total": 4900, "currency": "eur", "created": 1_700_000_000,
			"metadata": map[string]string{"user_id": "u1", "membership_type": "annual"},
		})
	})
	mux.HandleFunc("/v1/checkout/sessions/cs_missing", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such checkout.session"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStripeProvider(t *testing.T) {
	srv := fakeStripeAPI(t)
	p := payment.NewStripeProvider(payment.StripeOptions{
		SecretKey:     "sk_test_123",
		WebhookSecret: paymenttest.Secret,
		APIBase:       srv.URL,
		Timeout:       2 * time.Second,
	})
	ctx := context.Background()

	cus, err := p.CreateCustomer(ctx, payment.CustomerInput{Email: "a@b.c", Name: "A", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "cus_new", cus)

	s, err := p.CreateCheckoutSession(ctx, payment.CheckoutInput{
		CustomerRef: cus,
		PriceID:     "price_a",
		Mode:        payment.ModeSubscription,
		SuccessURL:  "http://x/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   "http://x/membership",
		Metadata:    map[string]string{"user_id": "u1", "membership_type": "annual"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_new", s.ID)
	assert.False(t, s.Paid)
	assert.NotEmpty(t, s.URL)

	s, err = p.RetrieveSession(ctx, "cs_paid")
	require.NoError(t, err)
	assert.True(t, s.Paid)
	assert.Equal(t, "cus_new", s.CustomerRef)
	assert.Equal(t, "sub_1", s.SubscriptionRef)
	assert.Empty(t, s.PaymentIntentRef)
	assert.Equal(t, "EUR", s.Currency)

	_, err = p.RetrieveSession(ctx, "cs_missing")
	assert.ErrorIs(t, err, payment.ErrSessionNotFound)
}
