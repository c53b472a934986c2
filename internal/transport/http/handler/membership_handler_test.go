package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"terralumen/internal/core/payment"
	"terralumen/internal/domain"
	"terralumen/internal/feature/membership"
	httpez "terralumen/internal/transport/http/ez"
)

type mockService struct{ mock.Mock }

func (m *mockService) StartCheckout(ctx context.Context, userID, membershipType, priceID string) (string, error) {
	args := m.Called(ctx, userID, membershipType, priceID)
	return args.String(0), args.Error(1)
}

func (m *mockService) Redeem(ctx context.Context, userID, sessionID string) (membership.RedeemOutcome, error) {
	args := m.Called(ctx, userID, sessionID)
	return args.Get(0).(membership.RedeemOutcome), args.Error(1)
}

func (m *mockService) HandleWebhook(ctx context.Context, payload []byte, signature string) (membership.WebhookResult, error) {
	args := m.Called(ctx, payload, signature)
	return args.Get(0).(membership.WebhookResult), args.Error(1)
}

// stripeEngine uid 为空模拟未登录
func stripeEngine(svc MembershipService, uid string) *gin.Engine {
	r := gin.New()
	identity := func(c *gin.Context) {
		if uid != "" {
			c.Set(httpez.CtxUserID, uid)
		}
		c.Next()
	}
	h := NewMembershipHandler(svc, nil, "/membership", "/dashboard")
	h.MountWebhook(r.Group("/stripe"), 0)
	h.MountBrowser(r.Group("/stripe", identity))
	return r
}

func TestCreateCheckoutSessionRedirectsToStripe(t *testing.T) {
	svc := new(mockService)
	svc.On("StartCheckout", mock.Anything, "u1", "annual", "").
		Return("https://checkout.stripe.test/pay/cs_1", nil).Once()

	w := do(stripeEngine(svc, "u1"), http.MethodPost, "/stripe/create-checkout-session",
		strings.NewReader("membership_type=annual"), withForm)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://checkout.stripe.test/pay/cs_1", w.Header().Get("Location"))
	svc.AssertExpectations(t)
}

func TestCreateCheckoutSessionFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		msg  string
	}{
		{"unknown type", fmt.Errorf("%w: %q", domain.ErrUnknownMembershipType, "gold"), "Invalid membership type."},
		{"no price", membership.ErrPriceNotConfigured, "This membership option is not available right now."},
		{"provider", fmt.Errorf("%w: %w", membership.ErrProvider, errors.New("stripe down")), "Payment service is unavailable, please try again."},
		{"other", errors.New("db gone"), "Something went wrong, please try again."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("StartCheckout", mock.Anything, "u1", "gold", "price_x").Return("", tc.err).Once()

			w := do(stripeEngine(svc, "u1"), http.MethodPost, "/stripe/create-checkout-session",
				strings.NewReader(`{"membership_type":"gold","price_id":"price_x"}`), withJSON)

			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, "/membership", w.Header().Get("Location"))
			assert.Equal(t, Flash{Level: FlashError, Message: tc.msg}, flashOf(t, w))
			svc.AssertExpectations(t)
		})
	}
}

func TestCreateCheckoutSessionRequiresLogin(t *testing.T) {
	svc := new(mockService)
	w := do(stripeEngine(svc, ""), http.MethodPost, "/stripe/create-checkout-session",
		strings.NewReader("membership_type=annual"), withForm)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/membership", w.Header().Get("Location"))
	assert.Equal(t, FlashError, flashOf(t, w).Level)
	svc.AssertNotCalled(t, "StartCheckout", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSuccessOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		out      membership.RedeemOutcome
		err      error
		location string
		level    string
	}{
		{"activated", membership.RedeemActivated, nil, "/dashboard", FlashSuccess},
		{"already applied", membership.RedeemAlreadyApplied, nil, "/dashboard", FlashSuccess},
		{"processing", membership.RedeemProcessing, nil, "/dashboard", FlashInfo},
		{"not owner", "", membership.ErrNotOwner, "/membership", FlashError},
		{"provider", "", membership.ErrProvider, "/membership", FlashError},
		{"missing session", "", membership.ErrMissingSession, "/membership", FlashError},
		{"unknown type", "", domain.ErrUnknownMembershipType, "/membership", FlashError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("Redeem", mock.Anything, "u1", "cs_1").Return(tc.out, tc.err).Once()

			w := do(stripeEngine(svc, "u1"), http.MethodGet, "/stripe/success?session_id=cs_1", nil)

			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, tc.location, w.Header().Get("Location"))
			assert.Equal(t, tc.level, flashOf(t, w).Level)
			svc.AssertExpectations(t)
		})
	}
}

func TestSuccessRequiresLogin(t *testing.T) {
	svc := new(mockService)
	w := do(stripeEngine(svc, ""), http.MethodGet, "/stripe/success?session_id=cs_1", nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/membership", w.Header().Get("Location"))
	svc.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		result membership.WebhookResult
		err    error
		status int
	}{
		{"processed", membership.WebhookProcessed, nil, http.StatusOK},
		{"duplicate", membership.WebhookDuplicate, nil, http.StatusOK},
		{"ignored", membership.WebhookIgnored, nil, http.StatusOK},
		{"bad signature", "", payment.ErrInvalidSignature, http.StatusBadRequest},
		{"malformed", "", payment.ErrMalformedPayload, http.StatusBadRequest},
		{"not configured", "", payment.ErrNotConfigured, http.StatusServiceUnavailable},
		{"db failure", "", errors.New("deadlock"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("HandleWebhook", mock.Anything, []byte(`{"id":"evt_1"}`), "t=1,v1=abc").Return(tc.result, tc.err).Once()

			w := do(stripeEngine(svc, ""), http.MethodPost, "/stripe/webhook", strings.NewReader(`{"id":"evt_1"}`),
				func(req *http.Request) { req.Header.Set("Stripe-Signature", "t=1,v1=abc") })

			assert.Equal(t, tc.status, w.Code)
			if tc.err == nil {
				assert.JSONEq(t, fmt.Sprintf(`{"received":true,"status":%q}`, tc.result), w.Body.String())
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestWebhookBodyTooLarge(t *testing.T) {
	svc := new(mockService)
	r := gin.New()
	h := NewMembershipHandler(svc, nil, "/membership", "/dashboard")
	r.POST("/stripe/webhook", h.Webhook(8))

	w := do(r, http.MethodPost, "/stripe/webhook", strings.NewReader(`{"id":"evt_too_long"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "HandleWebhook", mock.Anything, mock.Anything, mock.Anything)
}
