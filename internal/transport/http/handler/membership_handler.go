package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"terralumen/internal/domain"
	"terralumen/internal/feature/membership"
	httpez "terralumen/internal/transport/http/ez"
)

// MembershipService 浏览器跳转和 webhook 两条入口用到的业务方法
type MembershipService interface {
	StartCheckout(ctx context.Context, userID, membershipType, priceID string) (string, error)
	Redeem(ctx context.Context, userID, sessionID string) (membership.RedeemOutcome, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (membership.WebhookResult, error)
}

type MembershipHandler struct {
	svc          MembershipService
	log          *zap.Logger
	offerURL     string
	dashboardURL string
}

func NewMembershipHandler(svc MembershipService, l *zap.Logger, offerURL, dashboardURL string) *MembershipHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &MembershipHandler{svc: svc, log: l.Named("membership.http"), offerURL: offerURL, dashboardURL: dashboardURL}
}

type checkoutForm struct {
	MembershipType string `form:"membership_type" json:"membership_type"`
	PriceID        string `form:"price_id" json:"price_id"`
}

// CreateCheckoutSession POST /stripe/create-checkout-session
func (h *MembershipHandler) CreateCheckoutSession(c *gin.Context) {
	uid := c.GetString(httpez.CtxUserID)
	if uid == "" {
		redirectWithFlash(c, http.StatusSeeOther, h.offerURL, FlashError, "Please log in to purchase a membership.")
		return
	}
	var in checkoutForm
	if err := c.ShouldBind(&in); err != nil {
		redirectWithFlash(c, http.StatusSeeOther, h.offerURL, FlashError, "Invalid membership selection.")
		return
	}

	url, err := h.svc.StartCheckout(c.Request.Context(), uid, in.MembershipType, in.PriceID)
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, url)
	case errors.Is(err, domain.ErrUnknownMembershipType):
		redirectWithFlash(c, http.StatusSeeOther, h.offerURL, FlashError, "Invalid membership type.")
	case errors.Is(err, membership.ErrPriceNotConfigured):
		redirectWithFlash(c, http.StatusSeeOther, h.offerURL, FlashError, "This membership option is not available right now.")
	case errors.Is(err, membership.ErrUserNotFound):
		redirectWithFlash(c, http.StatusSeeOther, h.offerURL, FlashError, "Please log in to purchase a membership.")
	case errors.Is(err, membership.ErrProvider):
		h.log.Warn("checkout session creation failed", zap.String("user_id", uid), zap.Error(err))
		redirectWithFlash(c, http.StatusSeeOther, h.offerURL, FlashError, "Payment service is unavailable, please try again.")
	default:
		h.log.Error("checkout session creation failed", zap.String("user_id", uid), zap.Error(err))
		redirectWithFlash(c, http.StatusSeeOther, h.offerURL, FlashError, "Something went wrong, please try again.")
	}
}

// Success GET /stripe/success?session_id=...
func (h *MembershipHandler) Success(c *gin.Context) {
	uid := c.GetString(httpez.CtxUserID)
	if uid == "" {
		redirectWithFlash(c, http.StatusFound, h.offerURL, FlashError, "Please log in to complete your membership.")
		return
	}

	out, err := h.svc.Redeem(c.Request.Context(), uid, c.Query("session_id"))
	if err != nil {
		redirectWithFlash(c, http.StatusFound, h.offerURL, FlashError, h.redeemErrMessage(uid, err))
		return
	}
	switch out {
	case membership.RedeemProcessing:
		redirectWithFlash(c, http.StatusFound, h.dashboardURL, FlashInfo,
			"Your payment is processing. Your membership will activate once it clears.")
	default:
		redirectWithFlash(c, http.StatusFound, h.dashboardURL, FlashSuccess, "Your membership is active. Welcome!")
	}
}

func (h *MembershipHandler) redeemErrMessage(uid string, err error) string {
	switch {
	case errors.Is(err, membership.ErrMissingSession):
		return "Missing checkout session."
	case errors.Is(err, membership.ErrNotOwner):
		h.log.Warn("checkout session redeemed by another account", zap.String("user_id", uid))
		return "This checkout session does not belong to your account."
	case errors.Is(err, membership.ErrUserNotFound):
		return "Please log in to complete your membership."
	case errors.Is(err, membership.ErrProvider):
		return "We could not verify your payment, please try again."
	case errors.Is(err, domain.ErrUnknownMembershipType):
		return "Unknown membership option, please contact support."
	default:
		h.log.Error("redeem checkout session failed", zap.String("user_id", uid), zap.Error(err))
		return "Something went wrong, please try again."
	}
}

// MountWebhook g 上不能有按 200 中断的中间件，否则 Stripe 当作已送达不再重投
func (h *MembershipHandler) MountWebhook(g *gin.RouterGroup, limit int64) {
	g.POST("/webhook", h.Webhook(limit))
}

// MountBrowser 浏览器跳转，g 上带可选身份，未登录由 handler 自己跳转
func (h *MembershipHandler) MountBrowser(g *gin.RouterGroup) {
	g.POST("/create-checkout-session", h.CreateCheckoutSession)
	g.GET("/success", h.Success)
}
