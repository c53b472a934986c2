package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"terralumen/internal/core/payment"
)

const defaultWebhookBodyLimit = 1 << 20

// Webhook POST /stripe/webhook，用真实状态码：4xx 不重投，5xx 让 Stripe 重投
func (h *MembershipHandler) Webhook(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		limit = defaultWebhookBodyLimit
	}
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
		if err != nil {
			h.log.Warn("webhook body unreadable", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		result, err := h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"received": true, "status": result})
		case errors.Is(err, payment.ErrInvalidSignature):
			h.log.Warn("webhook signature rejected", zap.String("ip", c.ClientIP()), zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		case errors.Is(err, payment.ErrMalformedPayload):
			h.log.Warn("webhook payload rejected", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		case errors.Is(err, payment.ErrNotConfigured):
			h.log.Error("webhook secret not configured")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook not configured"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		}
	}
}
