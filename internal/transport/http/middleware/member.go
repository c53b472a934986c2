package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"terralumen/internal/domain"
	httpez "terralumen/internal/transport/http/ez"
	resp "terralumen/internal/transport/http/response"
)

// RequireActiveMember 每次都回库读状态，不信任 token 或缓存
func RequireActiveMember(users domain.UserRepository, l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(httpez.CtxUserID)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthorized"))
			return
		}
		u, err := users.FindByID(c.Request.Context(), uid)
		if err != nil {
			l.Error("load member failed", zap.String("user_id", uid), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeServerError, ""))
			return
		}
		if u == nil || !u.IsActiveMember() {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeForbidden, "active membership required"))
			return
		}
		c.Set(KeyMember, u)
		c.Next()
	}
}

const KeyMember = "member"
