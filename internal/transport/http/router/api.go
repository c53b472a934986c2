package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"terralumen/internal/core/auth"
	"terralumen/internal/transport/http/handler"
	mdw "terralumen/internal/transport/http/middleware"
)

type APIDeps struct {
	Logger       *zap.Logger
	JWT          *auth.JWTer
	CookieName   string
	AllowOrigins []string
	Limits       Limits
	Membership   *handler.MembershipHandler
	Registry     *Registry
}

// NewAPIEngine 用户端：/api/v1 下是 JSON 接口，/stripe 下是浏览器跳转和 webhook
func NewAPIEngine(d APIDeps) *gin.Engine {
	r, limited := newEngine("api", d.Logger, d.AllowOrigins, d.Limits)

	api := limited.Group("/api/v1")
	d.Registry.MountAPI(api)

	if d.Membership != nil {
		d.Membership.MountWebhook(r.Group("/stripe"), d.Limits.withDefaults().MaxBodyBytes)
		d.Membership.MountBrowser(limited.Group("/stripe", mdw.OptionalJWT(d.JWT, d.CookieName)))
	}
	return r
}
