package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"terralumen/internal/core/auth"
	mdw "terralumen/internal/transport/http/middleware"
)

type AdminDeps struct {
	Logger       *zap.Logger
	JWT          *auth.JWTer
	AllowOrigins []string
	Limits       Limits
	Registry     *Registry
}

// NewAdminEngine 管理端 /admin/v1，统一要求 admin 角色，只认 Authorization 头
func NewAdminEngine(d AdminDeps) *gin.Engine {
	r, limited := newEngine("admin", d.Logger, d.AllowOrigins, d.Limits)

	admin := limited.Group("/admin/v1")
	admin.Use(mdw.AuthJWT(d.JWT, "", auth.RoleAdmin))
	d.Registry.MountAdmin(admin)
	return r
}
