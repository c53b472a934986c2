package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"terralumen/internal/core/auth"
	httpez "terralumen/internal/transport/http/ez"
	resp "terralumen/internal/transport/http/response"
)

const KeyClaims = "claims"

// tokenFrom Authorization 头优先，浏览器跳转场景只有 cookie
func tokenFrom(c *gin.Context, cookieName string) string {
	if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, "Bearer ") {
		return strings.TrimPrefix(ah, "Bearer ")
	}
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil {
			return v
		}
	}
	return ""
}

func setIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set(KeyClaims, claims)
	c.Set(httpez.CtxUserID, claims.UID)
	c.Set(httpez.CtxRole, claims.Role)
}

func AuthJWT(j *auth.JWTer, cookieName, requireRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := tokenFrom(c, cookieName)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "missing token"))
			return
		}
		claims, err := j.Parse(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "invalid token"))
			return
		}
		if requireRole != "" && claims.Role != requireRole {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalJWT 不拦截，有合法 token 就写入身份；给需要自己处理跳转的页面路由用
func OptionalJWT(j *auth.JWTer, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := tokenFrom(c, cookieName); tok != "" {
			if claims, err := j.Parse(tok); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}
