package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"terralumen/internal/core/server"
	mdw "terralumen/internal/transport/http/middleware"
)

type Limits struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	MaxInFlight    int64
	GlobalRPS      float64
	GlobalBurst    int
}

func (l Limits) withDefaults() Limits {
	if l.RequestTimeout <= 0 {
		l.RequestTimeout = 15 * time.Second
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = 1 << 20
	}
	if l.MaxInFlight <= 0 {
		l.MaxInFlight = 256
	}
	if l.GlobalRPS <= 0 {
		l.GlobalRPS = 200
	}
	if l.GlobalBurst <= 0 {
		l.GlobalBurst = 400
	}
	return l
}

// newEngine 两个进程共用的中间件栈和探活/指标路由。
// 限流、并发、超时中间件按 envelope 约定回 200，只挂在返回的 limited 组上；
// Stripe webhook 要靠真实状态码重投，挂在 engine 上不经过它们
func newEngine(name string, l *zap.Logger, allowOrigins []string, lim Limits) (*gin.Engine, *gin.RouterGroup) {
	lim = lim.withDefaults()
	r := server.NewRouter(l, allowOrigins)
	r.Use(
		mdw.RequestID(),
		mdw.Metrics(name),
		mdw.AccessLog(l, "/health", "/metrics"),
	)
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := r.Group("",
		mdw.RateLimit(rate.Limit(lim.GlobalRPS), lim.GlobalBurst),
		mdw.ConcurrencyLimit(lim.MaxInFlight),
		mdw.MaxBodyBytes(lim.MaxBodyBytes),
		mdw.Timeout(lim.RequestTimeout),
	)
	return r, limited
}
