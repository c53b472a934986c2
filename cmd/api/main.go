package main

import (
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"

	"terralumen/internal/app"
	"terralumen/internal/core/auth"
	"terralumen/internal/core/cache"
	"terralumen/internal/core/payment"
	"terralumen/internal/core/server"
	"terralumen/internal/feature/membership"
	"terralumen/internal/repo"
	"terralumen/internal/transport/http/handler"
	mdw "terralumen/internal/transport/http/middleware"
	"terralumen/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	b := app.Boot("api")
	defer b.Close()
	cfg, log := b.Cfg, b.Log

	store := repo.NewStore(b.DB)
	jwter := auth.NewJWTer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTLMin)

	// Stripe 客户端只在这里构造一次
	provider := payment.NewStripeProvider(payment.StripeOptions{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		APIBase:       cfg.Stripe.APIBase,
		Timeout:       time.Duration(cfg.Stripe.TimeoutSec) * time.Second,
		Logger:        log,
	})
	svc := membership.NewService(membership.Options{
		Store:      store,
		Provider:   provider,
		Logger:     log,
		SuccessURL: cfg.Membership.SuccessURL,
		CancelURL:  cfg.Membership.CancelURL,
		Prices:     cfg.Stripe.Prices,
	})

	authLimit := cache.NewWindowLimiter(b.Cache, "rl:auth:", cfg.Limits.PerIPPerMinute, time.Minute)
	registry := router.NewRegistry(
		handler.NewAccountHandler(handler.AccountOptions{
			Store:  store,
			DB:     b.DB,
			JWT:    jwter,
			Cookie: handler.CookieConfig{Name: cfg.JWT.CookieName, Secure: cfg.JWT.CookieSecure},
			Logger: log,
			Limit:  mdw.RateLimitPerIP(authLimit, log),
		}),
		handler.FlashHandler{},
	)

	r := router.NewAPIEngine(router.APIDeps{
		Logger:       log,
		JWT:          jwter,
		CookieName:   cfg.JWT.CookieName,
		AllowOrigins: cfg.App.AllowOrigins,
		Limits:       limitsFrom(b),
		Membership:   handler.NewMembershipHandler(svc, log, cfg.Membership.OfferURL, cfg.Membership.DashboardURL),
		Registry:     registry,
	})

	srv := server.BuildServer(
		server.Addr(cfg.App.HTTP.Host, cfg.App.HTTP.Port), r,
		time.Duration(cfg.App.HTTP.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.WriteTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.IdleTimeoutSec)*time.Second,
	)
	app.Serve(srv, log, "user api")
}

func limitsFrom(b *app.Base) router.Limits {
	l := b.Cfg.Limits
	return router.Limits{
		RequestTimeout: time.Duration(l.RequestTimeoutSec) * time.Second,
		MaxBodyBytes:   l.MaxBodyBytes,
		MaxInFlight:    l.MaxInFlight,
		GlobalRPS:      l.GlobalRPS,
		GlobalBurst:    l.GlobalBurst,
	}
}
