package main

import (
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"

	"terralumen/internal/app"
	"terralumen/internal/core/auth"
	"terralumen/internal/core/server"
	"terralumen/internal/repo"
	"terralumen/internal/transport/http/handler"
	"terralumen/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	b := app.Boot("admin")
	defer b.Close()
	cfg, log := b.Cfg, b.Log

	store := repo.NewStore(b.DB)
	jwter := auth.NewJWTer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTLMin)

	registry := router.NewRegistry(
		handler.NewAdminHandler(store, b.Cache, time.Duration(cfg.Limits.StatsCacheSec)*time.Second, log),
	)
	r := router.NewAdminEngine(router.AdminDeps{
		Logger:       log,
		JWT:          jwter,
		AllowOrigins: cfg.App.AllowOrigins,
		Limits: router.Limits{
			RequestTimeout: time.Duration(cfg.Limits.RequestTimeoutSec) * time.Second,
			MaxBodyBytes:   cfg.Limits.MaxBodyBytes,
			MaxInFlight:    cfg.Limits.MaxInFlight,
		},
		Registry: registry,
	})

	// 管理端默认只监听本机
	srv := server.BuildServer(
		server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port), r,
		10*time.Second, 20*time.Second, 60*time.Second,
	)
	app.Serve(srv, log, "admin api")
}
