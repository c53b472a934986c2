// Package app 两个进程共用的启动与优雅关闭
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"terralumen/internal/core/cache"
	"terralumen/internal/core/config"
	"terralumen/internal/core/database"
	"terralumen/internal/core/logger"
	"terralumen/internal/repo"
)

type Base struct {
	Cfg   *config.Config
	Log   *zap.Logger
	DB    *gorm.DB
	Cache *cache.Cache
	close []func()
}

// Boot 加载配置、日志、数据库和（可选的）redis；失败直接 Fatal
func Boot(name string) *Base {
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.NewWithRotate(cfg.Log.Level, cfg.Log.JSON, logger.FileRotate{
		Enable:     cfg.Log.File.Enable,
		Filename:   cfg.Log.File.Filename,
		MaxSizeMB:  cfg.Log.File.MaxSizeMB,
		MaxBackups: cfg.Log.File.MaxBackups,
		MaxAgeDays: cfg.Log.File.MaxAgeDays,
		Compress:   cfg.Log.File.Compress,
	})
	log = log.With(zap.String("app", name), zap.String("env", cfg.App.Env))
	b := &Base{Cfg: cfg, Log: log}
	b.close = append(b.close, cleanup, logger.RedirectStdLog(log, zapcore.InfoLevel))

	b.DB = mustOpenDB(cfg, log)
	log.Info("database connected", zap.String("driver", cfg.DB.Driver), zap.String("dsn", database.MaskDSN(cfg.DB.DSN)))
	if cfg.DB.AutoMigrate {
		if err := repo.Migrate(b.DB); err != nil {
			log.Fatal("automigrate failed", zap.Error(err))
		}
		log.Info("automigrate done")
	}

	b.Cache = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if b.Cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := b.Cache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, cache and per-ip limit degrade", zap.Error(err))
		}
		b.close = append(b.close, func() { _ = b.Cache.Close() })
	}
	return b
}

func (b *Base) Close() {
	if sqlDB, err := b.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	for i := len(b.close) - 1; i >= 0; i-- {
		b.close[i]()
	}
}

func mustOpenDB(cfg *config.Config, l *zap.Logger) *gorm.DB {
	w, err := logger.ToStdLogger(l.Named("gorm"), zapcore.WarnLevel)
	if err != nil {
		l.Fatal("gorm logger", zap.Error(err))
	}
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		SlowThresholdMs:    cfg.DB.SlowThresholdMs,
		Writer:             w,
	})
	if err != nil {
		l.Fatal("db open", zap.Error(err))
	}
	return db
}

// Serve 异步启动，收到 SIGINT/SIGTERM 后优雅关闭
func Serve(srv *http.Server, l *zap.Logger, name string) {
	host, port, _ := net.SplitHostPort(srv.Addr)
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	base := fmt.Sprintf("http://%s:%s", host, port)
	l.Info(name+" starting", zap.String("addr", srv.Addr), zap.String("health", base+"/health"))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal(name+" start FAILED", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Warn(name+" shutdown", zap.Error(err))
	}
	l.Info(name + " stopped gracefully")
}
