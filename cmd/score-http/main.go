package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

import (
	"github.com/nanjiek/pixiu-score/internal/api"
	"github.com/nanjiek/pixiu-score/internal/app"
	"github.com/nanjiek/pixiu-score/internal/config"
)

func main() {
	// 解析命令行参数
	confPath := flag.String("c", "configs/score.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*confPath)
	if err != nil {
		slog.Error("failed to load config", "path", *confPath, "err", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	a, err := app.Build(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	httpServer := api.NewServer(cfg.Server, a.Engine, a.Store,
		api.WithRateLimiter(a.Limiter),
		api.WithHealthCheck(a.Repo.Ping),
		api.WithLogger(logger),
		api.WithMetrics(a.Metrics),
	)

	go func() {
		logger.Info("server is running", "addr", cfg.Server.HTTPAddr, "pid", os.Getpid())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// SIGHUP 热更新限流配置，其余信号优雅退出
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for s := range sig {
		if s == syscall.SIGHUP {
			reloadRateLimit(*confPath, a, logger)
			continue
		}
		break
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "err", err)
		return
	}
	logger.Info("server exited properly")
}

func reloadRateLimit(path string, a *app.App, logger *slog.Logger) {
	next, err := config.Load(path)
	if err != nil {
		logger.Error("reload failed, keeping current rate limit", "err", err)
		return
	}
	opts, err := app.LimiterOptions(next.RateLimit, a.Resolver)
	if err != nil {
		logger.Error("reload failed, keeping current rate limit", "err", err)
		return
	}
	prev := a.Limiter.Update(opts)
	logger.Info("rate limit reloaded",
		"max", opts.MaxRequests, "prevMax", prev.MaxRequests,
		"windowSeconds", opts.WindowSeconds, "prevWindowSeconds", prev.WindowSeconds,
		"keyStrategy", next.RateLimit.KeyStrategy)
}
