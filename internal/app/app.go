package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

import (
	"github.com/nanjiek/pixiu-score/internal/cache"
	"github.com/nanjiek/pixiu-score/internal/config"
	"github.com/nanjiek/pixiu-score/internal/identity"
	"github.com/nanjiek/pixiu-score/internal/limiter"
	"github.com/nanjiek/pixiu-score/internal/metrics"
	"github.com/nanjiek/pixiu-score/internal/repo"
	"github.com/nanjiek/pixiu-score/internal/rpc"
	"github.com/nanjiek/pixiu-score/internal/scoring"
)

// App holds the process-scoped components, built once and passed explicitly.
type App struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Repo     *repo.RedisRepo
	Gateway  *rpc.Client
	Store    *cache.ScoreStore
	Engine   *scoring.Engine
	Limiter  *limiter.HTTPLimiter
	Resolver *identity.Resolver
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogCfg, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Build wires the store, gateway, cache, engine and limiter from cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := metrics.New()

	rdb, err := repo.NewRedis(cfg.Redis, repo.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	breaker := rpc.NoopBreaker()
	if cfg.Solana.Breaker.Enabled {
		if breaker, err = rpc.NewSentinelBreaker(cfg.Solana.Breaker); err != nil {
			_ = rdb.Close()
			return nil, err
		}
	}
	gw, err := rpc.NewClient(cfg.Solana,
		rpc.WithBreaker(breaker),
		rpc.WithLogger(logger),
		rpc.WithMetrics(m),
	)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("rpc client: %w", err)
	}

	store := cache.NewScoreStore(rdb,
		cache.WithTTL(time.Duration(cfg.Cache.TTLSeconds)*time.Second),
		cache.WithLogger(logger),
		cache.WithMetrics(m),
	)
	engine := scoring.NewEngine(gw, store,
		scoring.WithCoalescing(cfg.Scoring.Coalesce),
		scoring.WithLogger(logger),
		scoring.WithMetrics(m),
	)

	resolver := identity.NewResolver(cfg.RateLimit.UserHeader)
	resolver.TrustUserHeader = cfg.RateLimit.TrustUserHeader
	opts, err := LimiterOptions(cfg.RateLimit, resolver)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	sw := limiter.NewSlidingWindow(rdb,
		limiter.WithLocalFallback(cfg.Features.LocalFallback),
		limiter.WithLogger(logger),
		limiter.WithMetrics(m),
	)

	return &App{
		Cfg:      cfg,
		Logger:   logger,
		Metrics:  m,
		Repo:     rdb,
		Gateway:  gw,
		Store:    store,
		Engine:   engine,
		Limiter:  limiter.NewHTTPLimiter(sw, opts),
		Resolver: resolver,
	}, nil
}

// LimiterOptions maps the rateLimit section onto middleware options.
func LimiterOptions(cfg config.RateLimitCfg, resolver *identity.Resolver) (limiter.Options, error) {
	keyFn, err := resolver.KeyFunc(cfg.KeyStrategy)
	if err != nil {
		return limiter.Options{}, err
	}
	return limiter.Options{
		MaxRequests:   cfg.MaxRequests,
		WindowSeconds: cfg.WindowSeconds,
		KeyFunc:       keyFn,
		Message:       cfg.Message,
	}, nil
}

func (a *App) Close() error {
	if a.Repo == nil {
		return nil
	}
	return a.Repo.Close()
}
