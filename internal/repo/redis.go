package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

import (
	"github.com/redis/go-redis/v9"
)

import (
	"github.com/nanjiek/pixiu-score/internal/config"
	"github.com/nanjiek/pixiu-score/internal/util"
)

// Key templates; score and rate-limit namespaces never overlap.
const (
	keyScoreTmpl     = "score:%s"
	keyRateLimitTmpl = "rate_limit:%s"
)

// ErrNotFound is returned by GetBytes when the key does not exist.
var ErrNotFound = errors.New("repo: key not found")

// WindowResult is the outcome of one sliding-window step.
type WindowResult struct {
	Count    int64 // entries inside the window before this request was added
	OldestMs int64 // score of the oldest surviving entry, -1 when none
}

// Repo interface for abstraction (easy to mock/test)
type Repo interface {
	KeyScore(address string) string
	KeyRateLimit(key string) string
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	SlidingWindow(ctx context.Context, key string, now time.Time, window time.Duration, member string) (WindowResult, error)
	Ping(ctx context.Context) error
	Close() error
}

type RedisRepo struct {
	Prefix         string
	Cli            redis.UniversalClient
	logger         *slog.Logger
	defaultTimeout time.Duration // Unified timeout config
}

// Option pattern for custom configurations
type Option func(*RedisRepo)

// WithDefaultTimeout bounds every store call that has no tighter deadline.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *RedisRepo) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *RedisRepo) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRedis connects to the shared store described by cfg and pings it.
func NewRedis(cfg config.RedisCfg, opts ...Option) (*RedisRepo, error) {
	cli, err := buildClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.OpTimeoutMs > 0 {
		// 显式传入的 Option 优先
		opts = append([]Option{WithDefaultTimeout(time.Duration(cfg.OpTimeoutMs) * time.Millisecond)}, opts...)
	}
	r := NewWithClient(cli, cfg.Prefix, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Cli.Ping(ctx).Err(); err != nil {
		r.logger.Error("redis ping failed", "err", err)
		_ = cli.Close()
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}
	return r, nil
}

// NewWithClient wraps an existing client; used by tests and tools.
func NewWithClient(cli redis.UniversalClient, prefix string, opts ...Option) *RedisRepo {
	r := &RedisRepo{
		Prefix:         strings.TrimSuffix(prefix, ":"),
		Cli:            cli,
		logger:         slog.Default(),
		defaultTimeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// withTimeout helper to reduce repetition
func (r *RedisRepo) withTimeout(ctx context.Context, opTimeout time.Duration) (context.Context, context.CancelFunc) {
	if opTimeout == 0 {
		opTimeout = r.defaultTimeout
	}
	return context.WithTimeout(ctx, opTimeout)
}

func (r *RedisRepo) prefixed(key string) string {
	if r.Prefix == "" {
		return key
	}
	return r.Prefix + ":" + key
}

func (r *RedisRepo) KeyScore(address string) string {
	return r.prefixed(fmt.Sprintf(keyScoreTmpl, address))
}

func (r *RedisRepo) KeyRateLimit(key string) string {
	return r.prefixed(fmt.Sprintf(keyRateLimitTmpl, key))
}

// GetBytes returns ErrNotFound on a miss.
func (r *RedisRepo) GetBytes(parentCtx context.Context, key string) ([]byte, error) {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	b, err := r.Cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s failed: %w", key, err)
	}
	return b, nil
}

func (r *RedisRepo) SetBytes(parentCtx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	if err := r.Cli.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("set %s failed: %w", key, err)
	}
	return nil
}

func (r *RedisRepo) Del(parentCtx context.Context, key string) (int64, error) {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	n, err := r.Cli.Del(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("del %s failed: %w", key, err)
	}
	return n, nil
}

func (r *RedisRepo) Exists(parentCtx context.Context, key string) (bool, error) {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	n, err := r.Cli.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s failed: %w", key, err)
	}
	return n > 0, nil
}

// SlidingWindow purges expired entries, counts, inserts member at now and refreshes the
// key expiry in a single script call, so concurrent callers never see a stale count.
func (r *RedisRepo) SlidingWindow(parentCtx context.Context, key string, now time.Time, window time.Duration, member string) (WindowResult, error) {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()

	windowMs := window.Milliseconds()
	ttlSec := int64(window / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}
	res, err := ScriptSliding.Run(ctx, r.Cli, []string{key}, now.UnixMilli(), windowMs, member, ttlSec).Result()
	if err != nil {
		return WindowResult{}, fmt.Errorf("sliding window script failed for key %s: %w", key, err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return WindowResult{}, fmt.Errorf("sliding window script returned %T", res)
	}
	return WindowResult{
		Count:    util.ToInt64(vals[0]),
		OldestMs: util.ToInt64(vals[1]),
	}, nil
}

func (r *RedisRepo) Ping(parentCtx context.Context) error {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	return r.Cli.Ping(ctx).Err()
}

// Close
func (r *RedisRepo) Close() error {
	return r.Cli.Close()
}

// Helper functions
func normalizeAddrs(cfg config.RedisCfg) []string {
	if len(cfg.Addrs) > 0 {
		return cfg.Addrs
	}
	if cfg.Addr == "" {
		return nil
	}
	parts := strings.Split(cfg.Addr, ",")
	var out []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func buildClient(cfg config.RedisCfg) (redis.UniversalClient, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if cfg.Password != "" && opts.Password == "" {
			opts.Password = cfg.Password
		}
		applyPoolOptions(opts, cfg)
		return redis.NewClient(opts), nil
	}
	addrs := normalizeAddrs(cfg)
	if len(addrs) == 0 {
		return nil, errors.New("no redis addresses configured")
	}
	return redis.NewUniversalClient(buildUniversalOptions(cfg, addrs)), nil
}

func buildUniversalOptions(cfg config.RedisCfg, addrs []string) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:           addrs,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        atLeast(cfg.PoolSize, 20),
		MinIdleConns:    atLeast(cfg.MinIdleConns, 2),
		DialTimeout:     durationOrDefault(cfg.DialTimeoutMs, 800),
		ReadTimeout:     durationOrDefault(cfg.ReadTimeoutMs, 800),
		WriteTimeout:    durationOrDefault(cfg.WriteTimeoutMs, 800),
		MaxRetries:      atLeast(cfg.MaxRetries, 2),
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSec) * time.Second,
	}
}

func applyPoolOptions(opts *redis.Options, cfg config.RedisCfg) {
	opts.PoolSize = atLeast(cfg.PoolSize, 20)
	opts.MinIdleConns = atLeast(cfg.MinIdleConns, 2)
	opts.DialTimeout = durationOrDefault(cfg.DialTimeoutMs, 800)
	opts.ReadTimeout = durationOrDefault(cfg.ReadTimeoutMs, 800)
	opts.WriteTimeout = durationOrDefault(cfg.WriteTimeoutMs, 800)
	opts.MaxRetries = atLeast(cfg.MaxRetries, 2)
}

func atLeast(val, def int) int {
	if val > def {
		return val
	}
	return def
}

func durationOrDefault(ms int, defMs int) time.Duration {
	if ms <= 0 {
		ms = defMs
	}
	return time.Duration(ms) * time.Millisecond
}
