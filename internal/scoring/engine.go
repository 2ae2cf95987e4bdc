package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

import (
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

import (
	"github.com/nanjiek/pixiu-score/internal/metrics"
	"github.com/nanjiek/pixiu-score/internal/rpc"
	"github.com/nanjiek/pixiu-score/internal/types"
)

// Gateway is the upstream surface the engine depends on; *rpc.Client satisfies it.
type Gateway interface {
	GetFirstTransactionSignature(ctx context.Context, address string) ([]rpc.SignatureInfo, error)
	GetTransactionsByAddress(ctx context.Context, address string) ([]rpc.SignatureInfo, error)
	GetAssets(ctx context.Context, address string) (rpc.AssetsResult, error)
}

// ScoreCache is the read-through store; *cache.ScoreStore satisfies it.
type ScoreCache interface {
	Get(ctx context.Context, address string) *types.WalletScore
	Set(ctx context.Context, address string, score types.WalletScore, ttl ...time.Duration) bool
}

// SubScore carries either a value or the reason it could not be computed.
type SubScore struct {
	Value int
	Err   error
}

// OrZero 子评分失败时降级为 0
func (s SubScore) OrZero() int {
	if s.Err != nil {
		return 0
	}
	return s.Value
}

const (
	componentTransactions = "transactions"
	componentAge          = "age"
	componentAssets       = "assets"
)

type Engine struct {
	gw       Gateway
	cache    ScoreCache
	coalesce bool
	group    singleflight.Group
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Engine)

// WithCoalescing collapses concurrent misses for one address into a single computation.
func WithCoalescing(on bool) Option {
	return func(e *Engine) { e.coalesce = on }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine wires the gateway and cache. cache may be nil.
func NewEngine(gw Gateway, cache ScoreCache, opts ...Option) *Engine {
	e := &Engine{
		gw:     gw,
		cache:  cache,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeScore returns the cached score or computes, caches and returns a fresh one.
// A non-nil error is always a *types.WalletScoreError.
func (e *Engine) ComputeScore(ctx context.Context, address string) (score types.WalletScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("score computation panicked", "address", address, "panic", r)
			e.metrics.Computation("error")
			score, err = types.WalletScore{}, types.NewWalletScoreError(fmt.Sprint(r))
		}
	}()

	addr := strings.TrimSpace(address)
	if addr == "" {
		e.metrics.Computation("error")
		return types.WalletScore{}, types.NewWalletScoreError("Please provide a valid wallet address.")
	}
	if cerr := ctx.Err(); cerr != nil {
		e.metrics.Computation("error")
		return types.WalletScore{}, types.NewWalletScoreError(cerr.Error())
	}

	if e.cache != nil {
		if cached := e.cache.Get(ctx, addr); cached != nil {
			e.metrics.Computation("cache")
			return *cached, nil
		}
	}

	if !e.coalesce {
		return e.compute(ctx, addr), nil
	}
	v, ferr, shared := e.group.Do(addr, func() (any, error) {
		return e.compute(ctx, addr), nil
	})
	if ferr != nil {
		e.metrics.Computation("error")
		return types.WalletScore{}, types.NewWalletScoreError(ferr.Error())
	}
	if shared {
		e.logger.Debug("score computation shared", "address", addr)
	}
	return v.(types.WalletScore), nil
}

// compute 并发拉取三个子评分，全部结束后再合成
// upstream calls are detached from the caller's cancellation; each attempt is bounded by the gateway.
func (e *Engine) compute(parent context.Context, addr string) types.WalletScore {
	ctx := context.WithoutCancel(parent)
	start := e.now()

	var (
		g      errgroup.Group
		tnx    SubScore
		age    SubScore
		assets SubScore
	)
	g.Go(func() error {
		tnx = guard(func() (int, error) { return e.transactionSubScore(ctx, addr) })
		return nil
	})
	g.Go(func() error {
		age = guard(func() (int, error) { return e.ageSubScore(ctx, addr, start) })
		return nil
	})
	g.Go(func() error {
		assets = guard(func() (int, error) { return e.assetSubScore(ctx, addr) })
		return nil
	})
	_ = g.Wait()

	var merr *multierror.Error
	for _, c := range []struct {
		name string
		sub  SubScore
	}{
		{componentTransactions, tnx},
		{componentAge, age},
		{componentAssets, assets},
	} {
		if c.sub.Err != nil {
			e.metrics.SubScoreFailure(c.name)
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", c.name, c.sub.Err))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		e.logger.Warn("sub-scores degraded to zero", "address", addr, "failed", merr.Len(), "err", err)
	}

	score := types.WalletScore{
		TnxScore:    tnx.OrZero(),
		AgeScore:    age.OrZero(),
		AssetsScore: assets.OrZero(),
	}
	score.FinalScore = CompositeScore(score.TnxScore, score.AgeScore, score.AssetsScore)

	if e.cache != nil {
		e.cache.Set(ctx, addr, score)
	}
	e.metrics.Computation("computed")
	e.logger.Info("score computed", "address", addr,
		"final", score.FinalScore, "tnx", score.TnxScore, "age", score.AgeScore, "assets", score.AssetsScore,
		"elapsed", e.now().Sub(start))
	return score
}

// guard turns a panic inside a sub-score into an error.
func guard(fn func() (int, error)) (s SubScore) {
	defer func() {
		if r := recover(); r != nil {
			s = SubScore{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err := fn()
	return SubScore{Value: v, Err: err}
}

func (e *Engine) transactionSubScore(ctx context.Context, addr string) (int, error) {
	sigs, err := e.gw.GetTransactionsByAddress(ctx, addr)
	if err != nil {
		return 0, err
	}
	return TransactionScore(len(sigs)), nil
}

func (e *Engine) ageSubScore(ctx context.Context, addr string, now time.Time) (int, error) {
	sigs, err := e.gw.GetFirstTransactionSignature(ctx, addr)
	if err != nil {
		return 0, err
	}
	if len(sigs) == 0 {
		return 0, nil
	}
	return AgeScore(sigs[0].BlockTime, now), nil
}

func (e *Engine) assetSubScore(ctx context.Context, addr string) (int, error) {
	res, err := e.gw.GetAssets(ctx, addr)
	if err != nil {
		return 0, err
	}
	count := res.Total
	if n := len(res.Items); n > count {
		count = n
	}
	return AssetScore(count), nil
}
