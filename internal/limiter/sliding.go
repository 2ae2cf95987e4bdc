package limiter

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"
)

import (
	"github.com/nanjiek/pixiu-score/internal/metrics"
	"github.com/nanjiek/pixiu-score/internal/repo"
	"github.com/nanjiek/pixiu-score/internal/types"
	"github.com/nanjiek/pixiu-score/internal/util"
)

// Decision reasons.
const (
	ReasonAllowed       = "allowed"
	ReasonRateLimited   = "rate_limited"
	ReasonFailOpen      = "fail_open"
	ReasonLocalAllowed  = "local_allowed"
	ReasonLocalLimited  = "local_rate_limited"
	ReasonInvalidPolicy = "invalid_policy"
)

// SlidingWindow enforces rate limits with a sliding window script.
type SlidingWindow struct {
	repo     repo.Repo
	now      func() time.Time
	seq      atomic.Uint64
	fallback *localLimiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*SlidingWindow)

func WithClock(now func() time.Time) Option {
	return func(s *SlidingWindow) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocalFallback 共享存储不可用时退化为进程内限流，而不是直接放行
func WithLocalFallback(on bool) Option {
	return func(s *SlidingWindow) {
		if on {
			s.fallback = newLocalLimiter()
		} else {
			s.fallback = nil
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *SlidingWindow) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SlidingWindow) { s.metrics = m }
}

func NewSlidingWindow(rdb repo.Repo, opts ...Option) *SlidingWindow {
	if rdb == nil {
		panic("limiter: nil repo")
	}
	s := &SlidingWindow{
		repo:   rdb,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit records one request for key and decides whether it fits in the window.
// Denied requests are recorded too, so a client hammering the endpoint keeps its window full.
// Store failures never deny: the request is admitted, or judged locally when the fallback is on.
func (s *SlidingWindow) Admit(ctx context.Context, key string, maxRequests int64, window time.Duration) types.Decision {
	now := s.now()
	if maxRequests <= 0 || window < time.Millisecond {
		err := errors.New("invalid rate limit policy")
		s.logger.Error("rate limiter misconfigured, admitting", "key", key, "max", maxRequests, "window", window)
		s.metrics.RateDecision(ReasonInvalidPolicy)
		return types.Decision{Allowed: true, Limit: maxRequests, Reason: ReasonInvalidPolicy, Err: err}
	}

	res, err := s.repo.SlidingWindow(ctx, s.repo.KeyRateLimit(key), now, window, s.member(now))
	if err != nil {
		return s.degrade(key, maxRequests, window, now, err)
	}

	d := types.Decision{Limit: maxRequests}
	if res.Count >= maxRequests {
		retryAfter := int64(window / time.Second)
		if res.OldestMs >= 0 {
			retryAfter = util.CeilDiv(res.OldestMs+window.Milliseconds()-now.UnixMilli(), 1000)
		}
		if retryAfter < 1 {
			retryAfter = 1
		}
		d.Allowed = false
		d.Remaining = 0
		d.RetryAfterSec = retryAfter
		d.ResetMs = now.UnixMilli() + retryAfter*1000
		d.Reason = ReasonRateLimited
	} else {
		d.Allowed = true
		d.Remaining = maxRequests - res.Count - 1
		d.ResetMs = now.Add(window).UnixMilli()
		d.Reason = ReasonAllowed
	}
	s.metrics.RateDecision(d.Reason)
	return d
}

// member must be unique per request; two requests in the same millisecond are still two entries.
func (s *SlidingWindow) member(now time.Time) string {
	return strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(s.seq.Add(1), 10)
}

func (s *SlidingWindow) degrade(key string, maxRequests int64, window time.Duration, now time.Time, cause error) types.Decision {
	if s.fallback == nil {
		s.logger.Error("rate limiter store failed, failing open", "key", key, "err", cause)
		s.metrics.RateDecision(ReasonFailOpen)
		return types.Decision{Allowed: true, Limit: maxRequests, Reason: ReasonFailOpen, Err: cause}
	}
	s.logger.Warn("rate limiter store failed, using local fallback", "key", key, "err", cause)
	d := s.fallback.admit(key, maxRequests, window, now)
	d.Err = cause
	s.metrics.RateDecision(d.Reason)
	return d
}
