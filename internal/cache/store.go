package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
)

import (
	"github.com/tidwall/gjson"
)

import (
	"github.com/nanjiek/pixiu-score/internal/config"
	"github.com/nanjiek/pixiu-score/internal/metrics"
	"github.com/nanjiek/pixiu-score/internal/repo"
	"github.com/nanjiek/pixiu-score/internal/types"
)

// ScoreStore 钱包评分缓存
// 所有操作都是尽力而为：存储异常只记录日志，调用方拿到安全的默认值
type ScoreStore struct {
	rdb        repo.Repo
	defaultTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*ScoreStore)

func WithLogger(l *slog.Logger) Option {
	return func(s *ScoreStore) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ScoreStore) { s.metrics = m }
}

// WithTTL 覆盖默认过期时间
func WithTTL(ttl time.Duration) Option {
	return func(s *ScoreStore) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

func NewScoreStore(r repo.Repo, opts ...Option) *ScoreStore {
	s := &ScoreStore{
		rdb:        r,
		defaultTTL: config.DefaultCacheTTLSeconds * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the expiry applied when Set is called without an explicit ttl.
func (s *ScoreStore) TTL() time.Duration {
	return s.defaultTTL
}

func normalize(address string) (string, bool) {
	a := strings.TrimSpace(address)
	return a, a != ""
}

// Get returns the cached score, or nil on a miss or any failure.
func (s *ScoreStore) Get(ctx context.Context, address string) *types.WalletScore {
	addr, ok := normalize(address)
	if !ok {
		s.logger.Warn("score cache get with empty address")
		s.metrics.CacheOp("get", "invalid")
		return nil
	}

	b, err := s.rdb.GetBytes(ctx, s.rdb.KeyScore(addr))
	if errors.Is(err, repo.ErrNotFound) {
		s.metrics.CacheOp("get", "miss")
		return nil
	}
	if err != nil {
		s.logger.Error("score cache get failed", "address", addr, "err", err)
		s.metrics.CacheOp("get", "error")
		return nil
	}

	score, ok := decode(b)
	if !ok {
		s.logger.Warn("score cache payload malformed, treating as miss", "address", addr)
		s.metrics.CacheOp("get", "malformed")
		return nil
	}
	s.metrics.CacheOp("get", "hit")
	return score
}

// GetFinalScore is Get narrowed to the composite score.
func (s *ScoreStore) GetFinalScore(ctx context.Context, address string) (int, bool) {
	score := s.Get(ctx, address)
	if score == nil {
		return 0, false
	}
	return score.FinalScore, true
}

// Set stores score under the address. An explicit positive ttl overrides the default.
// It reports whether the write happened.
func (s *ScoreStore) Set(ctx context.Context, address string, score types.WalletScore, ttl ...time.Duration) bool {
	addr, ok := normalize(address)
	if !ok {
		s.logger.Warn("score cache set with empty address")
		s.metrics.CacheOp("set", "invalid")
		return false
	}
	if !score.Valid() {
		s.logger.Warn("score cache refusing out-of-range payload", "address", addr, "score", score)
		s.metrics.CacheOp("set", "invalid")
		return false
	}

	expiry := s.defaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		expiry = ttl[0]
	}

	b, err := json.Marshal(score)
	if err != nil {
		s.logger.Error("score cache encode failed", "address", addr, "err", err)
		s.metrics.CacheOp("set", "error")
		return false
	}
	if err := s.rdb.SetBytes(ctx, s.rdb.KeyScore(addr), b, expiry); err != nil {
		s.logger.Error("score cache set failed", "address", addr, "err", err)
		s.metrics.CacheOp("set", "error")
		return false
	}
	s.metrics.CacheOp("set", "ok")
	return true
}

// Delete reports whether an entry was removed.
func (s *ScoreStore) Delete(ctx context.Context, address string) bool {
	addr, ok := normalize(address)
	if !ok {
		s.logger.Warn("score cache delete with empty address")
		s.metrics.CacheOp("delete", "invalid")
		return false
	}
	n, err := s.rdb.Del(ctx, s.rdb.KeyScore(addr))
	if err != nil {
		s.logger.Error("score cache delete failed", "address", addr, "err", err)
		s.metrics.CacheOp("delete", "error")
		return false
	}
	if n == 0 {
		s.metrics.CacheOp("delete", "miss")
		return false
	}
	s.metrics.CacheOp("delete", "ok")
	return true
}

func (s *ScoreStore) Exists(ctx context.Context, address string) bool {
	addr, ok := normalize(address)
	if !ok {
		s.metrics.CacheOp("exists", "invalid")
		return false
	}
	found, err := s.rdb.Exists(ctx, s.rdb.KeyScore(addr))
	if err != nil {
		s.logger.Error("score cache exists failed", "address", addr, "err", err)
		s.metrics.CacheOp("exists", "error")
		return false
	}
	if found {
		s.metrics.CacheOp("exists", "hit")
	} else {
		s.metrics.CacheOp("exists", "miss")
	}
	return found
}

// decode 要求 final_score 为数字，否则视为未命中
func decode(b []byte) (*types.WalletScore, bool) {
	if !gjson.ValidBytes(b) {
		return nil, false
	}
	if gjson.GetBytes(b, "final_score").Type != gjson.Number {
		return nil, false
	}
	var score types.WalletScore
	if err := json.Unmarshal(b, &score); err != nil {
		return nil, false
	}
	return &score, true
}
