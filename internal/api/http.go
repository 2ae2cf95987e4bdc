package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

import (
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

import (
	"github.com/nanjiek/pixiu-score/internal/config"
	"github.com/nanjiek/pixiu-score/internal/limiter"
	"github.com/nanjiek/pixiu-score/internal/metrics"
	"github.com/nanjiek/pixiu-score/internal/scoring"
	"github.com/nanjiek/pixiu-score/internal/types"
)

const maxRequestBody = 1 << 16

// Scorer computes a wallet score; *scoring.Engine satisfies it.
type Scorer interface {
	ComputeScore(ctx context.Context, address string) (types.WalletScore, error)
}

// ScoreStore is the cache surface exposed over HTTP; *cache.ScoreStore satisfies it.
type ScoreStore interface {
	Get(ctx context.Context, address string) *types.WalletScore
	Delete(ctx context.Context, address string) bool
}

type Server struct {
	cfg     config.ServerCfg
	scorer  Scorer
	store   ScoreStore
	limiter *limiter.HTTPLimiter
	health  func(ctx context.Context) error
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	srv     *http.Server
}

type Option func(*Server)

// WithRateLimiter guards the compute route.
func WithRateLimiter(l *limiter.HTTPLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithHealthCheck adds a store probe to /api/health.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func NewServer(cfg config.ServerCfg, scorer Scorer, store ScoreStore, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		scorer: scorer,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes 注册到根路由；子路由不会触发根路由的 405 处理
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/health", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/api/v1/compute", s.rateLimited(http.HandlerFunc(s.computeHandler))).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/score/{address}", s.getScoreHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/score/{address}", s.deleteScoreHandler).Methods(http.MethodDelete)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
}

// Handler builds the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestContext, s.instrument)
	s.RegisterRoutes(r)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		errResp(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		errResp(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
	})
	return c.Handler(r)
}

func (s *Server) ListenAndServe() error {
	s.srv = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Wrap(next)
}

// ---------------- Handlers ----------------

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			// store outages degrade features but do not take the service down
			s.logger.Warn("health probe failed", "err", err)
			resp.Store = "down"
		} else {
			resp.Store = "ok"
		}
	}
	okResp(w, "Health check successful", resp)
}

func (s *Server) computeHandler(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addr, err := validateAddress(req.WalletAddress)
	if err != nil {
		errResp(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	score, err := s.scorer.ComputeScore(r.Context(), addr)
	if err != nil {
		var wse *types.WalletScoreError
		if !errors.As(err, &wse) {
			wse = types.NewWalletScoreError(err.Error())
		}
		s.logger.Error("compute score failed", "address", addr, "err", err, "request_id", RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, types.Envelope{
			Message: wse.Message,
			IsError: true,
			Data:    ComputeResponse{WalletAddress: addr, Score: wse},
		})
		return
	}

	okResp(w, "Score computed successfully", ComputeResponse{
		WalletAddress: addr,
		Score:         score,
		Rating:        scoring.Rating(score.FinalScore),
	})
}

func (s *Server) getScoreHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := validateAddress(mux.Vars(r)["address"])
	if err != nil {
		errResp(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	score := s.store.Get(r.Context(), addr)
	if score == nil {
		errResp(w, http.StatusNotFound, "No cached score for this wallet address")
		return
	}
	okResp(w, "Cached score found", ComputeResponse{
		WalletAddress: addr,
		Score:         *score,
		Rating:        scoring.Rating(score.FinalScore),
	})
}

func (s *Server) deleteScoreHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := validateAddress(mux.Vars(r)["address"])
	if err != nil {
		errResp(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	deleted := s.store.Delete(r.Context(), addr)
	msg := "Cached score removed"
	if !deleted {
		msg = "No cached score for this wallet address"
	}
	s.logger.Info("cached score purge", "address", addr, "deleted", deleted)
	okResp(w, msg, DeleteResponse{WalletAddress: addr, Deleted: deleted})
}
