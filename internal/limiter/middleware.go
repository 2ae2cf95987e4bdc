package limiter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/nanjiek/pixiu-score/internal/rcu"
	"github.com/nanjiek/pixiu-score/internal/types"
)

const DefaultMessage = "Too many requests, please try again later."

// Options 限流中间件配置
type Options struct {
	MaxRequests   int64
	WindowSeconds int64
	KeyFunc       func(*http.Request) string // required
	Skip          func(*http.Request) bool   // optional
	Message       string
}

func (o Options) window() time.Duration {
	return time.Duration(o.WindowSeconds) * time.Second
}

// HTTPLimiter applies a SlidingWindow to HTTP requests. The options live in an RCU
// snapshot so they can be swapped at runtime without locking the request path.
type HTTPLimiter struct {
	sw   *SlidingWindow
	opts *rcu.Snapshot[Options]
}

func NewHTTPLimiter(sw *SlidingWindow, opts Options) *HTTPLimiter {
	return &HTTPLimiter{sw: sw, opts: rcu.NewSnapshot(normalizeOptions(opts))}
}

// Middleware is a convenience for routers that only need the handler wrapper.
func Middleware(sw *SlidingWindow, opts Options) mux.MiddlewareFunc {
	return NewHTTPLimiter(sw, opts).Wrap
}

// Update replaces the active options and returns the previous ones.
// Requests already in flight keep the old options.
func (h *HTTPLimiter) Update(opts Options) Options {
	return *h.opts.Swap(normalizeOptions(opts))
}

// Options returns a copy of the active options.
func (h *HTTPLimiter) Options() Options {
	return *h.opts.Load()
}

func normalizeOptions(o Options) *Options {
	if o.Message == "" {
		o.Message = DefaultMessage
	}
	if o.KeyFunc == nil {
		o.KeyFunc = func(*http.Request) string { return "unknown" }
	}
	return &o
}

func (h *HTTPLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opts := h.opts.Load()
		if opts.Skip != nil && opts.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		d := h.sw.Admit(r.Context(), opts.KeyFunc(r), opts.MaxRequests, opts.window())
		if d.Err != nil && d.Reason != ReasonLocalAllowed && d.Reason != ReasonLocalLimited {
			// store down without a local judgement: admit silently
			next.ServeHTTP(w, r)
			return
		}

		hdr := w.Header()
		hdr.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		hdr.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		hdr.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetMs, 10))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		hdr.Set("Retry-After", strconv.FormatInt(d.RetryAfterSec, 10))
		hdr.Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(types.Envelope{
			Message: opts.Message,
			IsError: true,
			Data:    d.RetryAfterSec,
		})
	})
}
