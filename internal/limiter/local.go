package limiter

import (
	"math"
	"sync"
	"time"
)

import (
	"golang.org/x/time/rate"
)

import (
	"github.com/nanjiek/pixiu-score/internal/types"
)

// localLimiter is a per-process approximation of the shared window: a token bucket
// refilling maxRequests tokens per window with a burst of maxRequests.
type localLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	lim      *rate.Limiter
	max      int64
	window   time.Duration
	lastSeen time.Time
}

// idle buckets are dropped once they have been full for this many windows.
const localIdleWindows = 2

func newLocalLimiter() *localLimiter {
	return &localLimiter{buckets: make(map[string]*localBucket)}
}

func (l *localLimiter) admit(key string, maxRequests int64, window time.Duration, now time.Time) types.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok || b.max != maxRequests || b.window != window {
		every := rate.Every(window / time.Duration(maxRequests))
		b = &localBucket{
			lim:    rate.NewLimiter(every, int(maxRequests)),
			max:    maxRequests,
			window: window,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now

	d := types.Decision{Limit: maxRequests}
	r := b.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		d.Allowed = false
		d.RetryAfterSec = int64(math.Ceil(delay.Seconds()))
		d.ResetMs = now.Add(delay).UnixMilli()
		d.Reason = ReasonLocalLimited
		return d
	}
	d.Allowed = true
	d.Remaining = int64(math.Floor(b.lim.TokensAt(now)))
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	d.ResetMs = now.Add(window).UnixMilli()
	d.Reason = ReasonLocalAllowed
	return d
}

func (l *localLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > time.Duration(localIdleWindows)*b.window {
			delete(l.buckets, k)
		}
	}
}
