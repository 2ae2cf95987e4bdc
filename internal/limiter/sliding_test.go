package limiter

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

import (
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

import (
	"github.com/nanjiek/pixiu-score/internal/repo"
)

// manualClock is advanced explicitly by the test.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestWindow(t *testing.T, opts ...Option) (*SlidingWindow, *miniredis.Miniredis, *manualClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	r := repo.NewWithClient(cli, "")
	t.Cleanup(func() { _ = r.Close() })
	clk := newManualClock()
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return NewSlidingWindow(r, opts...), mr, clk
}

func TestAdmitFivePerMinute(t *testing.T) {
	sw, mr, clk := newTestWindow(t)
	ctx := context.Background()

	for _, want := range []int64{4, 3, 2, 1, 0} {
		d := sw.Admit(ctx, "1.2.3.4", 5, time.Minute)
		require.True(t, d.Allowed, "remaining %d", want)
		assert.Equal(t, want, d.Remaining)
		assert.Equal(t, int64(5), d.Limit)
		assert.Equal(t, ReasonAllowed, d.Reason)
		assert.Equal(t, clk.Now().Add(time.Minute).UnixMilli(), d.ResetMs)
		clk.Advance(time.Second)
	}

	d := sw.Admit(ctx, "1.2.3.4", 5, time.Minute)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRateLimited, d.Reason)
	assert.Equal(t, int64(0), d.Remaining)
	// oldest entry is 5s old, so it leaves the window in 55s
	assert.Equal(t, int64(55), d.RetryAfterSec)
	assert.LessOrEqual(t, d.RetryAfterSec, int64(60))
	assert.Equal(t, clk.Now().UnixMilli()+55_000, d.ResetMs)
	assert.NoError(t, d.Err)

	assert.True(t, mr.Exists("rate_limit:1.2.3.4"))
	assert.Equal(t, time.Minute, mr.TTL("rate_limit:1.2.3.4"))
}

func TestAdmitSameInstantCountsEveryRequest(t *testing.T) {
	sw, _, _ := newTestWindow(t)
	ctx := context.Background()

	assert.True(t, sw.Admit(ctx, "k", 2, time.Minute).Allowed)
	assert.True(t, sw.Admit(ctx, "k", 2, time.Minute).Allowed)
	assert.False(t, sw.Admit(ctx, "k", 2, time.Minute).Allowed)
}

func TestAdmitWindowSlides(t *testing.T) {
	sw, _, clk := newTestWindow(t)
	ctx := context.Background()

	require.True(t, sw.Admit(ctx, "k", 1, 10*time.Second).Allowed)
	clk.Advance(5 * time.Second)
	d := sw.Admit(ctx, "k", 1, 10*time.Second)
	require.False(t, d.Allowed)
	assert.Equal(t, int64(5), d.RetryAfterSec)

	// both earlier entries (t=0 and the denied one at t=5s) must age out
	clk.Advance(10 * time.Second)
	d = sw.Admit(ctx, "k", 1, 10*time.Second)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(0), d.Remaining)
}

func TestAdmitKeysAreIndependent(t *testing.T) {
	sw, _, _ := newTestWindow(t)
	ctx := context.Background()

	require.True(t, sw.Admit(ctx, "a", 1, time.Minute).Allowed)
	assert.False(t, sw.Admit(ctx, "a", 1, time.Minute).Allowed)
	assert.True(t, sw.Admit(ctx, "b", 1, time.Minute).Allowed)
}

func TestAdmitFailsOpenWhenStoreDown(t *testing.T) {
	sw, mr, _ := newTestWindow(t)
	mr.Close()

	for i := 0; i < 3; i++ {
		d := sw.Admit(context.Background(), "k", 1, time.Minute)
		assert.True(t, d.Allowed)
		assert.Equal(t, ReasonFailOpen, d.Reason)
		assert.Error(t, d.Err)
	}
}

func TestAdmitLocalFallback(t *testing.T) {
	sw, mr, clk := newTestWindow(t, WithLocalFallback(true))
	mr.Close()
	ctx := context.Background()

	d := sw.Admit(ctx, "k", 2, time.Minute)
	require.True(t, d.Allowed)
	assert.Equal(t, ReasonLocalAllowed, d.Reason)
	assert.Equal(t, int64(1), d.Remaining)

	require.True(t, sw.Admit(ctx, "k", 2, time.Minute).Allowed)

	d = sw.Admit(ctx, "k", 2, time.Minute)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonLocalLimited, d.Reason)
	assert.Equal(t, int64(30), d.RetryAfterSec)
	assert.Error(t, d.Err)

	// one token per 30s
	clk.Advance(30 * time.Second)
	assert.True(t, sw.Admit(ctx, "k", 2, time.Minute).Allowed)
}

func TestAdmitInvalidPolicyAdmits(t *testing.T) {
	sw, mr, _ := newTestWindow(t)

	d := sw.Admit(context.Background(), "k", 0, time.Minute)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonInvalidPolicy, d.Reason)
	assert.False(t, mr.Exists("rate_limit:k"))
}

// Entries are scored by epoch ms; the member is "<unixnano>-<seq>" so two requests
// in the same instant stay distinct.
func TestWindowEntryEncoding(t *testing.T) {
	sw, mr, clk := newTestWindow(t)
	ctx := context.Background()

	sw.Admit(ctx, "k", 5, time.Minute)
	sw.Admit(ctx, "k", 5, time.Minute)

	members, err := mr.ZMembers("rate_limit:k")
	require.NoError(t, err)
	require.Len(t, members, 2)

	prefix := strconv.FormatInt(clk.Now().UnixNano(), 10) + "-"
	assert.ElementsMatch(t, []string{prefix + "1", prefix + "2"}, members)
	for _, m := range members {
		score, err := mr.ZScore("rate_limit:k", m)
		require.NoError(t, err)
		assert.Equal(t, float64(clk.Now().UnixMilli()), score)
	}
}
