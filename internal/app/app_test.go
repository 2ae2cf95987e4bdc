package app

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

import (
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

import (
	"github.com/nanjiek/pixiu-score/internal/config"
	"github.com/nanjiek/pixiu-score/internal/identity"
)

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(config.LogCfg{Level: "warn", Format: "json"}, &buf)
	l.Info("hidden")
	l.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)

	buf.Reset()
	NewLogger(config.LogCfg{}, &buf).Info("plain")
	assert.True(t, strings.Contains(buf.String(), "msg=plain"))
}

func TestLimiterOptions(t *testing.T) {
	res := identity.NewResolver("")
	opts, err := LimiterOptions(config.RateLimitCfg{MaxRequests: 5, WindowSeconds: 60, KeyStrategy: "ip_path"}, res)
	require.NoError(t, err)
	assert.Equal(t, int64(5), opts.MaxRequests)

	req := httptest.NewRequest("POST", "/api/v1/compute", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	assert.Equal(t, "10.0.0.1:/api/v1/compute", opts.KeyFunc(req))

	_, err = LimiterOptions(config.RateLimitCfg{KeyStrategy: "nope"}, res)
	assert.Error(t, err)
}

func TestBuildWiresComponents(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Redis:  config.RedisCfg{Addr: mr.Addr(), Prefix: "svc"},
		Solana: config.SolanaCfg{APIKey: "k"},
	}
	cfg.ApplyDefaults()

	a, err := Build(cfg, NewLogger(config.LogCfg{Level: "error"}, &bytes.Buffer{}))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "https://mainnet.helius-rpc.com?api-key=k", a.Gateway.Endpoint())
	assert.Equal(t, int64(10), a.Limiter.Options().MaxRequests)
	assert.NoError(t, a.Repo.Ping(context.Background()))
	assert.Equal(t, "svc:score:abc", a.Repo.KeyScore("abc"))
	assert.Equal(t, 300, int(a.Store.TTL().Seconds()))
	assert.False(t, a.Resolver.TrustUserHeader)
}

func TestBuildTrustsUserHeaderOnlyWhenConfigured(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Redis:     config.RedisCfg{Addr: mr.Addr()},
		Solana:    config.SolanaCfg{APIKey: "k"},
		RateLimit: config.RateLimitCfg{UserHeader: "X-Account", TrustUserHeader: true},
	}
	cfg.ApplyDefaults()

	a, err := Build(cfg, NewLogger(config.LogCfg{Level: "error"}, &bytes.Buffer{}))
	require.NoError(t, err)
	defer a.Close()

	req := httptest.NewRequest("POST", "/api/v1/compute", nil)
	req.Header.Set("X-Account", "acct-1")
	assert.Equal(t, "user:acct-1", a.Limiter.Options().KeyFunc(req))
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	_, err := Build(cfg, NewLogger(config.LogCfg{}, &bytes.Buffer{}))
	assert.Error(t, err)
}
