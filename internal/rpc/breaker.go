package rpc

import (
	"fmt"
)

import (
	sentinel "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/base"
	"github.com/alibaba/sentinel-golang/core/circuitbreaker"
)

import (
	"github.com/nanjiek/pixiu-score/internal/config"
)

// Breaker guards a logical upstream call.
type Breaker interface {
	Run(resource string, fn func() error) error
}

type noopBreaker struct{}

func (noopBreaker) Run(_ string, fn func() error) error { return fn() }

// NoopBreaker never trips.
func NoopBreaker() Breaker { return noopBreaker{} }

type sentinelBreaker struct{}

func resourceName(m Method) string {
	return "solana:" + string(m)
}

// NewSentinelBreaker initialises sentinel and loads an error-ratio rule per RPC method.
func NewSentinelBreaker(cfg config.BreakerCfg) (Breaker, error) {
	if err := sentinel.InitDefault(); err != nil {
		return nil, fmt.Errorf("sentinel init failed: %w", err)
	}

	ratio := cfg.ErrorRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	minReq := cfg.MinRequestAmount
	if minReq == 0 {
		minReq = 10
	}
	statMs := cfg.StatIntervalMs
	if statMs == 0 {
		statMs = 10000
	}
	retryMs := cfg.RetryTimeoutMs
	if retryMs == 0 {
		retryMs = 30000
	}

	var rules []*circuitbreaker.Rule
	for _, m := range []Method{MethodGetSignaturesForAddress, MethodGetAssetsByOwner} {
		rules = append(rules, &circuitbreaker.Rule{
			Resource:         resourceName(m),
			Strategy:         circuitbreaker.ErrorRatio,
			RetryTimeoutMs:   retryMs,
			MinRequestAmount: minReq,
			StatIntervalMs:   statMs,
			Threshold:        ratio,
		})
	}
	if _, err := circuitbreaker.LoadRules(rules); err != nil {
		return nil, fmt.Errorf("load circuit breaker rules failed: %w", err)
	}
	return sentinelBreaker{}, nil
}

func (sentinelBreaker) Run(resource string, fn func() error) error {
	entry, blockErr := sentinel.Entry(resource, sentinel.WithTrafficType(base.Outbound))
	if blockErr != nil {
		return &Error{
			Kind:    ErrUpstreamUnavailable,
			Message: "Solana network is currently unavailable. Please try again later.",
			Err:     blockErr,
		}
	}
	defer entry.Exit()

	err := fn()
	if err != nil && upstreamFault(err) {
		sentinel.TraceError(entry, err)
	}
	return err
}
