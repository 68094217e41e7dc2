package pathsolver

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedSolver wraps a PairSolver external ray-tracing engine with a
// token-bucket rate limiter (spec.md §6.1: "potentially GPU", a slow,
// bounded collaborator). It should wrap rtSolver only, never the FSPL
// fallback: the fallback is a cheap closed-form computation and gains
// nothing from being throttled.
type RateLimitedSolver struct {
	inner   PairSolver
	limiter *rate.Limiter
	ctx     context.Context
}

// NewRateLimitedSolver wraps inner with a limiter allowing ratePerSecond
// steady-state calls and burst queued bursts. ctx bounds how long a
// caller will wait for a token before giving up; a cancelled or expired
// ctx surfaces as an error from ComputePair/ComputePaths rather than
// blocking forever.
func NewRateLimitedSolver(inner PairSolver, ratePerSecond float64, burst int, ctx context.Context) *RateLimitedSolver {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RateLimitedSolver{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		ctx:     ctx,
	}
}

func (r *RateLimitedSolver) Name() string { return r.inner.Name() }

func (r *RateLimitedSolver) LoadScene(sceneRef string, freqHz, bwHz float64) error {
	return r.inner.LoadScene(sceneRef, freqHz, bwHz)
}

func (r *RateLimitedSolver) ClearDevices() { r.inner.ClearDevices() }

func (r *RateLimitedSolver) AddTransmitter(d Device) error { return r.inner.AddTransmitter(d) }

func (r *RateLimitedSolver) AddReceiver(d Device) error { return r.inner.AddReceiver(d) }

func (r *RateLimitedSolver) GetPathDetails() (PathDetails, error) { return r.inner.GetPathDetails() }

func (r *RateLimitedSolver) ComputePaths() (PathResult, error) {
	if err := r.limiter.Wait(r.ctx); err != nil {
		return PathResult{}, err
	}
	return r.inner.ComputePaths()
}

func (r *RateLimitedSolver) ComputePair(tx, rx Device, sceneRef string, freqHz, bwHz float64) (PathResult, error) {
	if err := r.limiter.Wait(r.ctx); err != nil {
		return PathResult{}, err
	}
	return r.inner.ComputePair(tx, rx, sceneRef, freqHz, bwHz)
}
