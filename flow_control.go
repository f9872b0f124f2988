package umqtt

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// FlowController throttles outbound PUBLISH packets.
// A zero rate disables throttling.
type FlowController struct {
	limiter *rate.Limiter
}

// NewFlowController creates a flow controller allowing perSecond publishes
// with the given burst. perSecond <= 0 means unlimited.
func NewFlowController(perSecond float64, burst int) *FlowController {
	return &FlowController{limiter: rate.NewLimiter(toLimit(perSecond), normalizeBurst(burst))}
}

func toLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func normalizeBurst(burst int) int {
	if burst <= 0 {
		return 1
	}
	return burst
}

// Limited reports whether a rate limit is in effect.
func (f *FlowController) Limited() bool {
	return f.limiter.Limit() != rate.Inf
}

// SetRate replaces the rate and burst.
func (f *FlowController) SetRate(perSecond float64, burst int) {
	f.limiter.SetLimit(toLimit(perSecond))
	f.limiter.SetBurst(normalizeBurst(burst))
}

// Allow reports whether a publish may go out now, consuming a token if so.
func (f *FlowController) Allow() bool {
	return f.limiter.Allow()
}

// Wait blocks until a publish may go out or ctx ends.
func (f *FlowController) Wait(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: publish rate limit: %w", ErrTimeout, err)
	}
	return nil
}
