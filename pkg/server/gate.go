package server

import (
	"time"

	"golang.org/x/time/rate"
)

// Gate is the per-connection admission control. Decoding happens before
// the gate so malformed input is answered first; a refused unit is never
// dispatched and costs no token.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate builds a token bucket refilling at perSecond with the given
// burst capacity
func NewGate(perSecond float64, burst int) *Gate {
	return &Gate{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Admit tries to take one token. On refusal it reports how long until
// capacity is next available; the reservation is cancelled so a refused
// unit consumes nothing.
func (g *Gate) Admit() (retryIn time.Duration, ok bool) {
	r := g.limiter.Reserve()
	if !r.OK() {
		return time.Second, false
	}

	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
		return delay, false
	}

	return 0, true
}
