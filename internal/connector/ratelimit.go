package connector

import "golang.org/x/time/rate"

// NewRESTLimiter builds a token-bucket limiter for a connector's REST calls
// (discovery and, for poll-based venues, book refreshes), mirroring the
// teacher's per-reader cfg.Reader.RateLimit limiter (requests_per_second,
// burst_size) that gated every REST fetch loop.
func NewRESTLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
