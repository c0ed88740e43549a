package archive

import (
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// RateLimiters keeps a limiter per remote host, so that granule
// queries and downloads stay inside the archives' request budgets.
type RateLimiters struct {
	RPS, Burst int
	perHost    map[string]*rate.Limiter
	mx         sync.Mutex
}

func (limiters *RateLimiters) limiterFor(host string) *rate.Limiter {
	limiters.mx.Lock()
	defer limiters.mx.Unlock()

	if limiters.perHost == nil {
		limiters.perHost = map[string]*rate.Limiter{}
	}
	if _, ok := limiters.perHost[host]; !ok {
		rl := rate.NewLimiter(rate.Limit(limiters.RPS), limiters.Burst)
		limiters.perHost[host] = rl
	}
	return limiters.perHost[host]
}

// RoundTripper returns a rate-limited RoundTripper for a particular
// host. We expect to do a number of requests to a particular host at
// a time.
func (limiters *RateLimiters) RoundTripper(rt http.RoundTripper, host string) http.RoundTripper {
	return &RoundTripRateLimiter{
		rl: limiters.limiterFor(host),
		tx: rt,
	}
}

// PerHostRoundTripper limits each request against the budget of the
// host it is addressed to. Download links point at whichever host the
// archive chooses, so the host is not known until request time.
func (limiters *RateLimiters) PerHostRoundTripper(rt http.RoundTripper) http.RoundTripper {
	return &perHostRateLimiter{limiters: limiters, tx: rt}
}

type RoundTripRateLimiter struct {
	rl *rate.Limiter
	tx http.RoundTripper
}

func (t *RoundTripRateLimiter) RoundTrip(r *http.Request) (*http.Response, error) {
	// Wait errors out if the request cannot be processed within
	// the deadline. This is preemptive, instead of waiting the
	// entire duration.
	if err := t.rl.Wait(r.Context()); err != nil {
		return nil, errors.Wrap(err, "rate limited")
	}
	return t.tx.RoundTrip(r)
}

type perHostRateLimiter struct {
	limiters *RateLimiters
	tx       http.RoundTripper
}

func (t *perHostRateLimiter) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.limiters.limiterFor(r.URL.Host).Wait(r.Context()); err != nil {
		return nil, errors.Wrap(err, "rate limited")
	}
	return t.tx.RoundTrip(r)
}
