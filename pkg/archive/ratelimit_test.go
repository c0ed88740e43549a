package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	limiters := &RateLimiters{RPS: 10, Burst: 1}
	client := &http.Client{Transport: limiters.PerHostRoundTripper(http.DefaultTransport)}

	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := client.Get(server.URL)
		assert.NoError(t, err)
		resp.Body.Close()
	}
	// with a burst of 1 at 10 rps, three requests take at least 200ms
	assert.True(t, time.Since(start) >= 200*time.Millisecond,
		"requests were not spaced out")
}

func TestRateLimiterHonoursDeadline(t *testing.T) {
	limiters := &RateLimiters{RPS: 1, Burst: 1}
	rt := limiters.RoundTripper(http.DefaultTransport, "archive.example.com")

	// drain the burst allowance
	_ = limiters.limiterFor("archive.example.com").Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	req, err := http.NewRequest("GET", "https://archive.example.com/", nil)
	assert.NoError(t, err)
	_, err = rt.RoundTrip(req.WithContext(ctx))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRateLimitersArePerHost(t *testing.T) {
	limiters := &RateLimiters{RPS: 1, Burst: 1}
	a := limiters.limiterFor("archive.example.com")
	b := limiters.limiterFor("cmr.example.com")
	assert.True(t, a != b, "hosts must have independent budgets")
	assert.True(t, a == limiters.limiterFor("archive.example.com"), "budget for a host must be stable")
}
