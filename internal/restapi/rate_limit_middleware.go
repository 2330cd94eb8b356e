package restapi

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"minibus.schoolride.org/internal/app"
	"minibus.schoolride.org/internal/clock"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleThreshold   = 10 * time.Minute
)

type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// RateLimitMiddleware limits each caller, identified by API key or else by
// remote address, to a token bucket. Idle buckets are evicted periodically.
type RateLimitMiddleware struct {
	limiters   map[string]*rateLimitClient
	mu         sync.RWMutex
	rateLimit  rate.Limit
	burstSize  int
	exemptKeys map[string]bool
	ticker     clock.Ticker
	stopChan   chan struct{}
	stopOnce   sync.Once
	clock      clock.Clock
}

// NewRateLimitMiddleware allows ratePerInterval requests per interval with
// the same burst. A non-positive rate disables limiting.
func NewRateLimitMiddleware(ratePerInterval int, interval time.Duration, exemptKeys []string, clk clock.Clock) *RateLimitMiddleware {
	if clk == nil {
		clk = clock.RealClock{}
	}
	limit := rate.Inf
	if ratePerInterval > 0 {
		limit = rate.Every(interval / time.Duration(ratePerInterval))
	}

	exempt := make(map[string]bool)
	for _, key := range exemptKeys {
		if k := strings.TrimSpace(key); k != "" {
			exempt[k] = true
		}
	}

	rl := &RateLimitMiddleware{
		limiters:   make(map[string]*rateLimitClient),
		rateLimit:  limit,
		burstSize:  ratePerInterval,
		exemptKeys: exempt,
		ticker:     clk.NewTicker(limiterCleanupInterval),
		stopChan:   make(chan struct{}),
		clock:      clk,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return rl.rateLimitHandler
}

func (rl *RateLimitMiddleware) getLimiter(key string) *rate.Limiter {
	now := rl.clock.Now().UnixNano()

	rl.mu.RLock()
	if c, ok := rl.limiters[key]; ok {
		c.lastSeen.Store(now)
		rl.mu.RUnlock()
		return c.limiter
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if c, ok := rl.limiters[key]; ok {
		c.lastSeen.Store(now)
		return c.limiter
	}
	c := &rateLimitClient{limiter: rate.NewLimiter(rl.rateLimit, rl.burstSize)}
	c.lastSeen.Store(now)
	rl.limiters[key] = c
	return c.limiter
}

// callerKey prefers the API key; anonymous callers share a bucket per host.
func callerKey(r *http.Request) string {
	if k := app.APIKey(r); k != "" {
		return "key:" + k
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (rl *RateLimitMiddleware) rateLimitHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.rateLimit == rate.Inf || rl.exemptKeys[app.APIKey(r)] {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.getLimiter(callerKey(r)).AllowN(rl.clock.Now(), 1) {
			rl.sendRateLimitExceeded(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	retryAfter := time.Second
	if rl.rateLimit > 0 && rl.rateLimit != rate.Inf {
		retryAfter = time.Duration(float64(time.Second) / float64(rl.rateLimit))
	}
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	body := ErrorResponse{
		Error:     "rate limit exceeded, try again later",
		Kind:      "rate_limit",
		Retryable: true,
		RequestID: GetRequestID(r.Context()),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode rate limit response", "error", err)
	}
}

// cleanupOnce evicts limiters idle for longer than limiterIdleThreshold.
func (rl *RateLimitMiddleware) cleanupOnce() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for key, c := range rl.limiters {
		last := c.lastSeen.Load()
		if last == 0 {
			continue
		}
		if now.Sub(time.Unix(0, last)) > limiterIdleThreshold {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimitMiddleware) cleanup() {
	for {
		select {
		case <-rl.ticker.C():
			rl.cleanupOnce()
		case <-rl.stopChan:
			return
		}
	}
}

func (rl *RateLimitMiddleware) size() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
		rl.ticker.Stop()
	})
}
