// SPDX-License-Identifier: MIT

package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/httprate"
	"golang.org/x/time/rate"
)

const rateLimitBody = `{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed in the window.
	RequestLimit int
	// WindowSize is the time window for rate limiting.
	WindowSize time.Duration
	// KeyFunc extracts the rate limit key from the request. Nil means the
	// client IP.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit creates a sliding-window rate limiter using httprate.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			tooMany(w, cfg.WindowSize)
		}),
	)
}

// APIRateLimit limits every client to perMinute requests per minute.
func APIRateLimit(perMinute int) func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: perMinute,
		WindowSize:   time.Minute,
	})
}

// KeyLimiter throttles bursts of remote-control key presses per client with
// a token bucket. Clients idle for longer than the sweep interval are
// forgotten.
type KeyLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*keyClient
	swept   time.Time
	now     func() time.Time
}

type keyClient struct {
	limiter *rate.Limiter
	seen    time.Time
}

const keySweepInterval = 5 * time.Minute

// NewKeyLimiter allows perSecond presses per client with the given burst.
func NewKeyLimiter(perSecond float64, burst int) *KeyLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*keyClient),
		now:     time.Now,
	}
}

// Allow reports whether the client may press another key now.
func (k *KeyLimiter) Allow(client string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if now.Sub(k.swept) > keySweepInterval {
		for id, c := range k.clients {
			if now.Sub(c.seen) > keySweepInterval {
				delete(k.clients, id)
			}
		}
		k.swept = now
	}

	c, ok := k.clients[client]
	if !ok {
		c = &keyClient{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.clients[client] = c
	}
	c.seen = now
	return c.limiter.AllowN(now, 1)
}

// Handler rejects requests from clients over their key budget.
func (k *KeyLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !k.Allow(clientIP(r)) {
			tooMany(w, time.Second)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func tooMany(w http.ResponseWriter, retry time.Duration) {
	secs := int(retry.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(rateLimitBody))
}
