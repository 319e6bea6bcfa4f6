package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kredensia/kredensia/pkg/httputil"
)

// LoginLimiterConfig bounds credential-guessing attempts per client address.
type LoginLimiterConfig struct {
	// AttemptsPerWindow is the max attempts allowed in the window.
	AttemptsPerWindow int
	// WindowDuration is the refill window.
	WindowDuration time.Duration
	// BurstSize allows short bursts above the steady rate.
	BurstSize int
}

// DefaultLoginLimiterConfig suits interactive login traffic.
func DefaultLoginLimiterConfig() *LoginLimiterConfig {
	return &LoginLimiterConfig{
		AttemptsPerWindow: 10,
		WindowDuration:    time.Minute,
		BurstSize:         5,
	}
}

// LoginLimiter is a per-address token bucket for the unauthenticated auth
// endpoints. Buckets live in process memory; a multi-instance deployment
// limits per instance, which is acceptable for brute-force damping.
type LoginLimiter struct {
	config  *LoginLimiterConfig
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewLoginLimiter creates a limiter. A nil config uses the defaults.
func NewLoginLimiter(config *LoginLimiterConfig) *LoginLimiter {
	if config == nil {
		config = DefaultLoginLimiterConfig()
	}
	return &LoginLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether another attempt from the key is within the limit.
func (l *LoginLimiter) Allow(key string) bool {
	max := float64(l.config.AttemptsPerWindow + l.config.BurstSize)
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: max, lastUpdate: now}
		l.buckets[key] = b
	}

	refill := now.Sub(b.lastUpdate).Seconds() *
		float64(l.config.AttemptsPerWindow) / l.config.WindowDuration.Seconds()
	b.tokens += refill
	if b.tokens > max {
		b.tokens = max
	}
	b.lastUpdate = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// cleanup drops buckets idle long enough to be fully refilled.
func (l *LoginLimiter) cleanup() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.Sub(b.lastUpdate) > 2*l.config.WindowDuration {
			delete(l.buckets, key)
		}
	}
}

// StartCleanup evicts idle buckets periodically until the context ends.
func (l *LoginLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Handler gates a handler behind the per-address limit with 429 on excess.
func (l *LoginLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "too many attempts, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the originating address, trusting the first
// X-Forwarded-For hop when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
