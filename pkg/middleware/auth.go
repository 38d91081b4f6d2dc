// Package middleware provides HTTP middleware for the drsplan API.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/drsolutions/drsplan/pkg/auth"
	"github.com/drsolutions/drsplan/pkg/logging"
)

// AuthMiddleware requires a valid bearer token on every request it guards
type AuthMiddleware struct {
	validator   auth.TokenValidator
	rateLimiter *RateLimiter
	public      map[string]bool
}

// NewAuthMiddleware creates bearer token middleware. Requests to publicPaths skip
// authentication.
func NewAuthMiddleware(validator auth.TokenValidator, publicPaths ...string) *AuthMiddleware {
	public := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = true
	}
	return &AuthMiddleware{
		validator:   validator,
		rateLimiter: NewRateLimiter(100, time.Minute), // 100 failed attempts per minute
		public:      public,
	}
}

// Authenticate is middleware that authenticates requests
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication for CORS preflight and public endpoints
		if r.Method == http.MethodOptions || m.public[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := clientAddr(r)
		if m.rateLimiter.IsLimited(clientIP) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "unsupported authentication method")
			return
		}

		subject, err := m.validator.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			m.rateLimiter.Record(clientIP)
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}

		ctx := logging.ContextWithSubject(r.Context(), subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientAddr strips the port from the remote address
func clientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}

// RateLimiter counts failed attempts per client within a sliding window
type RateLimiter struct {
	attempts   map[string][]time.Time
	limit      int
	window     time.Duration
	mu         sync.Mutex
	cleanupInt time.Duration
	lastClean  time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:   make(map[string][]time.Time),
		limit:      limit,
		window:     window,
		cleanupInt: time.Minute * 5,
		lastClean:  time.Now(),
	}
}

// IsLimited reports whether a client reached the limit within the window
func (r *RateLimiter) IsLimited(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastClean) > r.cleanupInt {
		r.cleanup()
		r.lastClean = time.Now()
	}

	attempts := r.attempts[clientID]
	if len(attempts) == 0 {
		return false
	}

	cutoff := time.Now().Add(-r.window)
	count := 0
	for _, t := range attempts {
		if t.After(cutoff) {
			count++
		}
	}
	return count >= r.limit
}

// Record records a failed attempt
func (r *RateLimiter) Record(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts[clientID] = append(r.attempts[clientID], time.Now())
}

// cleanup removes old entries
func (r *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-r.window)
	for clientID, attempts := range r.attempts {
		var valid []time.Time
		for _, t := range attempts {
			if t.After(cutoff) {
				valid = append(valid, t)
			}
		}
		if len(valid) > 0 {
			r.attempts[clientID] = valid
		} else {
			delete(r.attempts, clientID)
		}
	}
}
