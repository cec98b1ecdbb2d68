package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"hvgateway/internal/auth"
	"hvgateway/internal/logger"
	"hvgateway/internal/model"
)

type userKey struct{}

func userFromContext(r *http.Request) *model.User {
	u, _ := r.Context().Value(userKey{}).(*model.User)
	return u
}

// requireAuth enforces the shared auth guard ahead of
// handle: missing/invalid/expired token or an unknown user subject yields
// 401 before handle ever runs. Resolved user is attached to the request
// context for handlers that need it.
func requireAuth(d *Deps, handle httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		user, err := auth.Verify(r, d.Cfg.JWTSecret, d.Users)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, user)
		handle(w, r.WithContext(ctx), ps)
	}
}

// requireAdmin is requireAuth plus the admin-only role check.
func requireAdmin(d *Deps, handle httprouter.Handle) httprouter.Handle {
	return requireAuth(d, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		user := userFromContext(r)
		if err := auth.RequireRole(user, model.RoleAdmin); err != nil {
			writeError(w, r, err)
			return
		}
		handle(w, r, ps)
	})
}

// withCORS applies CORS headers against the configured
// CORS_ALLOWED_ORIGINS set.
func withCORS(d *Deps, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(d.Cfg.CORSAllowedOrigins))
	for _, o := range d.Cfg.CORSAllowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		}
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loginLimiter rate-limits POST /auth/login and /auth/register per IP with
// a token bucket refilled at Config.RateLimitLoginPerMin.
type loginLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	perMin  int
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

func newLoginLimiter(perMin int) *loginLimiter {
	return &loginLimiter{buckets: make(map[string]*bucket), perMin: perMin}
}

func (l *loginLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.perMin), lastRefill: time.Now()}
		l.buckets[key] = b
	}

	ratePerSec := float64(l.perMin) / 60.0
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = minFloat(float64(l.perMin), b.tokens+elapsed*ratePerSec)
	b.lastRefill = now

	if b.tokens < 1.0 {
		return false
	}
	b.tokens -= 1.0
	return true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

var rateLimiters sync.Map // *Deps -> *loginLimiter, one limiter per router instance

func rateLimited(d *Deps, handle httprouter.Handle) httprouter.Handle {
	limiter, _ := rateLimiters.LoadOrStore(d, newLoginLimiter(d.Cfg.RateLimitLoginPerMin))
	l := limiter.(*loginLimiter)

	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ip := clientIP(r)
		if !l.allow(ip) {
			logger.Get().Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "10")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		handle(w, r, ps)
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xr := r.Header.Get("X-Real-IP"); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
