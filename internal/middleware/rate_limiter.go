package middleware

import (
	"net/http"
	"sync"
	"time"

	"blendcloud/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ── Per-IP token buckets ──────────────────────────────────────────────────────

const purgeInterval = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter keeps one token bucket per client IP. Idle buckets are purged
// lazily on access so no background goroutine is needed.
type ipLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastPurge time.Time
	now       func() time.Time
}

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastPurge) > purgeInterval {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > purgeInterval {
				delete(l.visitors, k)
			}
		}
		l.lastPurge = now
	}
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (l *ipLimiter) handler(msg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			zerolog.Ctx(c.Request.Context()).Warn().Str("ip", c.ClientIP()).Msg("rate limit excedido")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New(apierror.CodeRateLimited, msg))
			return
		}
		c.Next()
	}
}

// ── Login rate limiter ────────────────────────────────────────────────────────

// LoginRateLimiter allows 20 login attempts per minute per IP.
func LoginRateLimiter() gin.HandlerFunc {
	return newIPLimiter(rate.Every(3*time.Second), 20).
		handler("Demasiados intentos de login. Intente en 1 minuto.")
}

// ── General API rate limiter ──────────────────────────────────────────────────

// RateLimiter allows rps sustained requests per second per IP with a burst of
// twice that.
func RateLimiter(rps int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return newIPLimiter(rate.Limit(rps), 2*rps).
		handler("Demasiadas solicitudes. Intente nuevamente en un momento.")
}
