package security

import (
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/monitoring"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// CORS echoes the Origin back only when it is whitelisted.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" && originSet[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}

		c.Next()
	}
}

// Rule allows Requests per Window for each caller. Zero Requests lets everything through.
type Rule struct {
	Requests int
	Window   time.Duration
}

func (r Rule) enabled() bool {
	return r.Requests > 0 && r.Window > 0
}

// KeyFunc names the caller a request is charged to.
type KeyFunc func(c *gin.Context) string

func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// visitor pairs a limiter with its last use so idle entries can be swept.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a token bucket per caller for one route group. Its rule can be swapped at runtime.
type Limiter struct {
	name string
	key  KeyFunc

	mu       sync.Mutex
	rule     Rule
	visitors map[string]*visitor

	stop     chan struct{}
	stopOnce sync.Once
}

func NewLimiter(name string, rule Rule, key KeyFunc) *Limiter {
	if key == nil {
		key = ClientIP
	}
	l := &Limiter{
		name:     name,
		key:      key,
		rule:     rule,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Update replaces the rule. Existing buckets are dropped so callers start fresh under it.
func (l *Limiter) Update(rule Rule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rule == l.rule {
		return
	}
	l.rule = rule
	l.visitors = make(map[string]*visitor)
}

func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			expiry := 3 * l.rule.Window
			if expiry < time.Minute {
				expiry = time.Minute
			}
			for k, v := range l.visitors {
				if now.Sub(v.lastSeen) > expiry {
					delete(l.visitors, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// allow reports whether the caller may proceed and, if not, how long until the next token.
func (l *Limiter) allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.rule.enabled() {
		return true, 0
	}

	v, ok := l.visitors[key]
	if !ok {
		every := rate.Every(l.rule.Window / time.Duration(l.rule.Requests))
		v = &visitor{limiter: rate.NewLimiter(every, l.rule.Requests)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := l.allow(l.key(c), time.Now())
		if !ok {
			monitoring.RateLimited.WithLabelValues(l.name).Inc()
			util.TooManyRequests(c, retryAfter)
			c.Abort()
			return
		}
		c.Next()
	}
}
