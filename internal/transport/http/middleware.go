package http

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"medprep-study-service/internal/domain"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	userIDHeader = "X-User-ID"
	userKey      = "user"
)

// requireUser resolves the caller from the X-User-ID header, or the userId
// query parameter for websocket clients, and rejects logged-out users.
func (a *API) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("userId"))
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorPayload{Message: "missing user id"}})
			return
		}

		user, err := a.service.CurrentUser(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorPayload{Message: "not logged in"}})
				return
			}
			a.fail(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.User {
	return c.MustGet(userKey).(domain.User)
}

var errRateLimited = errors.New("too many requests")

// visitor pairs a limiter with its last use so idle entries can be dropped.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiters holds one token bucket per user, shared by the HTTP routes and the
// websocket channel. A nil *limiters allows everything.
type limiters struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
}

// newLimiters returns nil when limit is not positive, which disables throttling.
func newLimiters(limit float64, burst int) *limiters {
	if limit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &limiters{
		limit:    rate.Limit(limit),
		burst:    burst,
		idle:     10 * time.Minute,
		visitors: make(map[string]*visitor),
	}
}

func (l *limiters) allow(userID string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, id)
		}
	}
	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.Allow()
}

// middleware throttles collaborator-backed routes per user.
func (l *limiters) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(currentUser(c).ID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": errorPayload{Message: errRateLimited.Error()}})
			return
		}
		c.Next()
	}
}
