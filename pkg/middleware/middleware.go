package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/klear-journal/pkg/response"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Context keys set by this package
const (
	userIDKey    = "userID"
	locationKey  = "location"
	requestIDKey = "requestID"
)

// TokenValidator resolves a bearer token to the user it was issued for
type TokenValidator interface {
	UserIDFromToken(token string) (uint, error)
}

// TimezoneResolver returns a user's preferred IANA time zone, empty if unset
type TimezoneResolver interface {
	Timezone(ctx context.Context, userID uint) (string, error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limit struct {
	rate  rate.Limit
	burst int
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.Mutex

	// Configure limits per endpoint type
	authLimit    = limit{rate.Limit(10.0 / 60.0), 5}   // 10 requests per minute
	importLimit  = limit{rate.Limit(6.0 / 60.0), 2}    // 6 uploads per minute
	journalLimit = limit{rate.Limit(600.0 / 60.0), 20} // 600 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientKey string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientKey + ":" + path
	v, exists := visitors[key]

	if !exists {
		l := limit{rate.Inf, 1} // No limit for other paths
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			l = authLimit
		case strings.HasPrefix(path, "/api/v1/trades/import"):
			l = importLimit
		case strings.HasPrefix(path, "/api/v1/"):
			l = journalLimit
		}

		v = &visitor{
			limiter:  rate.NewLimiter(l.rate, l.burst),
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit throttles requests per client and route group
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := getLimiter(c.FullPath(), c.ClientIP())
		if !limiter.Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestLogger tags each request with an id and logs its outcome
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Uint("user_id", c.GetUint(userIDKey)).
			Dur("latency", time.Since(start)).
			Msg("request completed")
	}
}

// JWTAuth rejects requests without a valid bearer token and stores the
// token's user id in the context
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearerToken := strings.Split(c.GetHeader("Authorization"), " ")
		if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "bearer") {
			response.Unauthorized(c, "Invalid authorization header")
			c.Abort()
			return
		}

		userID, err := validator.UserIDFromToken(bearerToken[1])
		if err != nil || userID == 0 {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// Timezone resolves the viewer's location: the tz query parameter when it
// names a valid zone, then the user's stored preference, then fallback
func Timezone(resolver TimezoneResolver, fallback *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := fallback
		if tz := c.Query("tz"); tz != "" {
			if l, err := time.LoadLocation(tz); err == nil {
				loc = l
				c.Set(locationKey, loc)
				c.Next()
				return
			}
		}

		if userID := c.GetUint(userIDKey); userID != 0 {
			tz, err := resolver.Timezone(c.Request.Context(), userID)
			if err != nil {
				log.Warn().Err(err).Uint("user_id", userID).Msg("failed to resolve user timezone")
			} else if l, err := time.LoadLocation(tz); tz != "" && err == nil {
				loc = l
			}
		}

		c.Set(locationKey, loc)
		c.Next()
	}
}

// UserID returns the authenticated user id, 0 outside JWTAuth
func UserID(c *gin.Context) uint {
	return c.GetUint(userIDKey)
}

// Location returns the viewer's location, UTC outside Timezone
func Location(c *gin.Context) *time.Location {
	if v, ok := c.Get(locationKey); ok {
		if loc, ok := v.(*time.Location); ok {
			return loc
		}
	}
	return time.UTC
}

// SetUserID stores an authenticated user id; used by JWTAuth and tests
func SetUserID(c *gin.Context, userID uint) {
	c.Set(userIDKey, userID)
}
