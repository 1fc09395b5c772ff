package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/motis-project/prima-dispatch/internal/api/models"
)

// RateLimitConfig is one endpoint class's request budget.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// Budgets per endpoint class.
var (
	// AuthRateLimit covers authentication endpoints.
	AuthRateLimit = RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute}

	// ExpensiveRateLimit covers search endpoints that fan out to the
	// routing provider.
	ExpensiveRateLimit = RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute}

	// StandardRateLimit covers everything else.
	StandardRateLimit = RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}
)

// RateLimitByIP limits by client IP. RealIP must run earlier in the chain
// for proxied requests to be keyed correctly.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limit(cfg, httprate.KeyByRealIP)
}

// RateLimitByUser limits by authenticated user, falling back to the client
// IP for unauthenticated requests.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limit(cfg, keyByUserOrIP)
}

func limit(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

func keyByUserOrIP(r *http.Request) (string, error) {
	if userID := GetUserID(r.Context()); userID != 0 {
		return "user:" + strconv.FormatInt(userID, 10), nil
	}
	return httprate.KeyByRealIP(r)
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	// httprate does not expose the window reset, so the retry hint is the
	// window length.
	w.Header().Set("Retry-After", "60")

	p := models.NewProblem(http.StatusTooManyRequests, GetRequestID(r.Context()), "rate limit exceeded, try again later")
	p.Instance = r.URL.Path
	p.Write(w)
}
