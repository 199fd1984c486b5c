package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/beat-the-guardian/http/api"
	"github.com/brojonat/beat-the-guardian/internal/stools"
	"github.com/golang-jwt/jwt"
)

// context keys
type contextKey int

var ctxKeyJWT contextKey = 1
var ctxKeyEmail contextKey = 2

// UserStatus gates admin endpoints. Tokens minted from the shared secret
// carry sudo.
type UserStatus int

const (
	UserStatusDefault UserStatus = 0
	UserStatusSudo    UserStatus = 10
)

type authJWTClaims struct {
	jwt.StandardClaims
	Email  string `json:"email"`
	Status int    `json:"status"`
}

func getSecretKey() string {
	return os.Getenv(EnvServerSecretKey)
}

// RateLimiter is a fixed-window in-memory rate limiter keyed by client.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	limit    int
}

// NewRateLimiter creates a rate limiter allowing limit requests per window
// per key.
func NewRateLimiter(window time.Duration, limit int) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		limit:    limit,
	}
}

func (rl *RateLimiter) isAllowed(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)
	valid := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

// clientKey identifies the caller for rate limiting, preferring the first
// X-Forwarded-For hop over the socket address.
func clientKey(r *http.Request) string {
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		return strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}
	return r.RemoteAddr
}

// rateLimitMiddleware rejects over-limit clients with 429 and a Retry-After.
func rateLimitMiddleware(rl *RateLimiter) stools.Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !rl.isAllowed(clientKey(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(api.DefaultJSONResponse{Error: "rate limit exceeded"})
				return
			}
			next(w, r)
		}
	}
}

// bearerAuthorizerCtxSetToken validates a Bearer JWT signed with the server
// secret and stores the claims on the request context.
func bearerAuthorizerCtxSetToken(gsk func() string) func(http.ResponseWriter, *http.Request) bool {
	return func(w http.ResponseWriter, r *http.Request) bool {
		var claims authJWTClaims
		ts := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ts == "" {
			return false
		}
		kf := func(token *jwt.Token) (interface{}, error) {
			return []byte(gsk()), nil
		}
		token, err := jwt.ParseWithClaims(ts, &claims, kf)
		if err != nil || !token.Valid {
			return false
		}
		ctx := context.WithValue(r.Context(), ctxKeyJWT, token.Claims)
		*r = *r.WithContext(ctx)
		return true
	}
}

// oauthAuthorizerForm authenticates a token request from form credentials:
// username is recorded in the context, password must equal the server
// secret.
func oauthAuthorizerForm(gsk func() string) func(http.ResponseWriter, *http.Request) bool {
	return func(w http.ResponseWriter, r *http.Request) bool {
		if err := r.ParseForm(); err != nil {
			return false
		}
		email := r.FormValue("username")
		password := r.FormValue("password")
		if email == "" || password == "" {
			return false
		}
		expected := gsk()
		if expected == "" {
			slog.Default().Error("server secret key not configured")
			return false
		}
		if password != expected {
			return false
		}
		ctx := context.WithValue(r.Context(), ctxKeyEmail, email)
		*r = *r.WithContext(ctx)
		return true
	}
}

// atLeastOneAuth calls the next handler if any authorizer passes, otherwise
// writes 401.
func atLeastOneAuth(authorizers ...func(http.ResponseWriter, *http.Request) bool) stools.Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			for _, a := range authorizers {
				if !a(w, r) {
					continue
				}
				next(w, r)
				return
			}
			writeUnauthorized(w)
		}
	}
}

// optionalAuth runs the authorizers for their context side effects (claims,
// email) but never rejects; handlers behind it decide per operation whether
// credentials are required.
func optionalAuth(authorizers ...func(http.ResponseWriter, *http.Request) bool) stools.Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			for _, a := range authorizers {
				if a(w, r) {
					break
				}
			}
			next(w, r)
		}
	}
}

// hasStatus reports whether the request carries validated claims at or
// above the required level.
func hasStatus(r *http.Request, required UserStatus) bool {
	claims, ok := r.Context().Value(ctxKeyJWT).(*authJWTClaims)
	return ok && claims != nil && claims.Status >= int(required)
}

// requireStatus rejects callers whose JWT status is below the required
// level.
func requireStatus(required UserStatus) stools.Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(ctxKeyJWT).(*authJWTClaims)
			if !ok || claims == nil {
				writeUnauthorized(w)
				return
			}
			if claims.Status < int(required) {
				writeJSONResponse(w, api.DefaultJSONResponse{Error: "forbidden: insufficient permissions"}, http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}
