package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/allsmog/zkcp-auth/pkg/jwt"
)

// ContextKey is used for storing values in context
type ContextKey string

// JWTClaimsKey is the context key for verified session token claims
const JWTClaimsKey ContextKey = "jwt_claims"

// JWTMiddleware rejects requests without a valid "Bearer" session token
// and stores the verified claims in the request context.
func JWTMiddleware(verifier *jwt.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.Verify(strings.TrimPrefix(authHeader, bearerPrefix))
			if err != nil {
				hlog.FromRequest(r).Debug().Err(err).Msg("token rejected")
				http.Error(w, "invalid session token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), JWTClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetJWTClaims extracts JWT claims from request context
func GetJWTClaims(r *http.Request) (*jwt.Claims, bool) {
	claims, ok := r.Context().Value(JWTClaimsKey).(*jwt.Claims)
	return claims, ok
}

// RequireZKScheme middleware ensures the JWT was issued via ZK authentication
func RequireZKScheme(expectedScheme string) func(http.Handler) http.Handler {
	return requireZK(func(zk *jwt.ZKClaims) error {
		if zk.Scheme != expectedScheme {
			return fmt.Errorf("invalid ZK scheme: expected %s, got %s", expectedScheme, zk.Scheme)
		}
		return nil
	})
}

// RequireGroup middleware ensures the JWT was issued after a proof in a
// specific group
func RequireGroup(expectedGroup string) func(http.Handler) http.Handler {
	return requireZK(func(zk *jwt.ZKClaims) error {
		if zk.Group != expectedGroup {
			return fmt.Errorf("invalid group: expected %s, got %s", expectedGroup, zk.Group)
		}
		return nil
	})
}

func requireZK(check func(*jwt.ZKClaims) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetJWTClaims(r)
			if !ok {
				http.Error(w, "JWT claims required", http.StatusInternalServerError)
				return
			}

			if claims.ZK == nil {
				http.Error(w, "JWT missing ZK claims", http.StatusForbidden)
				return
			}

			if err := check(claims.ZK); err != nil {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORS middleware for development
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestLogger installs logger into each request context and writes one
// access log line per request.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		hlog.NewHandler(logger),
		hlog.RequestIDHandler("req_id", "X-Request-ID"),
		hlog.RemoteAddrHandler("ip"),
		hlog.MethodHandler("method"),
		hlog.URLHandler("url"),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		}),
	}

	return func(next http.Handler) http.Handler {
		for i := len(chain) - 1; i >= 0; i-- {
			next = chain[i](next)
		}
		return next
	}
}
