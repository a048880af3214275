package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/allsmog/zkcp-auth/internal/logging"
	"github.com/allsmog/zkcp-auth/pkg/jwt"
	mw "github.com/allsmog/zkcp-auth/pkg/middleware"
)

func main() {
	var (
		addr       = flag.String("addr", ":8081", "Server address")
		authServer = flag.String("auth-server", "http://localhost:8080", "Auth server base URL")
		issuer     = flag.String("issuer", "", "Expected JWT issuer (empty skips the check)")
		audience   = flag.String("audience", "zkcp-api", "JWT audience")
		logLevel   = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := logging.Default(*logLevel, true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jwksURL := *authServer + "/.well-known/jwks.json"
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	issuerJWKS, err := jwt.FetchJWKS(fetchCtx, jwksURL)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load issuer keys")
	}
	logger.Info().Str("url", jwksURL).Int("keys", issuerJWKS.Len()).Msg("loaded issuer keys")

	verifier := jwt.NewVerifier(issuerJWKS, *issuer, *audience)
	server := &http.Server{
		Addr:              *addr,
		Handler:           newRouter(verifier, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", *addr).Str("audience", *audience).Msg("demo API listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func newRouter(verifier *jwt.Verifier, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(mw.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","service":"zkcp-demo-api"}`)
	})

	r.Get("/public", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"message":   "This is a public endpoint",
			"timestamp": time.Now(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(mw.JWTMiddleware(verifier))
		r.Use(mw.RequireZKScheme(jwt.SchemeChaumPedersen))

		r.Get("/profile", func(w http.ResponseWriter, r *http.Request) {
			claims, _ := mw.GetJWTClaims(r)
			writeJSON(w, map[string]interface{}{
				"subject":    claims.Subject,
				"session_id": claims.SessionID,
				"issued_at":  claims.IssuedAt,
				"expires_at": claims.ExpiresAt,
				"zk":         claims.ZK,
			})
		})

		r.Route("/secp256k1", func(r chi.Router) {
			r.Use(mw.RequireGroup("secp256k1"))

			r.Get("/data", func(w http.ResponseWriter, r *http.Request) {
				claims, _ := mw.GetJWTClaims(r)
				writeJSON(w, map[string]interface{}{
					"message": "This endpoint requires a proof over secp256k1",
					"subject": claims.Subject,
					"group":   claims.ZK.Group,
				})
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
