package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/allsmog/zkcp-auth/internal/config"
	"github.com/allsmog/zkcp-auth/internal/logging"
	"github.com/allsmog/zkcp-auth/pkg/auth"
	"github.com/allsmog/zkcp-auth/pkg/crypto/chaumpedersen"
	"github.com/allsmog/zkcp-auth/pkg/crypto/group"
	"github.com/allsmog/zkcp-auth/pkg/jwt"
	mw "github.com/allsmog/zkcp-auth/pkg/middleware"
	"github.com/allsmog/zkcp-auth/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	// Flags override environment variables.
	flag.StringVar(&cfg.Port, "addr", cfg.Port, "Server address or port")
	flag.StringVar(&cfg.Group, "group", cfg.Group, fmt.Sprintf("Group to use %v", group.SupportedGroups()))
	flag.StringVar(&cfg.Issuer, "issuer", cfg.Issuer, "JWT issuer")
	flag.StringVar(&cfg.Audience, "audience", cfg.Audience, "JWT audience")
	flag.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "JWT token TTL")
	flag.DurationVar(&cfg.ChallengeTTL, "challenge-ttl", cfg.ChallengeTTL, "Pending challenge TTL (0 disables expiry)")
	flag.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Max requests per minute per client")
	flag.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "JWT signing key file (empty for an ephemeral key)")
	flag.StringVar(&cfg.KeyConfigFile, "key-config", cfg.KeyConfigFile, "JWT key config file")
	flag.StringVar(&cfg.AdminToken, "admin-token", cfg.AdminToken, "Bearer token for /admin (empty disables admin routes)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.Parse()

	logger := logging.Default(cfg.LogLevel, cfg.IsDev())

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	displayAppName(cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server stopped")
}

// app is the assembled server.
type app struct {
	store   *storage.MemoryStore
	limiter *mw.RateLimiter
	router  http.Handler
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	grp, err := group.FromName(cfg.Group)
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", cfg.Group, err)
	}
	logger.Info().Str("group", grp.Name()).Int("order_bits", grp.Order().BitLen()).Msg("group parameters validated")

	engine := chaumpedersen.NewEngine(grp)
	store := storage.NewMemoryStore(
		storage.WithChallengeTTL(cfg.ChallengeTTL),
		storage.WithAuthIDGenerator(auth.NewAuthIDGenerator(engine)),
	)

	signer, ephemeral, err := jwt.LoadOrGenerateSigner(cfg.KeyFile, cfg.KeyConfigFile, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("token signer: %w", err)
	}
	if ephemeral {
		logger.Warn().Msg("using an ephemeral signing key; tokens will not survive a restart")
	}
	logger.Info().Str("kid", signer.KeyID()).Str("alg", signer.Algorithm()).Msg("loaded token signer")

	protocol := auth.NewProtocol(engine, store, logger)
	handlers := auth.NewHandlers(protocol, store, signer, auth.Config{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		TokenTTL:   cfg.TokenTTL,
		AdminToken: cfg.AdminToken,
	})

	limiter := mw.NewRateLimiter(cfg.RateLimit, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(limiter.Handler)
	r.Use(mw.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","service":"zkcp-authd"}`)
	})
	handlers.Mount(r)

	return &app{store: store, limiter: limiter, router: r}, nil
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Str("issuer", cfg.Issuer).Str("audience", cfg.Audience).
			Dur("challenge_ttl", cfg.ChallengeTTL).Dur("token_ttl", cfg.TokenTTL).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server.ListenAndServe: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.store.Run(gctx)
	})

	g.Go(func() error {
		return a.limiter.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		return shutdown(server)
	})

	return g.Wait()
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppName(appName string) {
	banner := figure.NewFigure(appName, "cybermedium", true)
	banner.Print()
	fmt.Println()
}
