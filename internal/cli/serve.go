package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"storefront-sync/internal/app"
	"storefront-sync/internal/config"
	"storefront-sync/internal/handler"
	"storefront-sync/internal/middleware"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port      string
	RateLimit float64
	RateBurst int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync service",
		Long: `Run the storefront sync service: session management, cart and
wishlist reconciliation, checkout and the realtime change feed, exposed over
HTTP and MCP.

Configuration comes from the environment (see PORT, ENVIRONMENT,
COLLECTION_BACKEND, BACKEND_URL, BACKEND_ANON_KEY) or, in production, from
Secret Manager.

Example:
  BACKEND_URL=https://xyz.example BACKEND_ANON_KEY=... storefront serve --port 8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Port, "port", "", "listen port (overrides PORT)")
	cmd.Flags().Float64Var(&opts.RateLimit, "rate-limit", 0, "requests per second across all clients (0 disables)")
	cmd.Flags().IntVar(&opts.RateBurst, "rate-burst", 20, "request burst allowed above the rate limit")

	return cmd
}

func runServe(opts *ServeOptions) error {
	// Initialize structured logger
	logger := initLogger(opts.Verbose)
	slog.SetDefault(logger)

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.Port != "" {
		cfg.Port = opts.Port
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("namespace", cfg.Namespace),
		slog.String("collection_backend", cfg.CollectionBackend),
		slog.Bool("realtime", cfg.RealtimeURL != ""),
		slog.Bool("local_store", cfg.LocalStorePath != ""),
	)

	svc, err := app.New(ctx, cfg, logger, app.Deps{})
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("closing service", slog.String("error", err.Error()))
		}
	}()
	svc.Start(ctx)

	hcfg := handler.Config{
		Sessions: svc.Sessions,
		Cart:     svc.Cart,
		Wishlist: svc.Wishlist,
		Checkout: svc.Checkout,
		Logger:   logger,
	}
	if svc.Feed != nil {
		hcfg.Realtime = svc.Feed
	}
	h := handler.New(hcfg)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	}

	// Recovery must be outermost to catch panics from logging middleware.
	// RequestID runs before Logging so every access line carries the ID.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.RateLimit(limiter),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	// Channel for server errors
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose || os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
