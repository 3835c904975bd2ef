package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notehub/internal/api"
	"notehub/internal/auth"
	"notehub/internal/blob"
	"notehub/internal/comments"
	"notehub/internal/config"
	"notehub/internal/logger"
	"notehub/internal/mcp"
	"notehub/internal/middleware"
	"notehub/internal/notes"
	"notehub/internal/store/sqlstore"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", os.Getenv("NOTEHUB_CONFIG"), "path to YAML config file")
	flag.Parse()

	// A missing .env is fine; the environment may be set some other way.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *configPath, os.Stdout)
	stop()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("server exited")
	}
}

// run serves until ctx is cancelled or the listener fails.
func run(ctx context.Context, configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logger.New(cfg.Logging, out)

	if cfg.Session.Secret == config.DevSecret {
		log.Warn().Msg("using the development session secret; set COOKIE_SECRET in production")
	}

	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer store.Close()

	blobs, err := blob.New(cfg.Uploads.Dir, cfg.Uploads.OnCollision)
	if err != nil {
		return fmt.Errorf("initializing upload directory: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newHandler(cfg, store, blobs, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("driver", cfg.Database.Driver).Msg("server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// newHandler wires the web pages and, when enabled, the MCP endpoint.
func newHandler(cfg *config.Config, store *sqlstore.SQLStore, blobs *blob.DirStore, log zerolog.Logger) http.Handler {
	signer := auth.NewSigner(cfg.Session.Secret)
	repo := notes.NewRepository(store, blobs, log)
	ledger := comments.NewLedger(store, log)

	handlers := api.NewHandlers(api.Deps{
		Credentials:    auth.NewCredentials(store),
		Sessions:       auth.NewSessions(signer, cfg.Session.TTL, cfg.Session.SecureCookie),
		Notes:          repo,
		Comments:       ledger,
		Blobs:          blobs,
		FlashSigner:    signer,
		MaxUploadBytes: cfg.Uploads.MaxBytes,
		Logger:         log,
	})

	mux := http.NewServeMux()
	mux.Handle("/", handlers.Handler())
	if cfg.MCP.Enabled {
		mcpServer := mcp.NewMCPServer(store, repo, ledger)
		mux.Handle("/mcp", middleware.BearerToken(cfg.MCP.Token)(mcpServer.Handler()))
		log.Info().Msg("MCP endpoint enabled at /mcp")
	}
	return middleware.Logging(log)(mux)
}
