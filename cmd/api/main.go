package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nutrichat/nutrichat-api/internal/auth"
	"github.com/nutrichat/nutrichat-api/internal/chat"
	"github.com/nutrichat/nutrichat-api/internal/config"
	"github.com/nutrichat/nutrichat-api/internal/connectivity"
	"github.com/nutrichat/nutrichat-api/internal/consent"
	"github.com/nutrichat/nutrichat-api/internal/database"
	"github.com/nutrichat/nutrichat-api/internal/geminiservice"
	"github.com/nutrichat/nutrichat-api/internal/server"
)

const (
	startupTimeout = 10 * time.Second
	shutdownGrace  = 5 * time.Second
	probeTimeout   = 5 * time.Second
)

func gracefulShutdown(apiServer *http.Server, stopBackground context.CancelFunc, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// Stop the connectivity monitor before the listener so no transition
	// notices race the drain.
	stopBackground()

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown with error")
	}

	log.Info().Msg("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

// probeAddr derives the host:port the connectivity monitor dials from the
// Gemini base URL, so reachability is measured against the service we
// actually depend on.
func probeAddr(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "generativelanguage.googleapis.com:443"
	}
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(host, port)
	}
	return host
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Wire the storage backend. Postgres keeps device credentials and consent
	// flags across restarts; memory mode needs no external services but
	// forgets everything on exit.
	var (
		db           database.Service
		consentStore consent.Store
		deviceStore  auth.Store
	)
	switch cfg.StorageBackend {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		db, err = database.NewService(ctx, cfg.DatabaseURL())
		if err != nil {
			cancel()
			log.Fatal().Err(err).Msg("Database connection failed")
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("Schema setup failed")
		}
		cancel()
		defer db.Close()
		consentStore = database.NewConsentStore(db.Queries())
		deviceStore = auth.NewDBStore(db.Queries())
	case "memory":
		log.Warn().Msg("Running with in-memory storage; devices and consent reset on restart")
		consentStore = consent.NewMemoryStore()
		deviceStore = auth.NewMemoryStore()
	}

	gemini := geminiservice.NewClient(log.Logger, cfg.GeminiBaseURL, cfg.GeminiModel, cfg.GeminiAPIKey)

	monitor := connectivity.NewMonitor(
		connectivity.DialProber(probeAddr(cfg.GeminiBaseURL), probeTimeout),
		cfg.ProbeInterval,
	)

	manager, err := chat.NewManager(log.Logger, consentStore, gemini, monitor, cfg.SessionCacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Chat manager init failed")
	}
	defer manager.Close()

	authHandler := auth.NewHandler(deviceStore, cfg.SessionSecret)

	apiServer := server.NewServer(cfg, db, manager, monitor, authHandler)

	// Background tasks run under an errgroup so a failure surfaces instead of
	// a goroutine dying silently.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	g, grpCtx := errgroup.WithContext(bgCtx)
	g.Go(func() error {
		return monitor.Run(grpCtx)
	})

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(apiServer, stopBackground, done)

	log.Info().Int("port", cfg.Port).Str("storage", cfg.StorageBackend).Str("model", cfg.GeminiModel).Msg("Starting server")
	err = apiServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Background task exited with error")
	}
	log.Info().Msg("Graceful shutdown complete.")
}
