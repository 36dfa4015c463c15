package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/2run66/freecord/internal/adapters/httpapi"
	signalws "github.com/2run66/freecord/internal/adapters/signal"
	"github.com/2run66/freecord/internal/app"
	"github.com/2run66/freecord/internal/config"
	"github.com/2run66/freecord/internal/core"
	"github.com/2run66/freecord/internal/store"
	"github.com/2run66/freecord/internal/tokens"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	reg := core.NewRegistry()
	dispatcher := app.NewDispatcher(reg)

	// The bridge is handed to the HTTP layer explicitly; the registry
	// itself never leaves the socket subsystem.
	bridge := app.NewBridge()
	bridge.Bind(dispatcher)

	handlers := &httpapi.Handlers{
		Bridge: bridge,
		Minter: tokens.NewMinter(cfg.Media.APIKey, cfg.Media.APISecret, cfg.Media.TokenTTL),
	}

	var presence *store.Presence
	if cfg.DatabaseURL != "" {
		db, err := store.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		presence = store.NewPresence(db, cfg.PresenceTTL)
		handlers.Presence = presence
	} else {
		log.Warn().Msg("no database configured, presence mirror endpoints disabled")
	}

	if presence != nil && cfg.SweepInterval > 0 {
		go sweepLoop(ctx, presence, cfg.SweepInterval)
	}

	ctl := signalws.NewController(dispatcher, cfg)
	r := httpapi.SetupRouter(cfg, ctl, handlers)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("socket_path", cfg.SocketPath).Msg("freecord realtime server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

// sweepLoop expires stale presence rows in the background, in addition
// to the sweep that runs on every roster read.
func sweepLoop(ctx context.Context, presence *store.Presence, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := presence.Cleanup(ctx); err != nil {
				log.Error().Err(err).Msg("background presence sweep failed")
			}
		}
	}
}
