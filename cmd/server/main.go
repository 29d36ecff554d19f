// Package main runs the Atrium chat node
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/atriumchat/atrium/pkg/config"
	"github.com/atriumchat/atrium/pkg/protocol"
	"github.com/atriumchat/atrium/pkg/server"
	"github.com/atriumchat/atrium/pkg/state"
	"github.com/atriumchat/atrium/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	listen := flag.String("listen", cfg.ListenAddr, "Listen address")
	dataDir := flag.String("data", cfg.DataDir, "Data directory for the durable log")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (trace..error)")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", *logLevel, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	fmt.Println("Atrium Chat Node")
	fmt.Println("================")
	fmt.Println()

	db, err := storage.Open(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer db.Close()
	fmt.Printf("  Storage: %s\n", db.Path())

	store := state.NewStore(state.Limits{
		MaxNameLength:          cfg.MaxNameLength,
		MaxDescriptionLength:   cfg.MaxDescriptionLength,
		MaxMessageLength:       cfg.MaxMessageLength,
		MaxInvitesPerCommunity: cfg.MaxInvitesPerCommunity,
	})
	if err := db.Load(store); err != nil {
		log.Fatalf("Failed to replay storage: %v", err)
	}

	hub := server.NewHub(store, db, logger, server.Options{
		RequestsPerSecond: cfg.RequestsPerSecond,
		RequestBurst:      cfg.RequestBurst,
		MalformedLimit:    cfg.MalformedLimit,
		SendQueueSize:     cfg.SendQueueSize,
	})
	srv := server.New(hub, logger, *listen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepInvites(ctx, store, db, logger, cfg.InviteSweepInterval)

	fmt.Printf("  Listening: %s\n", *listen)
	fmt.Println()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("shut down cleanly")
}

// sweepInvites periodically drops expired invite codes from memory and
// the durable log
func sweepInvites(ctx context.Context, store *state.Store, db *storage.DB, logger zerolog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := store.SweepInvites(protocol.NowUnixMilli())
			for _, code := range removed {
				if err := db.DeleteInvite(code); err != nil {
					logger.Error().Err(err).Str("code", code).Msg("failed to purge invite")
				}
			}
			if len(removed) > 0 {
				logger.Info().Int("count", len(removed)).Msg("swept expired invites")
			}
		}
	}
}
