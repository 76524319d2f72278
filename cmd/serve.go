package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"records-rag/internal/api"
	"records-rag/internal/config"
	"records-rag/internal/syncer"
)

var (
	flagAddr         string
	flagSyncInterval time.Duration
	flagSkipIngest   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ingest empty collections, then serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if !flagSkipIngest {
			if _, err := a.ingest(ctx); err != nil {
				// keep serving what is indexed; untracked collections fail their syncs
				log.Error().Err(err).Msg("Error ingesting records")
			}
		}

		deps := api.Deps{
			Searcher:        a.search,
			Joiner:          a.joiner,
			Syncer:          a.syncer,
			Source:          a.source,
			SyncCollections: a.fileCollections(),
			SyncQuery:       cfg.Sources.Sync,
		}
		if bot, err := a.chatbot(); err != nil {
			log.Warn().Err(err).Msg("chatbot disabled")
		} else {
			deps.Chatbot = bot
		}

		if err := config.WatchLogLevel(ctx, flagConfig, setLevel); err != nil {
			log.Warn().Err(err).Msg("log level reload disabled")
		}

		if flagSyncInterval > 0 {
			go syncLoop(ctx, a.syncer, flagSyncInterval)
		}

		addr := flagAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}
		err = api.New(deps).ListenAndServe(ctx, addr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

// syncLoop runs a full sync of every tracked collection on each tick.
func syncLoop(ctx context.Context, engine *syncer.Engine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, res := range engine.SyncAll(ctx, cfg.Sources.Sync) {
				if res.Status == syncer.StatusFailed {
					log.Warn().Err(res.Err).Str("collection", res.Collection).Msg("scheduled sync failed")
				}
			}
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().DurationVar(&flagSyncInterval, "sync-interval", 0, "run a full sync of the file collections at this interval (0 disables)")
	serveCmd.Flags().BoolVar(&flagSkipIngest, "skip-ingest", false, "serve without the startup ingestion")
	rootCmd.AddCommand(serveCmd)
}
