package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trackdrop/internal/auth"
	"trackdrop/internal/config"
	"trackdrop/internal/database"
	"trackdrop/internal/fetcher"
	"trackdrop/internal/logging"
	"trackdrop/internal/server"
	"trackdrop/internal/storage"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	logger, logCloser, err := logging.New(&cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	db, err := database.NewDatabase(cfg.Database.Path, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer db.Close()

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("error initializing storage: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = store.EnsureBuckets(setupCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("error preparing storage buckets: %w", err)
	}

	remote := fetcher.New(&cfg.Fetch, logger)
	defer remote.Close()

	codes := auth.NewAccessCodes(&cfg.Access, logger)
	if !codes.Enabled(auth.ScopeUpload) {
		logger.Warn("No upload code configured, album creation is disabled")
	}

	musicServer := server.NewMusicServer(server.Dependencies{
		Config:     cfg,
		ConfigPath: configPath,
		DB:         db,
		Store:      store,
		Fetcher:    remote,
		Codes:      codes,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- musicServer.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := musicServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
		return err
	}

	return <-errCh
}
