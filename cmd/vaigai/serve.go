package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vaigai-ai/vaigai/pkg/assetcache"
	cachepkg "github.com/vaigai-ai/vaigai/pkg/cache/sqlite"
	"github.com/vaigai-ai/vaigai/pkg/classifier"
	"github.com/vaigai-ai/vaigai/pkg/config"
	"github.com/vaigai-ai/vaigai/pkg/localstore"
	"github.com/vaigai-ai/vaigai/pkg/report"
	"github.com/vaigai-ai/vaigai/pkg/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Install the asset cache and start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			storage, err := cachepkg.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init cache: %w", err)
			}
			defer func() { _ = storage.Close() }()

			keys, err := localstore.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init local store: %w", err)
			}
			defer func() { _ = keys.Close() }()

			manager, err := newManager(cfg, storage, logger)
			if err != nil {
				return err
			}
			installed, err := manager.Install(ctx)
			if err != nil {
				return err
			}
			logger.Info("asset cache installed",
				zap.Int("cached", len(installed.Cached)),
				zap.Int("skipped", len(installed.Skipped)))
			if _, err := manager.Activate(ctx); err != nil {
				// Control is claimed regardless; stale versions are retried next start.
				logger.Warn("activate", zap.Error(err))
			}

			client := classifier.NewClient(cfg.Gemini.BaseURL, cfg.Gemini.Model, logger)
			defer func() { _ = client.Close() }()

			desk, err := newDesk(cfg, logger)
			if err != nil {
				return err
			}

			srv, err := server.New(cfg, server.Deps{
				Classifier: client,
				Keys:       keys,
				Reports:    desk,
				Stats:      storage,
				Assets:     manager,
			}, logger)
			if err != nil {
				return err
			}

			logger.Info("starting vaigai", zap.String("config", opts.configPath))
			return srv.ListenAndServe(ctx)
		},
	}
}

func newManager(cfg *config.Config, storage *cachepkg.Cache, logger *zap.Logger) (*assetcache.Manager, error) {
	manager, err := assetcache.New(storage, assetcache.Options{
		Version:     cfg.Cache.Version,
		Origin:      cfg.Origin,
		Manifest:    cfg.Cache.Manifest,
		Concurrency: cfg.Cache.InstallConcurrency,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init asset cache: %w", err)
	}
	return manager, nil
}

func newDesk(cfg *config.Config, logger *zap.Logger) (*report.Desk, error) {
	return report.NewDesk(cfg.Report.Delay, cfg.Report.DismissAfter, logger)
}

// compile-time check that the sqlite cache satisfies the asset cache storage.
var _ assetcache.Storage = (*cachepkg.Cache)(nil)
