package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cachepkg "github.com/vaigai-ai/vaigai/pkg/cache/sqlite"
	"github.com/vaigai-ai/vaigai/pkg/classifier"
	"github.com/vaigai-ai/vaigai/pkg/localstore"
	"github.com/vaigai-ai/vaigai/pkg/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start Vaigai as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

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

			client := classifier.NewClient(cfg.Gemini.BaseURL, cfg.Gemini.Model, logger)
			defer func() { _ = client.Close() }()

			desk, err := newDesk(cfg, logger)
			if err != nil {
				return err
			}

			srv := mcp.New(mcp.Deps{
				Classifier: client,
				Keys:       keys,
				APIKey:     cfg.Gemini.APIKey,
				Reports:    desk,
				Cache:      storage,
			}, version, logger)
			return srv.Run(cmd.Context(), os.Stdin, cmd.OutOrStdout())
		},
	}
}
