package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cachepkg "github.com/vaigai-ai/vaigai/pkg/cache/sqlite"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the offline asset cache",
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Pre-cache the asset manifest from the origin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			c, err := cachepkg.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			manager, err := newManager(cfg, c, logger)
			if err != nil {
				return err
			}
			installed, err := manager.Install(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version: %s\nCached:  %d\nSkipped: %d\n", manager.Version(), len(installed.Cached), len(installed.Skipped))
			for url, reason := range installed.Skipped {
				fmt.Fprintf(out, "  skipped %s: %v\n", url, reason)
			}
			return nil
		},
	}

	activateCmd := &cobra.Command{
		Use:   "activate",
		Short: "Delete every cache version other than the current one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			c, err := cachepkg.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			manager, err := newManager(cfg, c, logger)
			if err != nil {
				return err
			}
			removed, err := manager.Activate(cmd.Context())
			if len(removed) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", strings.Join(removed, ", "))
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No stale versions.")
			}
			return err
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			c, err := cachepkg.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Versions: %s\nEntries:  %d\n", strings.Join(stats.Versions, ", "), stats.Entries)
			return nil
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List cached URLs for the current version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			c, err := cachepkg.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			urls, err := c.URLs(cmd.Context(), cfg.Cache.Version)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached assets.")
				return nil
			}
			for _, u := range urls {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			c, err := cachepkg.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}

	cmd.AddCommand(installCmd, activateCmd, statsCmd, lsCmd, clearCmd)
	return cmd
}
