package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaigai-ai/vaigai/pkg/localstore"
)

func newKeyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the saved Gemini API key",
	}

	setCmd := &cobra.Command{
		Use:   "set <api-key>",
		Short: "Save the Gemini API key locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			store, err := localstore.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			saved, err := store.SaveAPIKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !saved {
				return errors.New("API key is empty")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API Key Saved!")
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show whether a key is saved",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			store, err := localstore.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			key, err := store.LoadAPIKey(cmd.Context())
			if err != nil {
				return err
			}
			if key == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No API key saved.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s\n", maskKey(key))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the saved key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			store, err := localstore.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			return store.RemoveItem(cmd.Context(), localstore.APIKeyName)
		},
	}

	cmd.AddCommand(setCmd, showCmd, clearCmd)
	return cmd
}

// maskKey keeps only the last four characters visible.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
