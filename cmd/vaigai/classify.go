package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vaigai-ai/vaigai/pkg/classifier"
	"github.com/vaigai-ai/vaigai/pkg/config"
	"github.com/vaigai-ai/vaigai/pkg/localstore"
	"github.com/vaigai-ai/vaigai/pkg/models"
)

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var (
		imagePath string
		apiKey    string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "classify [description]",
		Short: "Classify a waste item from a description and/or an image",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			req := classifier.Request{Text: strings.Join(args, " ")}
			if imagePath != "" {
				f, err := os.Open(imagePath)
				if err != nil {
					return fmt.Errorf("open image: %w", err)
				}
				req.Image, err = classifier.ReadImage(f)
				_ = f.Close()
				if err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			req.APIKey, err = resolveAPIKey(ctx, cfg, apiKey)
			if err != nil {
				return err
			}

			client := classifier.NewClient(cfg.Gemini.BaseURL, cfg.Gemini.Model, logger)
			defer func() { _ = client.Close() }()

			result, err := client.Classify(ctx, req)
			if err != nil {
				return err
			}
			printClassification(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "path to a JPG or PNG photo of the item")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Gemini API key (defaults to config, then the saved key)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "request timeout")
	return cmd
}

func resolveAPIKey(ctx context.Context, cfg *config.Config, flagKey string) (string, error) {
	if key := strings.TrimSpace(flagKey); key != "" {
		return key, nil
	}
	if cfg.Gemini.APIKey != "" {
		return cfg.Gemini.APIKey, nil
	}
	store, err := localstore.New(cfg.DBPath)
	if err != nil {
		return "", fmt.Errorf("init local store: %w", err)
	}
	defer func() { _ = store.Close() }()
	return store.LoadAPIKey(ctx)
}

var badgeColors = map[models.Category]*color.Color{
	models.CategoryBiodegradable: color.New(color.FgBlack, color.BgGreen),
	models.CategoryRecyclable:    color.New(color.FgWhite, color.BgBlue),
	models.CategoryHazardous:     color.New(color.FgWhite, color.BgRed, color.Bold),
	models.CategoryBiomedical:    color.New(color.FgWhite, color.BgMagenta),
	models.CategoryEWaste:        color.New(color.FgBlack, color.BgYellow),
	models.CategoryUnclassified:  color.New(color.FgBlack, color.BgWhite),
}

func printClassification(w io.Writer, c models.Classification) {
	canonical, _ := c.Category.Canonical()
	badge := badgeColors[canonical]
	if badge == nil {
		badge = badgeColors[models.CategoryUnclassified]
	}

	bold := color.New(color.Bold)
	fmt.Fprintf(w, "%s  %s\n", bold.Sprint(c.ItemName), badge.Sprintf(" %s ", c.Category))
	fmt.Fprintf(w, "\n%s\n%s\n", bold.Sprint("Disposal"), c.DisposalGuidance)
	if c.HasRisks() {
		fmt.Fprintf(w, "\n%s\n%s\n", color.New(color.FgRed, color.Bold).Sprint("Risks"), c.Risks)
	}
}
