package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vaigai-ai/vaigai/pkg/config"
)

var version = "dev"

type rootOptions struct {
	configPath string
	debug      bool
}

func main() {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "vaigai",
		Short:         "Vaigai AI: offline asset cache and waste classification",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "vaigai.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newClassifyCmd(opts),
		newCacheCmd(opts),
		newKeyCmd(opts),
		newMCPCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the config file, falling back to defaults when it does not
// exist, and builds the logger it asks for.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.Log, o.debug)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig, debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development || debug {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
