package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dengzhuofu/foodai-agent"
	"github.com/dengzhuofu/foodai-agent/internal/config"
	"github.com/dengzhuofu/foodai-agent/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "foodai",
	Short: "FoodAI is a tool-using cooking assistant",
	Long: `FoodAI runs a language model agent over kitchen tools (fridge, shopping list, recipes)
and remote MCP providers, restricted by per-agent presets.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides the config)")
}

// loadConfig reads the config file named by --config, then applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

// newEngine wires the engine from the command flags.
func newEngine(ctx context.Context, cmd *cobra.Command, opts ...foodai.Option) (*foodai.Engine, *config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.New(logging.ParseLevel(cfg.Log.Level))

	eng, err := foodai.New(ctx, cfg, append([]foodai.Option{foodai.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return eng, cfg, logger, nil
}
