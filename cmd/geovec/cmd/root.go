package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuannm99/geovec/internal"
	"github.com/tuannm99/geovec/internal/engine"
	"github.com/tuannm99/geovec/internal/metrics"
)

// app is what PersistentPreRunE sets up for the subcommands.
var app struct {
	cfg     *internal.GeovecConfig
	db      *engine.Database
	metrics *metrics.Metrics
}

var rootCmd = &cobra.Command{
	Use:   "geovec",
	Short: "geovec - vector dataset store",
	Long: `geovec reads and writes vector datasets made of a geometry file,
its index, an attribute table and optional .prj/.cpg sidecars.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := internal.LoadConfig(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.Storage.DataDir, _ = cmd.Flags().GetString("data-dir")
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		lvl, err := cfg.LogLevel()
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))

		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
		app.cfg = cfg
		app.metrics = metrics.New()
		app.db = engine.NewDatabase(cfg.Storage.DataDir, cfg.EngineOptions(app.metrics))
		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if app.db != nil {
			return app.db.Close()
		}
		return nil
	},
}

// Execute runs the command tree. It is called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "./data", "directory holding the datasets")
	rootCmd.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
}
