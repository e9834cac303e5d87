package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"glyphdeck/internal/config"
	"glyphdeck/internal/logging"
)

var (
	// Global flags
	cfgPath string
	verbose bool
	timeout time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "glyphdeck",
	Short: "glyphdeck - LLM annotation of tabular text",
	Long: `glyphdeck annotates text columns of CSV and Excel files with structured
LLM output (categories, sentiment scores) and writes the results alongside
the original rows.

Every processing step is kept as a record, so a run can sanitise private
information first and then annotate the sanitised text. Responses are cached
on disk keyed by their full request, so re-running a job costs nothing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// setup builds the console logger and loads the configuration.
func setup() error {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	var err error
	logger, err = zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.Settings()); err != nil {
		return fmt.Errorf("failed to initialize file logging: %w", err)
	}
	logger.Debug("Configuration loaded", zap.String("path", cfgPath),
		zap.String("provider", cfg.LLM.Provider), zap.String("model", cfg.LLM.Model))
	logging.Boot("config %q: provider=%s model=%s validator=%s", cfgPath, cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.Validator)
	logging.BootDebug("limits: preprepared=%d awaiting=%d; cache enabled=%v dir=%s size_mb=%d",
		cfg.Limits.Preprepared, cfg.Limits.Awaiting, cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.SizeMB)
	return nil
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "glyphdeck.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose console logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Hour, "Overall command timeout")

	registerRunFlags()
	registerSanitiseFlags()
	registerCacheCommands()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sanitiseCmd)
	rootCmd.AddCommand(validatorsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(usageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
