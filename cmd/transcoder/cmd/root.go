// Package cmd implements the CLI commands for the transcoder worker.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openstream/transcoder/internal/config"
	"github.com/openstream/transcoder/internal/observability"
	"github.com/openstream/transcoder/internal/version"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "transcoder",
	Short:   "openstream VOD transcoding worker",
	Version: version.Short(),
	Long: `transcoder is the openstream video-on-demand transcoding worker.

It joins a Kafka consumer group, takes transcode jobs off the lane topics, and
produces HLS renditions, sprite timelines, and clips into the object store.

Configuration is read from a YAML file, TRANSCODER_-prefixed environment
variables, or the platform-wide names (KAFKA_BROKERS, MINIO_ENDPOINT,
OPENSTREAM_VOL_PATH, REDIS_URL).

Examples:
  # Worker accepting every lane
  transcoder serve

  # Dedicated slow-lane pool member
  TRANSCODER_WORKER_LANES=slow TRANSCODER_KAFKA_GROUP_ID=transcoder-slow transcoder serve`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, text)")
}

// loadConfig reads the effective configuration, applying CLI logging overrides
// on top of file and environment values.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		cfg.Logging.Level = strings.ToLower(level)
	}
	if cmd.Flags().Changed("log-format") {
		format, _ := cmd.Flags().GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}
	return cfg, nil
}

// initLogging builds the process logger from config and installs it as the
// slog default.
func initLogging(cfg *config.Config) {
	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)
}
