package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"audiokit/internal/config"
)

var version = "dev"

var (
	configFile string
	v          = viper.New()
)

var rootCmd = &cobra.Command{
	Use:           "audiokit",
	Short:         "Audio analysis API with a local media cache",
	Long:          "audiokit transcribes, translates and analyzes uploaded or downloaded audio.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print audiokit version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "audiokit version %s\n", version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "config.json", "config file (JSON, YAML or TOML)")
	flags.String("log-level", config.Defaults.LogLevel, "log level (debug, info, warn, error)")
	flags.String("cache-dir", config.Defaults.CacheDir, "directory for downloaded audio")
	bindFlags(v, flags)

	rootCmd.AddCommand(serveCmd, fetchCmd, pruneCmd, streamURLCmd, versionCmd)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("cache_dir", flags.Lookup("cache-dir"))
}

// loadConfig resolves configuration and builds the process logger.
func loadConfig() (config.Config, *log.Logger, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("log_level: %w", err)
	}
	logger.SetLevel(level)
	log.SetDefault(logger)
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("audiokit failed", "err", err)
		os.Exit(1)
	}
}
