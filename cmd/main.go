package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"records-rag/internal/config"
)

const configFilePath = "./configs/config.yaml"

var (
	flagConfig string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "records-rag",
	Short:         "Search and chat over Salesforce files and knowledge articles",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)
		log.Debug().Str("config", flagConfig).Msg("Loaded config")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", configFilePath, "path to the YAML config file")
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	setLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

// setLevel applies a config log level, defaulting to info.
func setLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func main() {
	setupLogging("info")
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
