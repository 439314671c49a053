package main

import (
	"os"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"newsharvest/internal/log"
)

var rootCMD = &cobra.Command{
	Use:           "newsharvest",
	Short:         "newsharvest",
	Long:          `day-by-day company news harvester`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadEnv(cmd)
		return setupLogger(cmd)
	},
}

// loadEnv reads the .env file. A missing file is not an error.
func loadEnv(cmd *cobra.Command) {
	path, _ := cmd.Flags().GetString("env-file")
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Logger.Debug(".env file not loaded, using environment variables only",
			zap.String("path", path), zap.Error(err))
	}
}

func setupLogger(cmd *cobra.Command) error {
	lvl, _ := cmd.Flags().GetString("log-level")
	if err := log.Logger.ChangeLevel(logSDK.Level(lvl)); err != nil {
		return errors.Wrapf(err, "change log level to %q", lvl)
	}
	return nil
}

func init() {
	rootCMD.PersistentFlags().String("log-level", "info", "`debug/info/warn/error`")
	rootCMD.PersistentFlags().StringP("config", "c", "", "YAML config file path")
	rootCMD.PersistentFlags().String("env-file", ".env", "dotenv file with NOTION_TOKEN / EMAIL_* / TRANSLATE_*")
}

// Execute runs the root command and exits with status 1 on error.
func Execute() {
	if err := rootCMD.Execute(); err != nil {
		log.Logger.Error("newsharvest", zap.Error(err))
		os.Exit(1)
	}
}
