package cmd

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/tphakala/voxrec/cmd/config"
	"github.com/tphakala/voxrec/cmd/devices"
	"github.com/tphakala/voxrec/cmd/serve"
	"github.com/tphakala/voxrec/internal/conf"
	"github.com/tphakala/voxrec/internal/errors"
	"github.com/tphakala/voxrec/internal/logger"
)

// Version is set at build time.
var Version = "dev"

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "voxrec",
		Short:         "Voice-activated audio recorder",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		devices.Command(),
		configcmd.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		return initialize(settings)
	}

	return rootCmd
}

// initialize sets up logging and error telemetry from the loaded settings.
func initialize(settings *conf.Settings) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	centralLogger, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(centralLogger)

	if err := initTelemetry(settings); err != nil {
		// Telemetry is optional, keep running without it.
		centralLogger.Module("main").Warn("error telemetry disabled", logger.Error(err))
	}
	return nil
}

func initTelemetry(settings *conf.Settings) error {
	if !settings.Telemetry.Enabled {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Telemetry.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      settings.Telemetry.Sentry.Environment,
		ServerName:       "", // keep the hostname out of events
		Release:          "voxrec@" + Version,
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	return nil
}

// setupFlags defines the flags shared by every subcommand.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
