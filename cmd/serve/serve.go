// Package serve runs the recorder with its HTTP control plane.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/voxrec/internal/api"
	"github.com/tphakala/voxrec/internal/capture"
	"github.com/tphakala/voxrec/internal/conf"
	"github.com/tphakala/voxrec/internal/datastore"
	"github.com/tphakala/voxrec/internal/events"
	"github.com/tphakala/voxrec/internal/logger"
	"github.com/tphakala/voxrec/internal/mqtt"
	"github.com/tphakala/voxrec/internal/observability"
	"github.com/tphakala/voxrec/internal/recorder"
)

const (
	busShutdownTimeout = 5 * time.Second
	mqttConnectTimeout = 10 * time.Second
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recorder and its HTTP control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().StringP("listen", "l", ":8080", "Control plane listen address")
	cmd.Flags().String("device", "", "Capture device name (default: system default input)")
	cmd.Flags().StringP("output", "o", "capture.wav", "Output WAV file path")

	bindings := map[string]string{
		"webserver.listen": "listen",
		"recording.device": "device",
		"recording.output": "output",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// RecordingConfig converts the recording settings to the detector's
// initial configuration.
func RecordingConfig(s conf.RecordingSettings) recorder.RecordingConfig {
	return recorder.RecordingConfig{
		SampleRate:     float64(s.SampleRate),
		BitDepth:       s.BitDepth,
		Channels:       s.Channels,
		OutputPath:     s.Output,
		StartThreshold: s.StartThreshold,
		StopThreshold:  s.StopThreshold,
		StopTimeout:    s.StopTimeout,
		DeviceName:     s.Device,
	}
}

// Run builds every component, serves until ctx is cancelled and then shuts
// down in order: the active session is finalized first.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("main")
	defer func() {
		sentry.Flush(2 * time.Second)
		_ = logger.Global().Close()
	}()

	m, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	store, err := recorder.NewConfigStore(RecordingConfig(settings.Recording))
	if err != nil {
		return fmt.Errorf("invalid recording settings: %w", err)
	}
	detector := recorder.NewDetector(store, recorder.WithMetrics(m.Recorder))

	var (
		consumers      []events.EventConsumer
		controllerOpts = []api.Option{api.WithMetricsHandler(m.Handler())}
	)

	if settings.History.Enabled {
		history, err := datastore.Open(settings.History.Path, datastore.WithMetrics(m.Datastore))
		if err != nil {
			return fmt.Errorf("failed to open session history: %w", err)
		}
		defer func() {
			if err := history.Close(); err != nil {
				log.Warn("failed to close session history", logger.Error(err))
			}
		}()
		consumers = append(consumers, history)
		controllerOpts = append(controllerOpts, api.WithHistory(history))
	}

	if settings.MQTT.Enabled {
		client := mqtt.NewClient(mqttConfig(settings.MQTT), m.MQTT)
		connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		if err := client.Connect(connectCtx); err != nil {
			log.Warn("MQTT broker unavailable, session events will not be published until it connects",
				logger.Error(err))
		}
		cancel()
		defer client.Disconnect()
		consumers = append(consumers, mqtt.NewPublisher(client, settings.MQTT.Topic))
	}

	// The bus drains before its consumers are closed.
	bus := events.New(events.Config{Metrics: m.EventBus})
	defer func() {
		if err := bus.Shutdown(busShutdownTimeout); err != nil {
			log.Warn("event bus shutdown incomplete", logger.Error(err))
		}
	}()
	for _, consumer := range consumers {
		if err := bus.RegisterConsumer(consumer); err != nil {
			return err
		}
	}
	detector.Subscribe(bus.Handler())

	backend, err := capture.NewMalgoBackend()
	if err != nil {
		return fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	engine := capture.NewEngine(detector, backend, capture.WithEngineMetrics(m.Capture))

	server, err := api.NewServer(api.ConfigFromSettings(settings), func(e *echo.Echo) *api.Controller {
		return api.NewController(e, detector, engine, controllerOpts...)
	})
	if err != nil {
		_ = engine.Close()
		return err
	}

	log.Info("voxrec ready",
		logger.String("listen", settings.WebServer.Listen),
		logger.String("config", store.Snapshot().String()))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		rotateOnSignal(gctx, hup, logger.Global().Rotate, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		// Finalize the recording before the listener goes away.
		if err := engine.Close(); err != nil {
			log.Warn("capture engine close failed", logger.Error(err))
		}
		return server.Shutdown(context.Background())
	})

	return g.Wait()
}

// rotateOnSignal rotates the log files on every signal until ctx is done.
func rotateOnSignal(ctx context.Context, sig <-chan os.Signal, rotate func() error, log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			if err := rotate(); err != nil {
				log.Warn("log rotation failed", logger.Error(err))
				continue
			}
			log.Info("log files rotated")
		}
	}
}

func mqttConfig(s conf.MQTTSettings) mqtt.Config {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.Broker
	cfg.ClientID = s.ClientID
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Topic = s.Topic
	cfg.Retain = s.Retain
	return cfg
}
