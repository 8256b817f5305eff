package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"i4.energy/across/cidmodem/modem"
	"i4.energy/across/cidmodem/notify"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cidmodem",
		Short: "Caller ID gateway for AT voice modems",
		Long: `cidmodem watches a serial voice modem for incoming calls, reports their
caller ID and exposes an HTTP API for placing outbound calls.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	fs := rootCmd.PersistentFlags()
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("serial-port", "/dev/ttyACM0", "Serial port to connect to the modem")
	fs.Int("baud-rate", modem.DefaultBaudRate, "Baud rate for serial communication")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Duration("ring-timeout", 10*time.Second, "How long to wait for the next line while ringing")
	fs.StringSlice("cid-required", []string{"NMBR"}, "Caller ID fields required before a call is reported")

	rootCmd.Flags().String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	rootCmd.Flags().Int("max-wait", 10, "Default seconds to wait for a dial result")
	rootCmd.Flags().String("redis-addr", "", "Redis address for publishing caller ID events")
	rootCmd.Flags().String("redis-channel", notify.DefaultChannel, "Redis channel for caller ID events")

	rootCmd.AddCommand(newCallCmd())
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return LoadConfig(WithDefaults(), WithFile(path), WithEnv(), WithFlags(cmd.Flags()))
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func openModem(ctx context.Context, config *Config, logger *slog.Logger, metrics *modem.Metrics, handler modem.Handler) (*modem.Modem, error) {
	builder := modem.NewConfigBuilder().
		WithLogger(logger.With("component", "modem")).
		WithMetrics(metrics).
		WithRingTimeout(config.RingTimeout).
		WithNotify(config.CIDRequired, handler).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		})
	if config.InitCommands != nil {
		builder = builder.WithInitCommands(config.InitCommands...)
	}

	modemConfig, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("create modem config: %w", err)
	}

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		return nil, fmt.Errorf("create modem: %w", err)
	}
	return m, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}

	logger := newLogger(config.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := modem.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := notify.LogHandler(logger.With("component", "notify"))
	var publisher *notify.Publisher
	if config.RedisAddr != "" {
		client := backend.NewClient(&backend.Options{Addr: config.RedisAddr})
		defer client.Close()

		publisher = notify.NewPublisher(client,
			notify.WithChannel(config.RedisChannel),
			notify.WithLogger(logger.With("component", "notify")),
		)
		handler = publisher.Handle
	}

	m, err := openModem(ctx, config, logger, metrics, handler)
	if err != nil {
		logger.Error("Failed to open modem", "error", err)
		return err
	}

	logger.Info("Starting caller ID gateway",
		"serial_port", config.SerialPort,
		"required", m.Required(),
		"redis", config.RedisAddr != "",
	)

	httpServer := &http.Server{
		Addr:              config.BindAddress,
		Handler:           NewServer(logger.With("component", "server"), m, config.CallMaxWait, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := m.Loop(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("modem loop: %w", err)
		}
		return nil
	})

	if publisher != nil {
		g.Go(func() error {
			if err := publisher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("publisher: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", "cause", context.Cause(gctx))

		logger.Info("Closing modem connection")
		if err := m.Close(); err != nil && !errors.Is(err, modem.ErrAlreadyClosed) {
			logger.Error("Failed to close modem", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info("Closing HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to gracefully shutdown server", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Caller ID gateway stopped", "error", err)
		return err
	}
	return nil
}
