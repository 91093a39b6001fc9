package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"aetheris-dashboard/internal/api"
	"aetheris-dashboard/internal/config"
	"aetheris-dashboard/internal/dashboard"
	"aetheris-dashboard/internal/database"
	"aetheris-dashboard/internal/handler"
	"aetheris-dashboard/internal/health"
	"aetheris-dashboard/internal/logging"
	"aetheris-dashboard/internal/session"
	"aetheris-dashboard/internal/store"
	"aetheris-dashboard/internal/stream"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aetheris-dashboard",
		Short: "Aetheris clinical operations dashboard",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(themeCmd())
	rootCmd.AddCommand(healthCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(config.LoadConfig())
		},
	}
}

func themeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme [dark|light]",
		Short:     "Show or set the persisted theme preference",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{database.ThemeDark, database.ThemeLight},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			repo, err := database.NewRepository(cfg.DBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			if len(args) == 1 {
				if err := repo.SetTheme(args[0]); err != nil {
					return err
				}
			}
			theme, err := repo.GetTheme()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme)
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the backend once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			client := api.NewClient(cfg.APIURL, cfg.HealthTimeout, nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HealthTimeout)
			defer cancel()
			if err := client.Health(ctx); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: offline (%v)\n", cfg.APIURL, err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: online\n", cfg.APIURL)
			return nil
		},
	}
}

func runServe(cfg *config.Config) error {
	logger := logging.New(cfg.LogLevel, cfg.LogFile, cfg.LogToConsole)
	defer logger.Sync()
	logger.Info("Starting Aetheris dashboard service...")
	logConfiguration(logger, cfg)

	repo, err := database.NewRepository(cfg.DBPath)
	if err != nil {
		logger.Error("Failed to initialize database", zap.Error(err))
		return err
	}
	defer repo.Close()

	client := api.NewClient(cfg.APIURL, cfg.RequestTimeout, logger)
	st := store.New(client,
		store.WithLogger(logger),
		store.WithAcknowledgedBy(cfg.AcknowledgedBy),
		store.WithWriteTimeout(cfg.RequestTimeout),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, closing services...")
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup

	if cfg.KafkaBrokers != "" {
		producer, err := handler.NewKafkaProducer(cfg.KafkaBrokers, cfg.MQTTClientID)
		if err != nil {
			logger.Error("Failed to create Kafka producer, alert journal disabled", zap.Error(err))
		} else {
			journal := handler.NewAlertJournal(producer, cfg.AlertEventsTopic, logger)
			unsubscribe := st.Subscribe(journal.Observe)
			wg.Add(1)
			go func() {
				defer wg.Done()
				journal.RunDeliveryReports(ctx)
				unsubscribe()
				journal.Close()
			}()
		}
	}

	if cfg.MQTTBroker != "" {
		mqttClient, err := handler.InitializeMQTT(cfg, st, logger)
		if err != nil {
			logger.Error("Failed to initialize MQTT client, control feed disabled", zap.Error(err))
		} else {
			defer mqttClient.Disconnect(250)
		}
	}

	history := stream.NewHistory(cfg.VitalsHistorySize)
	sessions := session.NewManager(st, history, session.StreamDialer(stream.Options{
		BaseURL:           cfg.WSURL,
		ReconnectDelay:    cfg.ReconnectDelay,
		MaxReconnectDelay: cfg.ReconnectMaxDelay,
		Backoff:           cfg.ReconnectBackoff,
		MaxAttempts:       cfg.ReconnectMaxAttempts,
		Logger:            logger,
	}), logger)

	monitor := health.NewMonitor(client.Health, cfg.HealthInterval, cfg.HealthTimeout, logger)
	if err := monitor.Start(); err != nil {
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := st.Init(ctx); err != nil {
			logger.Warn("Initial load incomplete, use reload to retry", zap.Error(err))
		}
	}()

	srv := dashboard.New(st, sessions, history, client, repo, monitor, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx, cfg.DashboardAddr); err != nil {
			logger.Error("Dashboard server stopped", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("🚀 Service started successfully.")
	wg.Wait()

	sessions.Close()
	monitor.Stop()
	st.Wait()
	srv.Wait()
	logger.Info("All services closed. Exiting.")
	return nil
}

func logConfiguration(logger *zap.Logger, cfg *config.Config) {
	logger.Info("--- Service Configuration ---")
	logger.Info("Backend", zap.String("api_url", cfg.APIURL), zap.String("ws_url", cfg.WSURL))
	logger.Info("Reconnect",
		zap.Duration("delay", cfg.ReconnectDelay),
		zap.Duration("max_delay", cfg.ReconnectMaxDelay),
		zap.Float64("backoff", cfg.ReconnectBackoff),
		zap.Int("max_attempts", cfg.ReconnectMaxAttempts))
	logger.Info("Dashboard", zap.String("addr", cfg.DashboardAddr), zap.String("db_path", cfg.DBPath))
	logger.Info("Kafka Brokers", zap.String("brokers", setOrNot(cfg.KafkaBrokers, cfg.KafkaBrokers)))
	logger.Info("MQTT Broker URL", zap.String("broker", setOrNot(cfg.MQTTBroker, cfg.MQTTBroker)))
	logger.Info("MQTT Password", zap.String("value", setOrNot(cfg.MQTTPassword, "[SET]")))
	logger.Info("---------------------------")
}

func setOrNot(value, shown string) string {
	if value == "" {
		return "[NOT SET]"
	}
	return shown
}
