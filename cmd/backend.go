package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shelfsense/shelfd/internal/backend"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run the backend server",
	Long: `Run the backend server that:
- Serves the HTTP API for devices, products, shelves and readings
- Consumes movement payloads from RabbitMQ
- Persists the weight ledger to PostgreSQL (or in-memory storage)
- Exposes Prometheus metrics on /metrics`,
	RunE: runBackend,
}

func init() {
	rootCmd.AddCommand(backendCmd)

	// Backend-specific flags
	backendCmd.Flags().String("storage-engine", "postgres", "storage engine (postgres, memory)")
	backendCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	backendCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	backendCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	backendCmd.Flags().String("db-password", "", "PostgreSQL password")
	backendCmd.Flags().String("db-name", "shelfsense", "PostgreSQL database name")
	backendCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	backendCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL (empty disables the consumer)")
	backendCmd.Flags().String("queue-name", "weight-movements", "RabbitMQ queue name for movement payloads")
	backendCmd.Flags().Int("http-port", 8080, "HTTP server port")

	// Bind flags to viper
	_ = viper.BindPFlag("backend.storage.engine", backendCmd.Flags().Lookup("storage-engine"))
	_ = viper.BindPFlag("backend.db.host", backendCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("backend.db.port", backendCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("backend.db.user", backendCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("backend.db.password", backendCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("backend.db.name", backendCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("backend.db.sslmode", backendCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("backend.rabbitmq.url", backendCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("backend.rabbitmq.queue_name", backendCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("backend.http.port", backendCmd.Flags().Lookup("http-port"))
}

func runBackend(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting backend service")

	config := &backend.ServerConfig{
		Logger:        logger,
		StorageEngine: viper.GetString("backend.storage.engine"),
		DBHost:        viper.GetString("backend.db.host"),
		DBPort:        viper.GetInt("backend.db.port"),
		DBUser:        viper.GetString("backend.db.user"),
		DBPassword:    viper.GetString("backend.db.password"),
		DBName:        viper.GetString("backend.db.name"),
		DBSSLMode:     viper.GetString("backend.db.sslmode"),
		RabbitMQURL:   viper.GetString("backend.rabbitmq.url"),
		QueueName:     viper.GetString("backend.rabbitmq.queue_name"),
		HTTPPort:      viper.GetInt("backend.http.port"),
	}

	server, err := backend.NewServer(config)
	if err != nil {
		logger.Error("failed to create backend server", "error", err)
		return err
	}

	logger.Info("backend server configuration",
		"storage_engine", config.StorageEngine,
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"rabbitmq_url", config.RabbitMQURL,
		"queue", config.QueueName,
		"http_port", config.HTTPPort,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("backend server error", "error", err)
		return err
	}

	logger.Info("backend server stopped")
	return nil
}
