package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shelfsense/shelfd/internal/simulator"
	"github.com/shelfsense/shelfd/pkg/metrics"
)

var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Run the scale-device simulator",
	Long: `Run the scale-device simulator that:
- Generates synthetic weight movement payloads (single and batch)
- Publishes them to RabbitMQ like real shelf firmware would
- Supports multiple concurrent simulated devices`,
	RunE: runSimulator,
}

func init() {
	rootCmd.AddCommand(simulatorCmd)

	// Simulator-specific flags
	simulatorCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	simulatorCmd.Flags().String("queue-name", "weight-movements", "RabbitMQ queue name for movement payloads")
	simulatorCmd.Flags().Int("device-count", 3, "Number of concurrent simulated devices")
	simulatorCmd.Flags().Duration("interval", 5*time.Second, "Interval between movements per device")

	// Bind flags to viper
	_ = viper.BindPFlag("simulator.rabbitmq.url", simulatorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("simulator.rabbitmq.queue_name", simulatorCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("simulator.device_count", simulatorCmd.Flags().Lookup("device-count"))
	_ = viper.BindPFlag("simulator.interval", simulatorCmd.Flags().Lookup("interval"))
}

func runSimulator(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting simulator service")

	config := &simulator.ServerConfig{
		Logger:      logger,
		RabbitMQURL: viper.GetString("simulator.rabbitmq.url"),
		QueueName:   viper.GetString("simulator.rabbitmq.queue_name"),
		DeviceCount: viper.GetInt("simulator.device_count"),
		Interval:    viper.GetDuration("simulator.interval"),
		Metrics:     metrics.NewSimulatorMetrics("shelfd"),
		MQMetrics:   metrics.NewMQMetrics("shelfd"),
	}

	server, err := simulator.NewServer(config)
	if err != nil {
		logger.Error("failed to create simulator server", "error", err)
		return err
	}

	logger.Info("simulator server configuration",
		"rabbitmq_url", config.RabbitMQURL,
		"queue", config.QueueName,
		"device_count", config.DeviceCount,
		"interval", config.Interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("simulator server error", "error", err)
		return err
	}

	logger.Info("simulator server stopped")
	return nil
}
