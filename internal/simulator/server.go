package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shelfsense/shelfd/pkg/metrics"
	"github.com/shelfsense/shelfd/pkg/mq"
)

// ServerConfig holds the configuration for the simulator server.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// RabbitMQURL is the connection string for RabbitMQ
	RabbitMQURL string
	// QueueName is the movement queue to publish to
	QueueName string
	// Interval is the time between movements per device
	Interval time.Duration
	// DeviceCount is the number of concurrent simulated devices
	DeviceCount int
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.SimulatorMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations
	MQMetrics *metrics.MQMetrics
}

// Server manages a fleet of device simulators.
type Server struct {
	logger     *slog.Logger
	config     *ServerConfig
	simulators []*Simulator
	clients    []*mq.Client
	wg         sync.WaitGroup
	metrics    *metrics.SimulatorMetrics
}

var (
	errInvalidDeviceCount = errors.New("device count must be greater than 0")
	errInvalidInterval    = errors.New("interval must be greater than 0")
	errLoggerRequired     = errors.New("logger is required")
)

// NewServer creates a simulator server with one MQ client per device.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.DeviceCount <= 0 {
		return nil, errInvalidDeviceCount
	}
	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	s := &Server{
		config:     cfg,
		simulators: make([]*Simulator, 0, cfg.DeviceCount),
		clients:    make([]*mq.Client, 0, cfg.DeviceCount),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}

	for i := 0; i < cfg.DeviceCount; i++ {
		client := mq.New(cfg.QueueName, cfg.RabbitMQURL, cfg.Logger.With(
			slog.String("component", "mq-client"),
			slog.Int("device_id", i),
		))
		if cfg.MQMetrics != nil {
			client.SetMetrics(cfg.MQMetrics)
		}

		sim, err := NewSimulator(client)
		if err != nil {
			return nil, fmt.Errorf("failed to create device simulator %d: %w", i, err)
		}
		if cfg.Metrics != nil {
			sim.SetMetrics(cfg.Metrics)
		}

		s.clients = append(s.clients, client)
		s.simulators = append(s.simulators, sim)

		s.logger.Info("created device simulator",
			"device_id", i,
			"queue", cfg.QueueName,
			"device_uuid", sim.Device.DeviceID,
		)
	}

	return s, nil
}

// Run starts all simulators and blocks until a shutdown signal arrives.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	for i, sim := range s.simulators {
		s.wg.Add(1)
		go s.runSimulator(ctx, i, sim)
	}

	s.logger.Info("simulator server started",
		"device_count", len(s.simulators),
		"interval", s.config.Interval,
	)

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	s.logger.Info("waiting for simulators to shut down...")
	s.wg.Wait()

	s.logger.Info("closing MQ clients...")
	s.closeClients()

	s.logger.Info("simulator server stopped")
	return nil
}

// runSimulator publishes movements for one device at the configured interval.
func (s *Server) runSimulator(ctx context.Context, id int, sim *Simulator) {
	defer s.wg.Done()

	if s.metrics != nil {
		s.metrics.ActiveSimulators.Inc()
		defer s.metrics.ActiveSimulators.Dec()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	simLogger := s.logger.With(slog.Int("device_id", id))
	simLogger.Info("device simulator started")

	for {
		select {
		case <-ctx.Done():
			simLogger.Info("device simulator shutting down")
			return

		case <-ticker.C:
			if err := sim.PublishMovement(ctx); err != nil {
				simLogger.Error("failed to publish movement",
					"error", err,
				)
				// Continue on error, the device keeps reporting
				continue
			}

			simLogger.Debug("movement published")
		}
	}
}

// closeClients closes all MQ clients gracefully.
func (s *Server) closeClients() {
	var wg sync.WaitGroup

	for i, client := range s.clients {
		wg.Add(1)
		go func(id int, c *mq.Client) {
			defer wg.Done()

			if err := c.Close(); err != nil {
				s.logger.Error("failed to close MQ client",
					"device_id", id,
					"error", err,
				)
				return
			}

			s.logger.Info("MQ client closed", "device_id", id)
		}(i, client)
	}

	wg.Wait()
}

// Shutdown closes the MQ clients without waiting for a signal.
func (s *Server) Shutdown() error {
	s.logger.Info("shutdown requested")
	s.closeClients()
	return nil
}
