// Package backend runs the shelfd API server: the HTTP API, the AMQP
// movement consumer and the storage layer behind the inventory services.
package backend

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

	"gorm.io/gorm"

	"github.com/shelfsense/shelfd/internal/inventory"
	"github.com/shelfsense/shelfd/internal/inventory/memory"
	"github.com/shelfsense/shelfd/pkg/metrics"
)

// Storage engine names accepted by ServerConfig.StorageEngine.
const (
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

// Server wires storage, the inventory services, the AMQP consumer and the
// HTTP API together.
type Server struct {
	logger     *slog.Logger
	db         *gorm.DB
	consumer   *Consumer
	httpServer *http.Server
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// StorageEngine selects "postgres" or "memory".
	StorageEngine string

	// Database configuration (postgres engine only)
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int

	// RabbitMQ configuration. Leaving the URL empty disables the consumer;
	// movements then arrive over HTTP only.
	RabbitMQURL string
	QueueName   string

	// HTTP configuration
	HTTPPort int

	// MetricsNamespace prefixes all Prometheus metric names.
	MetricsNamespace string
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.HTTPPort <= 0 {
		return nil, errors.New("http port must be positive")
	}

	switch cfg.StorageEngine {
	case EngineMemory:
	case EnginePostgres, "":
		cfg.StorageEngine = EnginePostgres
		if cfg.DBHost == "" {
			return nil, errors.New("database host cannot be empty")
		}
		if cfg.DBPort <= 0 {
			return nil, errors.New("database port must be positive")
		}
		if cfg.DBUser == "" {
			return nil, errors.New("database user cannot be empty")
		}
		if cfg.DBName == "" {
			return nil, errors.New("database name cannot be empty")
		}
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.StorageEngine)
	}

	if cfg.RabbitMQURL != "" && cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty when rabbitmq is configured")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the backend server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting backend server", "storage_engine", s.config.StorageEngine)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	namespace := s.config.MetricsNamespace
	if namespace == "" {
		namespace = "shelfd"
	}
	backendMetrics := metrics.NewBackendMetrics(namespace)

	store, err := s.openStore(backendMetrics)
	if err != nil {
		return err
	}

	catalog, err := inventory.NewCatalog(s.logger, store)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	ledger, err := inventory.NewLedger(s.logger, catalog, store, backendMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}
	shelves, err := inventory.NewShelfService(s.logger, store, store, backendMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize shelf service: %w", err)
	}
	auditor, err := inventory.NewAuditor(s.logger, store, backendMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize auditor: %w", err)
	}

	if s.config.RabbitMQURL != "" {
		consumer, err := NewConsumer(&ConsumerConfig{
			Logger:      s.logger,
			Ledger:      ledger,
			RabbitMQURL: s.config.RabbitMQURL,
			QueueName:   s.config.QueueName,
			Metrics:     backendMetrics,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize consumer: %w", err)
		}
		s.consumer = consumer

		if err := s.consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start consumer: %w", err)
		}
	} else {
		s.logger.Info("rabbitmq not configured, consumer disabled")
	}

	api, err := NewAPI(&APIConfig{
		Logger:  s.logger,
		Ledger:  ledger,
		Catalog: catalog,
		Shelves: shelves,
		Auditor: auditor,
		Metrics: backendMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize http api: %w", err)
	}

	addr := fmt.Sprintf(":%d", s.config.HTTPPort)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting http server", "address", addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("http server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("backend server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("http server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

// openStore builds the configured storage engine.
func (s *Server) openStore(m *metrics.BackendMetrics) (inventory.Store, error) {
	if s.config.StorageEngine == EngineMemory {
		s.logger.Info("using in-memory storage")
		return memory.NewStore(), nil
	}

	db, err := NewDB(&DBConfig{
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db
	return NewStore(db, m), nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down backend server")

	var shutdownErr error

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.logger.Info("stopping http server")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to stop http server", "error", err)
			shutdownErr = fmt.Errorf("http server shutdown error: %w", err)
		}
	}

	if s.consumer != nil {
		s.logger.Info("stopping consumer")
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; consumer shutdown error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("consumer shutdown error: %w", err)
			}
		}
	}

	if s.db != nil {
		if err := CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; database close error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("database close error: %w", err)
			}
		}
	}

	if shutdownErr != nil {
		s.logger.Error("backend server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("backend server shutdown completed successfully")
	return nil
}
