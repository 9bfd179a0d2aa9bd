// Package testcontainers manages throwaway PostgreSQL and RabbitMQ
// containers for the e2e suites.
package testcontainers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresConfig holds the credentials of a PostgreSQL test container.
type PostgresConfig struct {
	// User is the PostgreSQL username (default: shelfd)
	User string
	// Password is the PostgreSQL password (default: shelfd)
	Password string
	// Database is the database name (default: shelfsense_test)
	Database string
	// ContainerName names the container (optional)
	ContainerName string
}

// PostgresInfo carries the connection parameters of a started container,
// shaped to feed the backend's DB configuration directly.
type PostgresInfo struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// StartPostgres starts a PostgreSQL container and returns it with its
// connection parameters.
func StartPostgres(ctx context.Context, config *PostgresConfig) (testcontainers.Container, *PostgresInfo, error) {
	if config == nil {
		config = &PostgresConfig{}
	}
	if config.User == "" {
		config.User = "shelfd"
	}
	if config.Password == "" {
		config.Password = "shelfd"
	}
	if config.Database == "" {
		config.Database = "shelfsense_test"
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections"),
			),
			Env: map[string]string{
				"POSTGRES_USER":     config.User,
				"POSTGRES_PASSWORD": config.Password,
				"POSTGRES_DB":       config.Database,
			},
			Name: config.ContainerName,
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return container, &PostgresInfo{
		Host:     host,
		Port:     port.Int(),
		User:     config.User,
		Password: config.Password,
		Database: config.Database,
	}, nil
}
