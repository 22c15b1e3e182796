// Package dbtest starts a disposable PostgreSQL for store tests.
package dbtest

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

const (
	image    = "postgres:16-alpine"
	user     = "fourmitrack"
	password = "fourmitrack"
	dbName   = "fourmitrack_test"
)

// NewClient starts a PostgreSQL container, applies every migration and
// returns a client bound to it. The test is skipped when no container
// runtime is reachable or when running with -short.
func NewClient(t *testing.T) database.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
				"POSTGRES_DB":       dbName,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	client, err := database.NewConnection(ctx, &config.PostgreSQL{
		Host:         host,
		Port:         port.Int(),
		User:         user,
		Password:     password,
		DBName:       dbName,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		MaxLifetime:  5,
		MaxIdleTime:  1,
	}, zaptest.NewLogger(t), true)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
