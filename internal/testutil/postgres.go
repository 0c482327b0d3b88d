package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	storedb "github.com/palla98/store-backend/internal/db"
)

// StartPostgres launches a Postgres container with the store schema applied
// and returns an open connection plus the DSN. Cleanup is registered with
// t.Cleanup.
func StartPostgres(t *testing.T) (*sql.DB, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	req := testcontainers.ContainerRequest{
		Image: "postgres:16",
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "store",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, terminateCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer terminateCancel()
		_ = container.Terminate(terminateCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/store?sslmode=disable", host, mappedPort.Port())

	conn := openWithRetry(ctx, t, dsn)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.ExecContext(ctx, storedb.Schema)
	require.NoError(t, err)

	return conn, dsn
}

// The container reports a listening port slightly before Postgres accepts
// authenticated connections, so ping with backoff.
func openWithRetry(ctx context.Context, t *testing.T, dsn string) *sql.DB {
	t.Helper()

	conn, err := sql.Open("postgres", dsn)
	require.NoError(t, err)

	backoff := 100 * time.Millisecond
	deadline := time.Now().Add(30 * time.Second)
	for {
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err = conn.PingContext(pingCtx)
		pingCancel()
		if err == nil {
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("postgres did not become ready: %v", err)
		}
		time.Sleep(backoff)
		if backoff < time.Second {
			backoff *= 2
		}
	}
}
