package entity_test

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/machine-hub/server/internal/entity"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresRepository(t *testing.T) {
	if os.Getenv("MACHINEHUB_PG_TESTS") != "1" {
		t.Skip("Set MACHINEHUB_PG_TESTS=1 to run PostgreSQL container tests")
	}
	if runtime.GOOS != "linux" {
		t.Skip("Skipping PostgreSQL container test on non-Linux OS")
	}

	dsn := startPostgres(t)

	require.NoError(t, entity.MigrateUp(dsn), "Setup: migrations should apply")
	require.NoError(t, entity.MigrateUp(dsn), "Migrating twice should be a no-op")

	repo, err := entity.NewPostgres(context.Background(), dsn)
	require.NoError(t, err, "Setup: NewPostgres should connect")
	testRepository(t, repo)

	require.NoError(t, entity.MigrateDown(dsn), "Migrations should revert")
}

func startPostgres(t *testing.T) string {
	t.Helper()

	const (
		user     = "postgres"
		password = "postgres"
		name     = "machinehub"
	)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
				"POSTGRES_DB":       name,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Setup: failed to start PostgreSQL container")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Teardown: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err, "Setup: failed to get container host")
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err, "Setup: failed to get mapped port")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port.Port(), name)
}
