package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgresmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestEmbeddedFiles(t *testing.T) {
	entries, err := sqlFiles.ReadDir("sql")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestUpDown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgresmodule.Run(ctx, "postgres:15",
		postgresmodule.WithDatabase("test_db"),
		postgresmodule.WithUsername("test_user"),
		postgresmodule.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	v, _, err := Version(conn)
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)

	require.NoError(t, Up(conn))
	require.NoError(t, Up(conn))

	v, dirty, err := Version(conn)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	require.NoError(t, Down(conn, 1))
	v, _, err = Version(conn)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}
