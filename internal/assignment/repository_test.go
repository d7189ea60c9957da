package assignment

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgresmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"leadrouter/pkg/migrations"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
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

	db, err := sql.Open("postgres", conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, migrations.Up(conn))
	return db
}

func TestPostgresRepository_LookupMissing(t *testing.T) {
	repo := NewPostgresRepository(setupPostgres(t))

	a, err := repo.Lookup(context.Background(), "unknown")
	assert.Nil(t, a)
	assert.True(t, IsNoBroker(err))
}

func TestPostgresRepository_AssignLookupRelease(t *testing.T) {
	repo := NewPostgresRepository(setupPostgres(t))
	ctx := context.Background()

	require.NoError(t, repo.Assign(ctx, BrokerAssignment{
		ConversationID:    "42",
		BrokerID:          "b-7",
		BrokerName:        "Dana",
		PersonaAttributes: map[string]interface{}{"tone": "warm"},
	}))

	a, err := repo.Lookup(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "b-7", a.BrokerID)
	assert.Equal(t, "Dana", a.BrokerName)
	assert.Equal(t, "warm", a.PersonaAttributes["tone"])

	engaged, err := repo.Engaged(ctx, "42")
	require.NoError(t, err)
	assert.True(t, engaged)

	require.NoError(t, repo.ReleaseEngagement(ctx, "42", "handoff"))
	engaged, err = repo.Engaged(ctx, "42")
	require.NoError(t, err)
	assert.False(t, engaged)

	// second release is a no-op
	require.NoError(t, repo.ReleaseEngagement(ctx, "42", "handoff"))
	require.NoError(t, repo.ReleaseEngagement(ctx, "never-locked", "escalation"))
}

func TestPostgresRepository_ReassignRelocks(t *testing.T) {
	repo := NewPostgresRepository(setupPostgres(t))
	ctx := context.Background()

	require.NoError(t, repo.Assign(ctx, BrokerAssignment{ConversationID: "9", BrokerID: "b-1"}))
	require.NoError(t, repo.ReleaseEngagement(ctx, "9", "escalation"))
	require.NoError(t, repo.Assign(ctx, BrokerAssignment{ConversationID: "9", BrokerID: "b-2"}))

	a, err := repo.Lookup(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, "b-2", a.BrokerID)
	assert.Empty(t, a.PersonaAttributes)

	engaged, err := repo.Engaged(ctx, "9")
	require.NoError(t, err)
	assert.True(t, engaged)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Lookup(ctx, "42")
	assert.True(t, IsNoBroker(err))

	s.Put(BrokerAssignment{ConversationID: "42", BrokerID: "b-1"})
	a, err := s.Lookup(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "b-1", a.BrokerID)

	require.NoError(t, s.ReleaseEngagement(ctx, "42", "handoff"))
	reason, ok := s.ReleaseReason("42")
	assert.True(t, ok)
	assert.Equal(t, "handoff", reason)
}
