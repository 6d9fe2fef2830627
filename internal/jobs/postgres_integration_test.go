//go:build integration

package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestSQLRecorder_Postgres(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("docparser_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	r, err := OpenSQL(ctx, "postgres", dsn)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Start(ctx, Record{ID: "pg-1", FileName: "a.pdf", ContentType: "pdf", Bytes: 10}))
	require.NoError(t, r.Finish(ctx, "pg-1", Outcome{Status: StatusSucceeded, PageCount: 2}))

	rec, err := r.Get(ctx, "pg-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, rec.Status)
	assert.Equal(t, 2, rec.PageCount)
	require.NotNil(t, rec.FinishedAt)
}
