// Package testing has the database tests.
// All database drivers must pass the Test function.
// This lives in it's own package so it stays a test dependency.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versadb/migrate/database"
)

// BulkTable is created by TestExec and loaded by TestBulkLoad.
const BulkTable = "conformance_bulk"

// Test runs tests against database implementations. d must be freshly
// opened against a database without a ledger.
func Test(t *testing.T, d database.Driver) {
	TestConnect(t, d) // test first
	TestLedger(t, d)
	TestExec(t, d)
	TestBulkLoad(t, d)
	TestRollback(t, d)
}

func TestConnect(t *testing.T, d database.Driver) {
	ctx := context.Background()

	exists, err := d.DatabaseExists(ctx)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, d.CreateDatabase(ctx))
		exists, err = d.DatabaseExists(ctx)
		require.NoError(t, err)
		require.True(t, exists, "database %s must exist after CreateDatabase", d.DatabaseName())
	}
	require.NoError(t, d.Connect(ctx))
}

func TestLedger(t *testing.T, d database.Driver) {
	ctx := context.Background()

	require.NoError(t, d.EnsureLedger(ctx))
	// again, must not fail
	require.NoError(t, d.EnsureLedger(ctx))

	rows, err := d.AppliedVersions(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)

	now := time.Now().UTC().Truncate(time.Second)
	want := []database.AppliedVersion{
		{Version: "v0.00", AppliedOn: now, AppliedByTool: "conformance", AppliedByToolVersion: "1.0.0",
			Checksum: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Status: database.StatusSuccessful, DurationMs: 12},
		{Version: "v1.00", AppliedOn: now, AppliedByTool: "conformance", AppliedByToolVersion: "1.0.0",
			Checksum: "abc", Status: database.StatusSuccessful, DurationMs: 0},
	}

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	for _, v := range want {
		require.NoError(t, tx.RecordVersion(ctx, v))
	}
	require.NoError(t, tx.Commit())

	rows, err = d.AppliedVersions(ctx)
	require.NoError(t, err)
	require.Len(t, rows, len(want))
	for i, got := range rows {
		assert.Equal(t, want[i].Version, got.Version)
		assert.Equal(t, want[i].AppliedByTool, got.AppliedByTool)
		assert.Equal(t, want[i].AppliedByToolVersion, got.AppliedByToolVersion)
		assert.Equal(t, want[i].Checksum, got.Checksum)
		assert.Equal(t, want[i].Status, got.Status)
		assert.Equal(t, want[i].DurationMs, got.DurationMs)
		assert.WithinDuration(t, want[i].AppliedOn, got.AppliedOn, 2*time.Second)
		assert.NotEmpty(t, got.AppliedByUser, "AppliedByUser defaults to the session user")
	}
}

func TestExec(t *testing.T, d database.Driver) {
	ctx := context.Background()

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "CREATE TABLE "+BulkTable+" (id VARCHAR(10), name VARCHAR(50))"))
	require.NoError(t, tx.Commit())

	tx, err = d.Begin(ctx)
	require.NoError(t, err)
	assert.Error(t, tx.Exec(ctx, "THIS IS NOT SQL"))
	require.NoError(t, tx.Rollback())
}

func TestBulkLoad(t *testing.T, d database.Driver) {
	ctx := context.Background()

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	err = tx.BulkLoad(ctx, "conformance_missing", []string{"id"}, [][]any{{"1"}})
	require.Error(t, err)
	assert.True(t, database.IsDestinationNotFound(err), "expected DestinationNotFoundError, got %v", err)
	assert.Equal(t, "cannot access destination table 'conformance_missing'", err.Error())
	require.NoError(t, tx.Rollback())

	tx, err = d.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.BulkLoad(ctx, BulkTable, []string{"id", "name"}, [][]any{{"1", "Alice"}, {"2", nil}}))
	require.NoError(t, tx.BulkLoad(ctx, BulkTable, []string{"id", "name"}, [][]any{{"3", "Carol"}}))
	require.NoError(t, tx.Commit())
}

func TestRollback(t *testing.T, d database.Driver) {
	ctx := context.Background()

	before, err := d.AppliedVersions(ctx)
	require.NoError(t, err)

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.RecordVersion(ctx, database.AppliedVersion{
		Version: "v9.00", AppliedOn: time.Now().UTC(), Status: database.StatusSuccessful,
	}))
	require.NoError(t, tx.Rollback())

	after, err := d.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after), "rolled back ledger rows must not persist")
}
