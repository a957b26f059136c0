package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versadb/migrate"
	"github.com/versadb/migrate/database"
	"github.com/versadb/migrate/workspace"
)

// MigrateTable is created and loaded by the workspace of TestMigrate.
const MigrateTable = "conformance_migrate"

// TestMigrate runs integration-tests between the Migrate layer and database
// implementations. d is opened but need not be connected.
func TestMigrate(t *testing.T, d database.Driver) {
	root := migrateWorkspace(t)

	m, err := migrate.NewWithDatabaseInstance("conformance", d)
	require.NoError(t, err)

	TestMigrateRun(t, m, root)
	TestMigrateVerify(t, m, root)
}

// TestMigrateRun applies root twice. The second run must be a no-op.
func TestMigrateRun(t *testing.T, m *migrate.Migrate, root string) {
	ctx := context.Background()
	cfg := migrate.NewConfig(root)
	cfg.AutoCreateDatabase = true

	report, err := m.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"v0.00", "v1.00", "v1.01"}, report.Applied)
	assertLedger(t, m, "v0.00", "v1.00", "v1.01")

	report, err = m.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Empty(t, report.Applied)
	assertLedger(t, m, "v0.00", "v1.00", "v1.01")
}

// TestMigrateVerify verifies a new version and checks that it is not
// recorded.
func TestMigrateVerify(t *testing.T, m *migrate.Migrate, root string) {
	v, err := workspace.IncrementMinor(root)
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, v.String(), "verify.sql"), "SELECT 1")

	cfg := migrate.NewConfig(root)
	cfg.VerifyOnly = true
	report, err := m.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Equal(t, []string{v.String()}, report.Applied)
	assertLedger(t, m, "v0.00", "v1.00", "v1.01")
}

// migrateWorkspace lays out v0.00, v1.00 with a table and its data file,
// and an empty v1.01.
func migrateWorkspace(t *testing.T) string {
	root := filepath.Join(t.TempDir(), "workspace")
	require.NoError(t, workspace.Create(root))
	v1, err := workspace.IncrementMajor(root)
	require.NoError(t, err)
	_, err = workspace.IncrementMinor(root)
	require.NoError(t, err)

	dir := filepath.Join(root, v1.String())
	writeFile(t, filepath.Join(dir, "tables.sql"), "CREATE TABLE "+MigrateTable+" (id VARCHAR(10), name VARCHAR(50))")
	writeFile(t, filepath.Join(dir, MigrateTable+".csv"), "id,name\n1,one\n2,two\n3,\n")
	return root
}

func assertLedger(t *testing.T, m *migrate.Migrate, want ...string) {
	t.Helper()
	rows, err := m.AppliedVersions(context.Background())
	require.NoError(t, err)

	got := make([]string, 0, len(rows))
	for _, r := range rows {
		got = append(got, r.Version)
		assert.Equal(t, database.StatusSuccessful, r.Status)
		assert.Equal(t, migrate.DefaultAppliedByTool, r.AppliedByTool)
	}
	assert.Equal(t, want, got)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), os.ModePerm))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
