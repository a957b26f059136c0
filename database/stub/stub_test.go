package stub_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versadb/migrate/database"
	"github.com/versadb/migrate/database/stub"
	dt "github.com/versadb/migrate/database/testing"
)

func Test(t *testing.T) {
	s := &stub.Stub{}
	d, err := s.Open("stub://conformance", nil)
	if err != nil {
		t.Fatal(err)
	}
	dt.Test(t, d)
}

func TestMissingDatabase(t *testing.T) {
	s := &stub.Stub{}
	d, err := s.Open("stub://conformance?x-exists=false", nil)
	require.NoError(t, err)
	// TestConnect creates it
	dt.Test(t, d)
}

func TestMigrate(t *testing.T) {
	s := &stub.Stub{}
	d, err := s.Open("stub://migrate", nil)
	require.NoError(t, err)
	dt.TestMigrate(t, d)
}

func TestOpen(t *testing.T) {
	d, err := database.Open("stub", "stub://sales?x-transactional-ddl=false", &database.Config{MetaTableName: "ledger"})
	require.NoError(t, err)
	st := d.(*stub.Stub)

	assert.Equal(t, "sales", st.DatabaseName())
	assert.False(t, st.Capabilities().TransactionalDDL)
	assert.Equal(t, "ledger", st.Config.Table())

	_, err = database.Open("stub", "stub://sales?x-exists=maybe", nil)
	assert.Error(t, err)
}

func TestNonTransactionalDDL(t *testing.T) {
	ctx := context.Background()
	st := stub.New("db", nil)
	st.Caps.TransactionalDDL = false
	require.NoError(t, st.Connect(ctx))

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "CREATE TABLE Kept (id INT)"))
	require.NoError(t, tx.Rollback())

	assert.True(t, st.HasTable("kept"), "DDL survives a rollback without transactional DDL")
	assert.Equal(t, []string{"CREATE TABLE Kept (id INT)"}, st.RolledBack)
	assert.True(t, st.EqualSequence(nil))
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	st := stub.New("db", nil)
	st.FailOn = []string{"boom"}
	require.NoError(t, st.Connect(ctx))

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	var dbErr database.Error
	require.ErrorAs(t, tx.Exec(ctx, "SELECT boom"), &dbErr)
	require.NoError(t, tx.Rollback())
	assert.Error(t, tx.Commit(), "a finished transaction cannot be committed")
}
