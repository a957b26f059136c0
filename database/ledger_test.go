package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerStatements(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "ledger" (version, applied_on_utc, applied_by_user, applied_by_tool, applied_by_tool_version, checksum, status, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		LedgerInsert(`"ledger"`, QuestionMark))
	assert.Equal(t,
		`SELECT version, applied_on_utc, applied_by_user, applied_by_tool, applied_by_tool_version, checksum, status, duration_ms FROM "ledger" ORDER BY sequence_id`,
		LedgerSelect(`"ledger"`))
}

func TestAppliedVersionValues(t *testing.T) {
	local := time.FixedZone("CET", 3600)
	v := AppliedVersion{
		Version:              "v1.00",
		AppliedOn:            time.Date(2026, 3, 1, 10, 0, 0, 0, local),
		AppliedByUser:        "alice",
		AppliedByTool:        "migrate",
		AppliedByToolVersion: "1.2.3",
		Checksum:             "abc",
		Status:               StatusSuccessful,
		DurationMs:           42,
	}
	values := v.Values()
	require.Len(t, values, len(LedgerColumns))
	assert.Equal(t, "v1.00", values[0])
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), values[1])
	assert.Equal(t, int64(42), values[7])
}

func TestScanLedger(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	appliedOn := time.Date(2026, 3, 1, 9, 0, 0, 500, time.UTC)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(LedgerColumns).
		AddRow("v0.00", appliedOn, "alice", "migrate", "1.2.3", "abc", StatusSuccessful, int64(7)).
		AddRow("v1.00", "2026-03-01T09:00:00.0000005Z", nil, "migrate", nil, nil, StatusSuccessful, nil).
		AddRow("v1.01", []byte("2026-03-01 09:00:00.0000005"), "bob", "migrate", "", "", StatusSuccessful, int64(0)))

	rows, err := db.Query("SELECT")
	require.NoError(t, err)
	versions, err := ScanLedger(rows)
	require.NoError(t, err)
	require.Len(t, versions, 3)

	assert.Equal(t, "v0.00", versions[0].Version)
	assert.Equal(t, "alice", versions[0].AppliedByUser)
	assert.Equal(t, int64(7), versions[0].DurationMs)
	for _, v := range versions {
		assert.True(t, appliedOn.Equal(v.AppliedOn), "%s applied on %s", v.Version, v.AppliedOn)
	}
	assert.Empty(t, versions[1].AppliedByUser)
	assert.Empty(t, versions[1].Checksum)
	assert.Equal(t, "bob", versions[2].AppliedByUser)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanLedgerBadTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(LedgerColumns).
		AddRow("v0.00", "yesterday", "alice", "migrate", nil, nil, StatusSuccessful, nil))

	rows, err := db.Query("SELECT")
	require.NoError(t, err)
	_, err = ScanLedger(rows)
	assert.ErrorContains(t, err, `cannot parse ledger timestamp "yesterday"`)
}

func TestLedgerTimeNull(t *testing.T) {
	var lt ledgerTime
	require.NoError(t, lt.Scan(nil))
	assert.True(t, lt.IsZero())
	assert.Error(t, lt.Scan(42))
}
