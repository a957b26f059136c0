package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// LedgerColumns are the ledger columns written by RecordVersion and read by
// AppliedVersions, in this order. Every platform adds an auto incremented
// sequence_id column that keeps the insertion order.
var LedgerColumns = []string{
	"version",
	"applied_on_utc",
	"applied_by_user",
	"applied_by_tool",
	"applied_by_tool_version",
	"checksum",
	"status",
	"duration_ms",
}

// Values returns the fields of v in LedgerColumns order.
func (v AppliedVersion) Values() []any {
	return []any{
		v.Version,
		v.AppliedOn.UTC(),
		v.AppliedByUser,
		v.AppliedByTool,
		v.AppliedByToolVersion,
		v.Checksum,
		v.Status,
		v.DurationMs,
	}
}

// LedgerInsert returns the INSERT statement of a ledger row into target,
// an already quoted table name.
func LedgerInsert(target string, placeholder func(n int) string) string {
	params := make([]string, len(LedgerColumns))
	for i := range LedgerColumns {
		params[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		target, strings.Join(LedgerColumns, ", "), strings.Join(params, ", "))
}

// LedgerSelect returns the SELECT statement of AppliedVersions.
func LedgerSelect(target string) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY sequence_id", strings.Join(LedgerColumns, ", "), target)
}

// ScanLedger reads the rows of a LedgerSelect query and closes them.
func ScanLedger(rows *sql.Rows) (versions []AppliedVersion, err error) {
	defer func() {
		if errClose := rows.Close(); errClose != nil && err == nil {
			err = errClose
		}
	}()

	for rows.Next() {
		var (
			v           AppliedVersion
			appliedOn   ledgerTime
			user        sql.NullString
			toolVersion sql.NullString
			checksum    sql.NullString
			duration    sql.NullInt64
		)
		if err := rows.Scan(&v.Version, &appliedOn, &user, &v.AppliedByTool, &toolVersion, &checksum, &v.Status, &duration); err != nil {
			return nil, err
		}
		v.AppliedOn = appliedOn.Time
		v.AppliedByUser = user.String
		v.AppliedByToolVersion = toolVersion.String
		v.Checksum = checksum.String
		v.DurationMs = duration.Int64
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return versions, nil
}

// ledgerTime scans timestamps of drivers returning time.Time as well as
// those storing text, like sqlite.
type ledgerTime struct {
	time.Time
}

var ledgerTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func (t *ledgerTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case nil:
		t.Time = time.Time{}
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("cannot scan %T into a ledger timestamp", src)
}

func (t *ledgerTime) parse(s string) error {
	for _, layout := range ledgerTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse ledger timestamp %q", s)
}
