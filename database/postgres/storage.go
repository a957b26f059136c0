package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/versadb/migrate/database"
)

// columnDefs are the ledger columns after sequence_id.
var columnDefs = map[string]string{
	"version":                 "VARCHAR(190) NOT NULL UNIQUE",
	"applied_on_utc":          "TIMESTAMPTZ NOT NULL",
	"applied_by_user":         "VARCHAR(128) NOT NULL",
	"applied_by_tool":         "VARCHAR(256) NOT NULL",
	"applied_by_tool_version": "VARCHAR(64)",
	"checksum":                "VARCHAR(64)",
	"status":                  "VARCHAR(32) NOT NULL",
	"duration_ms":             "BIGINT",
}

// upgradable are the columns added to ledgers created before they existed.
var upgradable = []string{"checksum", "duration_ms"}

func (p *Postgres) ledger() string {
	return pq.QuoteIdentifier(p.config.MetaSchemaName) + "." + pq.QuoteIdentifier(p.config.Table())
}

// EnsureLedger creates the ledger schema and table, or adds the columns an
// older ledger lacks.
func (p *Postgres) EnsureLedger(ctx context.Context) error {
	if !p.isConnected.Load() {
		return database.ErrNotConnect
	}

	query := `CREATE SCHEMA IF NOT EXISTS ` + pq.QuoteIdentifier(p.config.MetaSchemaName)
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return &database.Error{OrigErr: err, Query: []byte(query)}
	}

	exists, err := p.tableExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return p.createLedgerTable(ctx)
	}
	return p.addMissingColumns(ctx)
}

// tableExists checks if the ledger table exists
func (p *Postgres) tableExists(ctx context.Context) (bool, error) {
	query := `SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2`
	var count int
	if err := p.db.QueryRowContext(ctx, query, p.config.MetaSchemaName, p.config.Table()).Scan(&count); err != nil {
		return false, &database.Error{OrigErr: err, Query: []byte(query)}
	}
	return count > 0, nil
}

func (p *Postgres) createLedgerTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + p.ledger() + ` (` + p.flavor.SequenceColumn
	for _, c := range database.LedgerColumns {
		query += ", " + c + " " + columnDefs[c]
	}
	query += `)`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return &database.Error{OrigErr: err, Query: []byte(query)}
	}
	return nil
}

// addMissingColumns adds any missing columns to existing table
func (p *Postgres) addMissingColumns(ctx context.Context) error {
	for _, column := range upgradable {
		exists, err := p.columnExists(ctx, column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		query := `ALTER TABLE ` + p.ledger() + ` ADD COLUMN ` + column + ` ` + columnDefs[column]
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return &database.Error{OrigErr: err, Query: []byte(query)}
		}
	}
	return nil
}

// columnExists checks if a specific column exists in the ledger table
func (p *Postgres) columnExists(ctx context.Context, column string) (bool, error) {
	query := `SELECT COUNT(1) FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`
	var count int
	if err := p.db.QueryRowContext(ctx, query, p.config.MetaSchemaName, p.config.Table(), column).Scan(&count); err != nil {
		return false, &database.Error{OrigErr: err, Query: []byte(query)}
	}
	return count > 0, nil
}

func (p *Postgres) AppliedVersions(ctx context.Context) ([]database.AppliedVersion, error) {
	if !p.isConnected.Load() {
		return nil, database.ErrNotConnect
	}
	query := database.LedgerSelect(p.ledger())
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &database.Error{OrigErr: err, Query: []byte(query)}
	}
	versions, err := database.ScanLedger(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", p.ledger(), err)
	}
	return versions, nil
}
