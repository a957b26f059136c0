// Package sqlite is the sqlite platform, on top of the pure Go
// modernc.org/sqlite driver. Connection strings look like
// sqlite:///path/to/file.db?x-meta-table=schema_versions. The database is
// the file, ledger schemas are ignored.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	nurl "net/url"
	"os"
	"os/user"
	"strings"
	"time"

	"go.uber.org/atomic"

	"github.com/versadb/migrate/database"
	_ "modernc.org/sqlite"
)

func init() {
	database.Register("sqlite", &Sqlite{})
}

// maxParams stays below SQLITE_MAX_VARIABLE_NUMBER of old builds.
const maxParams = 999

var inserter = database.Inserter{
	Quote:       database.QuoteDouble,
	Placeholder: database.QuestionMark,
	MaxParams:   maxParams,
}

type Sqlite struct {
	// file is the database file, dsn is handed to sql.Open.
	file string
	dsn  string

	db          *sql.DB
	isConnected atomic.Bool

	config *database.Config
}

// WithInstance returns a connected driver for an existing database.
func WithInstance(ctx context.Context, instance *sql.DB, config *database.Config) (database.Driver, error) {
	if err := instance.PingContext(ctx); err != nil {
		return nil, err
	}
	s := &Sqlite{db: instance, config: config.Copy()}
	s.isConnected.Store(true)
	return s, nil
}

func (s *Sqlite) Open(connectionString string, config *database.Config) (database.Driver, error) {
	config = config.Copy()
	purl, err := nurl.Parse(connectionString)
	if err != nil {
		return nil, err
	}
	database.ApplyCustomQuery(purl, config)

	filtered := database.FilterCustomQuery(purl)
	bare := *filtered
	bare.RawQuery = ""

	file := strings.Replace(bare.String(), "sqlite://", "", 1)
	if file == "" {
		return nil, fmt.Errorf("sqlite: no database file in connection string")
	}
	return &Sqlite{
		file:   file,
		dsn:    strings.Replace(filtered.String(), "sqlite://", "", 1),
		config: config,
	}, nil
}

func (s *Sqlite) DatabaseName() string {
	return s.file
}

func (s *Sqlite) DatabaseExists(ctx context.Context) (bool, error) {
	if s.file == "" {
		// WithInstance
		return true, nil
	}
	if _, err := os.Stat(s.file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Sqlite) CreateDatabase(ctx context.Context) error {
	f, err := os.OpenFile(s.file, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (s *Sqlite) Connect(ctx context.Context) error {
	if s.isConnected.Load() {
		return nil
	}
	if s.dsn == "" {
		return database.ErrNotOpened
	}
	return database.ConnectWithRetry(ctx, s.config.ConnectRetries, func() error {
		db, err := sql.Open("sqlite", s.dsn)
		if err != nil {
			return database.Permanent(err)
		}
		// one connection, so that transactions and pragmas see each other
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return err
		}
		s.db = db
		s.isConnected.Store(true)
		return nil
	})
}

func (s *Sqlite) Close() error {
	if !s.isConnected.CAS(true, false) {
		return nil
	}
	return s.db.Close()
}

func (s *Sqlite) Capabilities() database.Capabilities {
	return database.Capabilities{TransactionalDDL: true}
}

func (s *Sqlite) ledger() string {
	return database.QuoteDouble(s.config.Table())
}

func (s *Sqlite) EnsureLedger(ctx context.Context) error {
	if !s.isConnected.Load() {
		return database.ErrNotConnect
	}
	query := `CREATE TABLE IF NOT EXISTS ` + s.ledger() + ` (
		sequence_id INTEGER PRIMARY KEY AUTOINCREMENT,
		version TEXT NOT NULL UNIQUE,
		applied_on_utc TEXT NOT NULL,
		applied_by_user TEXT,
		applied_by_tool TEXT NOT NULL,
		applied_by_tool_version TEXT,
		checksum TEXT,
		status TEXT NOT NULL,
		duration_ms INTEGER
	)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return &database.Error{OrigErr: err, Query: []byte(query)}
	}
	return nil
}

func (s *Sqlite) AppliedVersions(ctx context.Context) ([]database.AppliedVersion, error) {
	if !s.isConnected.Load() {
		return nil, database.ErrNotConnect
	}
	query := database.LedgerSelect(s.ledger())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &database.Error{OrigErr: err, Query: []byte(query)}
	}
	return database.ScanLedger(rows)
}

func (s *Sqlite) Begin(ctx context.Context) (database.Tx, error) {
	if !s.isConnected.Load() {
		return nil, database.ErrNotConnect
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &database.Error{OrigErr: err, Err: "transaction start failed"}
	}
	return &sqliteTx{s: s, tx: tx}, nil
}

type sqliteTx struct {
	s  *Sqlite
	tx *sql.Tx
}

func (t *sqliteTx) Exec(ctx context.Context, script string) error {
	if _, err := t.tx.ExecContext(ctx, script); err != nil {
		return database.Error{OrigErr: err, Err: "migration failed", Query: database.Excerpt(script)}
	}
	return nil
}

func (t *sqliteTx) BulkLoad(ctx context.Context, table string, columns []string, rows [][]any) error {
	schema, name := database.SplitTableName(table)
	master := "sqlite_master"
	if schema != "" {
		master = database.QuoteDouble(schema) + ".sqlite_master"
	}

	var resolved string
	query := `SELECT name FROM ` + master + ` WHERE type = 'table' AND name = ? COLLATE NOCASE`
	err := t.tx.QueryRowContext(ctx, query, name).Scan(&resolved)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &database.DestinationNotFoundError{Table: table}
	case err != nil:
		// an unknown schema has no sqlite_master
		if schema != "" && (strings.Contains(err.Error(), "no such table") || strings.Contains(err.Error(), "unknown database")) {
			return &database.DestinationNotFoundError{Table: table}
		}
		return &database.Error{OrigErr: err, Query: []byte(query)}
	}
	return inserter.Insert(ctx, t.tx, schema, resolved, columns, rows)
}

func (t *sqliteTx) RecordVersion(ctx context.Context, v database.AppliedVersion) error {
	if v.AppliedByUser == "" {
		v.AppliedByUser = sessionUser()
	}
	values := v.Values()
	values[1] = v.AppliedOn.UTC().Format(time.RFC3339Nano)

	query := database.LedgerInsert(t.s.ledger(), database.QuestionMark)
	if _, err := t.tx.ExecContext(ctx, query, values...); err != nil {
		return &database.Error{OrigErr: err, Query: []byte(query)}
	}
	return nil
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return &database.Error{OrigErr: err, Err: "transaction commit failed"}
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// sessionUser is the OS user, sqlite has no users of its own.
func sessionUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "sqlite"
}
