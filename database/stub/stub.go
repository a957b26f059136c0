// Package stub is an in-memory driver for tests. Connection strings look
// like stub://<database>?x-exists=false&x-transactional-ddl=false.
//
// Scripts are not parsed. Exec only rejects a script whose first word is not
// a known SQL verb, and remembers the tables of CREATE TABLE statements so
// bulk loads can find them.
package stub

import (
	"context"
	"fmt"
	nurl "net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"github.com/versadb/migrate/database"
)

func init() {
	database.Register("stub", &Stub{})
}

var (
	createTable = regexp.MustCompile(`(?i)create\s+table\s+(?:if\s+not\s+exists\s+)?([\w."\[\]]+)`)
	firstWord   = regexp.MustCompile(`^\s*([A-Za-z]+)`)
)

var verbs = map[string]bool{
	"ALTER": true, "BEGIN": true, "CREATE": true, "DECLARE": true, "DELETE": true, "DROP": true,
	"EXEC": true, "GRANT": true, "INSERT": true, "MERGE": true, "SELECT": true, "SET": true,
	"TRUNCATE": true, "UPDATE": true, "WITH": true,
}

func syntaxOK(script string) bool {
	trimmed := strings.TrimSpace(script)
	if trimmed == "" || strings.HasPrefix(trimmed, "--") || strings.HasPrefix(trimmed, "/*") {
		return true
	}
	m := firstWord.FindStringSubmatch(trimmed)
	return m != nil && verbs[strings.ToUpper(m[1])]
}

// Stub keeps committed scripts, bulk rows and the ledger in memory.
type Stub struct {
	Url    string
	Name   string
	Config *database.Config
	Caps   database.Capabilities

	// FailOn makes Exec fail for every script containing one of the
	// substrings.
	FailOn []string

	mu         sync.Mutex
	exists     bool
	ledger     bool
	tables     map[string]bool
	Executed   []string
	RolledBack []string
	Loaded     map[string][][]any
	Ledger     []database.AppliedVersion
	Begun      int
	Commits    int
	Rollbacks  int

	isConnected atomic.Bool
}

func (s *Stub) Open(connectionString string, config *database.Config) (database.Driver, error) {
	if config == nil {
		config = &database.Config{}
	}
	purl, err := nurl.Parse(connectionString)
	if err != nil {
		return nil, err
	}
	q := purl.Query()

	st := New(strings.TrimPrefix(purl.Host+purl.Path, "/"), config)
	st.Url = connectionString
	if v := q.Get("x-exists"); v != "" {
		if st.exists, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("x-exists: %w", err)
		}
	}
	if v := q.Get("x-transactional-ddl"); v != "" {
		if st.Caps.TransactionalDDL, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("x-transactional-ddl: %w", err)
		}
	}
	return st, nil
}

// New returns an existing, empty database with transactional DDL.
func New(name string, config *database.Config) *Stub {
	return &Stub{
		Name:   name,
		Config: config.Copy(),
		Caps:   database.Capabilities{TransactionalDDL: true, Schemas: true},
		exists: true,
		tables: make(map[string]bool),
		Loaded: make(map[string][][]any),
	}
}

// WithTables returns s after registering existing tables.
func (s *Stub) WithTables(tables ...string) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tables {
		s.tables[strings.ToLower(t)] = true
	}
	return s
}

// SetExists sets whether the database exists.
func (s *Stub) SetExists(exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exists = exists
}

func (s *Stub) DatabaseName() string {
	return s.Name
}

func (s *Stub) DatabaseExists(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists, ctx.Err()
}

func (s *Stub) CreateDatabase(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exists {
		return fmt.Errorf("database %q already exists", s.Name)
	}
	s.exists = true
	return nil
}

func (s *Stub) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return fmt.Errorf("cannot open database %q", s.Name)
	}
	s.isConnected.Store(true)
	return nil
}

func (s *Stub) Close() error {
	s.isConnected.Store(false)
	return nil
}

func (s *Stub) Capabilities() database.Capabilities {
	return s.Caps
}

func (s *Stub) EnsureLedger(ctx context.Context) error {
	if !s.isConnected.Load() {
		return database.ErrNotConnect
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = true
	return nil
}

func (s *Stub) AppliedVersions(ctx context.Context) ([]database.AppliedVersion, error) {
	if !s.isConnected.Load() {
		return nil, database.ErrNotConnect
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ledger {
		return nil, fmt.Errorf("invalid object name '%s'", s.Config.Table())
	}
	return append([]database.AppliedVersion(nil), s.Ledger...), nil
}

// SetLedger replaces the ledger rows, e.g. to simulate a corrupt ledger.
func (s *Stub) SetLedger(rows ...database.AppliedVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = true
	s.Ledger = rows
}

func (s *Stub) Begin(ctx context.Context) (database.Tx, error) {
	if !s.isConnected.Load() {
		return nil, database.ErrNotConnect
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Begun++
	return &tx{s: s, tables: make(map[string]bool), loaded: make(map[string][][]any)}, nil
}

// EqualSequence reports whether the committed scripts equal seq.
func (s *Stub) EqualSequence(seq []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(seq) == 0 && len(s.Executed) == 0 {
		return true
	}
	return reflect.DeepEqual(seq, s.Executed)
}

// HasTable reports whether a committed table exists.
func (s *Stub) HasTable(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[strings.ToLower(name)]
}

type tx struct {
	s      *Stub
	execs  []string
	tables map[string]bool
	loaded map[string][][]any
	ledger []database.AppliedVersion
	done   bool
}

func (t *tx) Exec(ctx context.Context, script string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	for _, f := range t.s.FailOn {
		if strings.Contains(script, f) {
			return database.Error{OrigErr: fmt.Errorf("stub: failing on %q", f), Err: "migration failed", Query: database.Excerpt(script)}
		}
	}
	if !syntaxOK(script) {
		return database.Error{OrigErr: fmt.Errorf("stub: syntax error"), Err: "migration failed", Query: database.Excerpt(script)}
	}
	t.execs = append(t.execs, script)
	for _, m := range createTable.FindAllStringSubmatch(script, -1) {
		name := strings.ToLower(strings.NewReplacer(`"`, "", "[", "", "]", "").Replace(m[1]))
		if t.s.Caps.TransactionalDDL {
			t.tables[name] = true
		} else {
			t.s.mu.Lock()
			t.s.tables[name] = true
			t.s.mu.Unlock()
		}
	}
	return nil
}

func (t *tx) BulkLoad(ctx context.Context, table string, columns []string, rows [][]any) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	key := strings.ToLower(table)
	if !t.tables[key] && !t.s.HasTable(key) {
		_, bare := database.SplitTableName(key)
		if !t.tables[bare] && !t.s.HasTable(bare) {
			return &database.DestinationNotFoundError{Table: table}
		}
	}
	for _, r := range rows {
		if len(r) != len(columns) {
			return fmt.Errorf("stub: row has %d values, expected %d", len(r), len(columns))
		}
		t.loaded[key] = append(t.loaded[key], append([]any(nil), r...))
	}
	return nil
}

func (t *tx) RecordVersion(ctx context.Context, v database.AppliedVersion) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if !t.s.ledger {
		return fmt.Errorf("invalid object name '%s'", t.s.Config.Table())
	}
	for _, l := range append(t.s.Ledger, t.ledger...) {
		if l.Version == v.Version {
			return fmt.Errorf("stub: duplicate key %s in %s", v.Version, t.s.Config.Table())
		}
	}
	if v.AppliedByUser == "" {
		v.AppliedByUser = "stub"
	}
	t.ledger = append(t.ledger, v)
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return fmt.Errorf("stub: transaction has already been committed or rolled back")
	}
	t.done = true
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Commits++
	s.Executed = append(s.Executed, t.execs...)
	for k := range t.tables {
		s.tables[k] = true
	}
	for k, rows := range t.loaded {
		s.Loaded[k] = append(s.Loaded[k], rows...)
	}
	s.Ledger = append(s.Ledger, t.ledger...)
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return fmt.Errorf("stub: transaction has already been committed or rolled back")
	}
	t.done = true
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rollbacks++
	s.RolledBack = append(s.RolledBack, t.execs...)
	return nil
}

func (t *tx) check(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("stub: transaction has already been committed or rolled back")
	}
	return ctx.Err()
}
