// Package migrate applies folder versioned migration workspaces to
// databases. Databases are defined by the `database.Driver` interface, the
// workspace layout by package workspace. The driver interface is kept
// "dumb", all migration logic is kept in this package.
package migrate

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"

	"github.com/versadb/migrate/database"
	"github.com/versadb/migrate/workspace"
)

// Migrate runs one flow at a time against a single database.
type Migrate struct {
	platform     database.Driver
	databaseName string
	databaseDrv  database.Driver

	connectionString string
	openedWith       database.Config

	// DatabaseConfig is handed to the driver by Initialize.
	DatabaseConfig *database.Config

	// Workspaces reads the workspace of a run. Defaults to the local file
	// system.
	Workspaces workspace.Reader

	// Log accepts a Logger interface
	Log Logger

	// GracefulStop accepts `true` and will stop executing versions
	// as soon as possible at a safe break point, so that the database
	// is not corrupted.
	GracefulStop chan bool

	isGracefulStop bool
	isLocked       atomic.Bool
	state          atomic.Int32
}

// New returns a new Migrate for a registered platform, e.g. sqlserver or
// postgresql. Call Initialize before running anything.
func New(platform string) (*Migrate, error) {
	d, err := database.Lookup(platform)
	if err != nil {
		return nil, err
	}
	m := newCommon()
	m.platform = d
	m.databaseName = platform
	return m, nil
}

// NewWithDatabaseInstance returns a new Migrate from an existing driver
// instance. Use any string that can serve as an identifier during logging
// as databaseName. You are responsible for closing the driver if
// necessary.
func NewWithDatabaseInstance(databaseName string, databaseInstance database.Driver) (*Migrate, error) {
	if databaseInstance == nil {
		return nil, fmt.Errorf("database instance is nil")
	}
	m := newCommon()
	m.databaseName = databaseName
	m.databaseDrv = databaseInstance
	m.setState(Initialized)
	return m, nil
}

func newCommon() *Migrate {
	return &Migrate{
		GracefulStop: make(chan bool, 1),
		Workspaces:   workspace.Local{},
	}
}

// Initialize binds the Migrate to the database of connectionString. The
// connection string is only parsed, nothing is opened yet.
func (m *Migrate) Initialize(connectionString string) error {
	if !m.isLocked.CAS(false, true) {
		return ErrBusy
	}
	defer m.isLocked.Store(false)

	proto := m.platform
	if proto == nil {
		proto = m.databaseDrv
	}
	cfg := m.DatabaseConfig.Copy()
	d, err := proto.Open(connectionString, cfg)
	if err != nil {
		return &ConfigError{Field: "ConnectionString", Err: database.RedactPassword(err)}
	}
	if m.databaseDrv != nil && m.connectionString != "" {
		if err := m.databaseDrv.Close(); err != nil {
			m.logErr(err)
		}
	}
	m.databaseDrv = d
	m.connectionString = connectionString
	m.openedWith = *cfg
	m.setState(Initialized)
	m.logVerbosePrintf("Initialized %s for database %s\n", m.databaseName, d.DatabaseName())
	return nil
}

// State returns the current state.
func (m *Migrate) State() State {
	return State(m.state.Load())
}

func (m *Migrate) setState(s State) {
	m.state.Store(int32(s))
}

// Close closes the database driver.
func (m *Migrate) Close() error {
	if m.databaseDrv == nil {
		return nil
	}
	m.logVerbosePrintf("Closing database\n")
	return m.databaseDrv.Close()
}

// Run applies the pending versions of cfg.Workspace. See ExecutionError,
// ConfigError, DatabaseNotFoundError and LedgerError for the failures.
func (m *Migrate) Run(ctx context.Context, cfg Config) (*Report, error) {
	if !m.isLocked.CAS(false, true) {
		return nil, ErrBusy
	}
	defer m.isLocked.Store(false)

	m.resetStop()
	report, err := m.run(ctx, cfg.withDefaults())
	m.finish(err)
	return report, err
}

// Erase runs the _erase scripts of the workspace in one transaction. The
// ledger is left alone.
func (m *Migrate) Erase(ctx context.Context, workspacePath string) error {
	return m.EraseWithConfig(ctx, NewConfig(workspacePath))
}

// EraseWithConfig is like Erase with tokens, environment and bulk settings
// taken from cfg. Version settings are ignored.
func (m *Migrate) EraseWithConfig(ctx context.Context, cfg Config) error {
	if !m.isLocked.CAS(false, true) {
		return ErrBusy
	}
	defer m.isLocked.Store(false)

	err := m.erase(ctx, cfg.withDefaults())
	m.finish(err)
	return err
}

// AppliedVersions returns the ledger ordered by version. The ledger table
// is created when missing.
func (m *Migrate) AppliedVersions(ctx context.Context) ([]database.AppliedVersion, error) {
	if !m.isLocked.CAS(false, true) {
		return nil, ErrBusy
	}
	defer m.isLocked.Store(false)

	d, err := m.driver(Config{})
	if err != nil {
		return nil, err
	}
	if err := m.connect(ctx, d, false); err != nil {
		return nil, err
	}
	if err := d.EnsureLedger(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger: %w", err)
	}
	l, err := m.readLedger(ctx, d)
	if err != nil {
		return nil, err
	}
	return l.rows, nil
}

func (m *Migrate) run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := m.driver(cfg)
	if err != nil {
		return nil, err
	}
	m.setState(Resolving)

	ws, err := m.Workspaces.Read(cfg.Workspace)
	if err != nil {
		return nil, &ConfigError{Field: "Workspace", Err: err}
	}
	if cfg.RequiredClearedDraft {
		isClear, err := ws.DraftIsClear()
		if err != nil {
			return nil, &ConfigError{Field: "Workspace", Err: err}
		}
		if !isClear {
			return nil, &ConfigError{Field: "RequiredClearedDraft", Err: fmt.Errorf("%s must be empty", workspace.Draft)}
		}
	}
	target, err := resolveTarget(cfg.TargetVersion)
	if err != nil {
		return nil, err
	}
	reserved, err := reservedScripts(ws, cfg.Environment, workspace.Init, workspace.Pre, workspace.Post, workspace.Draft)
	if err != nil {
		return nil, &ConfigError{Field: "Workspace", Err: err}
	}

	if err := m.connect(ctx, d, cfg.AutoCreateDatabase); err != nil {
		return nil, err
	}
	if err := d.EnsureLedger(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger: %w", err)
	}
	l, err := m.readLedger(ctx, d)
	if err != nil {
		return nil, err
	}

	p := resolve(ws, l, target, cfg.IsForced)
	report := &Report{Skipped: names(p.skipped), Verified: cfg.VerifyOnly}
	m.logVerbosePrintf("Pending versions: %v, skipped: %v\n", names(p.pending), report.Skipped)

	e := &executor{m: m, d: d, cfg: cfg, ledger: l, reserved: reserved}
	if err := e.execute(ctx, p, report); err != nil {
		return report, err
	}
	m.logPrintf("%v\n", report)
	return report, nil
}

func (m *Migrate) erase(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d, err := m.driver(cfg)
	if err != nil {
		return err
	}
	m.setState(Resolving)

	ws, err := m.Workspaces.Read(cfg.Workspace)
	if err != nil {
		return &ConfigError{Field: "Workspace", Err: err}
	}
	reserved, err := reservedScripts(ws, cfg.Environment, workspace.Erase)
	if err != nil {
		return &ConfigError{Field: "Workspace", Err: err}
	}
	if err := m.connect(ctx, d, false); err != nil {
		return err
	}

	e := &executor{m: m, d: d, cfg: cfg, reserved: reserved}
	return e.runUnit(ctx, unit{name: string(workspace.Erase), scripts: reserved[workspace.Erase]}, Session)
}

// finish moves to the resting state of a flow.
func (m *Migrate) finish(err error) {
	if err != nil {
		m.logErr(err)
		m.setState(Aborted)
		return
	}
	m.setState(Idle)
}

// driver returns the driver for cfg, reopening it when the ledger
// location of cfg differs from the one it was opened with.
func (m *Migrate) driver(cfg Config) (database.Driver, error) {
	if m.databaseDrv == nil {
		return nil, ErrNotInitialized
	}
	if m.connectionString == "" {
		return m.databaseDrv, nil
	}

	want := m.openedWith
	if cfg.MetaSchemaName != "" {
		want.MetaSchemaName = cfg.MetaSchemaName
	}
	if cfg.MetaTableName != "" {
		want.MetaTableName = cfg.MetaTableName
	}
	if want == m.openedWith {
		return m.databaseDrv, nil
	}

	d, err := m.databaseDrv.Open(m.connectionString, &want)
	if err != nil {
		return nil, &ConfigError{Field: "ConnectionString", Err: database.RedactPassword(err)}
	}
	if err := m.databaseDrv.Close(); err != nil {
		m.logErr(err)
	}
	m.databaseDrv = d
	m.openedWith = want
	return d, nil
}

// connect makes sure the target database exists and opens the session.
func (m *Migrate) connect(ctx context.Context, d database.Driver, autoCreate bool) error {
	name := d.DatabaseName()
	exists, err := d.DatabaseExists(ctx)
	if err != nil {
		return fmt.Errorf("check database %s: %w", name, database.RedactPassword(err))
	}
	if !exists {
		if !autoCreate {
			return &DatabaseNotFoundError{Name: name}
		}
		m.logPrintf("Creating database %s\n", name)
		if err := d.CreateDatabase(ctx); err != nil {
			return fmt.Errorf("create database %s: %w", name, database.RedactPassword(err))
		}
	}
	if err := d.Connect(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", name, database.RedactPassword(err))
	}
	return nil
}

func (m *Migrate) readLedger(ctx context.Context, d database.Driver) (*ledger, error) {
	rows, err := d.AppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return newLedger(rows)
}

func reservedScripts(ws *workspace.Workspace, environment string, folders ...workspace.Reserved) (map[workspace.Reserved][]workspace.Script, error) {
	out := make(map[workspace.Reserved][]workspace.Script, len(folders))
	for _, r := range folders {
		scripts, err := ws.ReservedScripts(r, environment)
		if err != nil {
			return nil, err
		}
		out[r] = scripts
	}
	return out, nil
}

// stop returns true if no more versions should be run against the database
// because a stop signal was received on the GracefulStop channel.
// Calls are cheap and this function is not blocking.
func (m *Migrate) stop() bool {
	if m.isGracefulStop {
		return true
	}

	select {
	case <-m.GracefulStop:
		m.isGracefulStop = true
		return true

	default:
		return false
	}
}

// resetStop forgets a stop request of an earlier flow, including one still
// waiting in GracefulStop.
func (m *Migrate) resetStop() {
	m.isGracefulStop = false
	for {
		select {
		case <-m.GracefulStop:
		default:
			return
		}
	}
}

// rollback rolls tx back and adds a failure to err.
func rollback(tx database.Tx, err error) error {
	if errRollback := tx.Rollback(); errRollback != nil {
		return multierror.Append(err, errRollback)
	}
	return err
}

// logPrintf writes to m.Log if not nil
func (m *Migrate) logPrintf(format string, v ...interface{}) {
	if m.Log != nil {
		m.Log.Printf(format, v...)
	}
}

// logVerbosePrintf writes to m.Log if not nil. Use for verbose logging output.
func (m *Migrate) logVerbosePrintf(format string, v ...interface{}) {
	if m.Log != nil && m.Log.Verbose() {
		m.Log.Printf(format, v...)
	}
}

// logErr writes error to m.Log if not nil
func (m *Migrate) logErr(err error) {
	if m.Log != nil {
		m.Log.Printf("error: %v", err)
	}
}
