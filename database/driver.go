// Package database provides the Driver interface.
// All database drivers must implement this interface, register themselves,
// optionally provide a `WithInstance` function and pass the tests
// in package database/testing.
package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrNilConfig  = fmt.Errorf("no config")
	ErrNotOpened  = fmt.Errorf("driver was not opened with a connection string")
	ErrNotConnect = fmt.Errorf("driver is not connected")
)

// DefaultMetaTable is the name of the ledger table.
var DefaultMetaTable = "schema_versions"

// StatusSuccessful is the status of every ledger row written by a run.
const StatusSuccessful = "Successful"

var driversMu sync.RWMutex
var drivers = make(map[string]Driver)

// Config is handed to Driver.Open. Zero values select the defaults of the
// platform.
type Config struct {
	// MetaSchemaName is the schema of the ledger table. Ignored by platforms
	// without schemas.
	MetaSchemaName string

	// MetaTableName defaults to DefaultMetaTable.
	MetaTableName string

	// ConnectRetries is the number of extra connection attempts made by
	// Connect when the server cannot be reached.
	ConnectRetries uint
}

// Table returns MetaTableName or DefaultMetaTable.
func (c *Config) Table() string {
	if c == nil || c.MetaTableName == "" {
		return DefaultMetaTable
	}
	return c.MetaTableName
}

// Copy returns a copy of c, never nil.
func (c *Config) Copy() *Config {
	if c == nil {
		return &Config{}
	}
	cc := *c
	return &cc
}

// Capabilities describes what a platform can do.
type Capabilities struct {
	// TransactionalDDL is true when schema changes can be rolled back.
	TransactionalDDL bool
	// Schemas is true when tables live in named schemas.
	Schemas bool
}

// AppliedVersion is a row of the ledger.
type AppliedVersion struct {
	Version              string
	AppliedOn            time.Time
	AppliedByUser        string
	AppliedByTool        string
	AppliedByToolVersion string
	Checksum             string
	Status               string
	DurationMs           int64
}

// Driver is the interface every database driver must implement.
//
// How to implement a database driver?
//  1. Implement this interface.
//  2. Optionally, add a function named `WithInstance`.
//     This function should accept an existing DB instance and a Config{} struct
//     and return a driver instance.
//  3. Add a test that calls database/testing.go:Test()
//  4. Add own tests for Open(), WithInstance() (when provided) and Close().
//     All other functions are tested by tests in database/testing.
//     Saves you some time and makes sure all database drivers behave the same way.
//  5. Call Register in init().
//
// Guidelines:
//   - Don't try to correct user input. Don't assume things.
//     When in doubt, return an error and explain the situation to the user.
//   - All configuration input must come from the connection string and Config.
type Driver interface {
	// Open returns a new driver instance configured with parameters
	// coming from the connection string. It must not do any I/O.
	Open(connectionString string, config *Config) (Driver, error)

	// DatabaseName is the target database as named in the connection string.
	DatabaseName() string

	// DatabaseExists reports whether the target database exists. It may
	// connect to a maintenance database of the server.
	DatabaseExists(ctx context.Context) (bool, error)

	// CreateDatabase creates the target database.
	CreateDatabase(ctx context.Context) error

	// Connect opens the session to the target database. Connecting an
	// already connected driver is a no-op.
	Connect(ctx context.Context) error

	// Close closes the session, if any.
	Close() error

	Capabilities() Capabilities

	// EnsureLedger creates the ledger schema and table when absent.
	EnsureLedger(ctx context.Context) error

	// AppliedVersions returns every ledger row in insertion order.
	AppliedVersions(ctx context.Context) ([]AppliedVersion, error)

	// Begin starts a transaction.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a transaction of a Driver. Everything done through a Tx is undone
// by Rollback, except DDL on platforms without transactional DDL.
type Tx interface {
	// Exec runs a script. Scripts are opaque, they may hold several
	// statements.
	Exec(ctx context.Context, script string) error

	// BulkLoad inserts rows into table. Nil values are inserted as NULL.
	// A missing table yields DestinationNotFoundError.
	BulkLoad(ctx context.Context, table string, columns []string, rows [][]any) error

	// RecordVersion appends a row to the ledger.
	RecordVersion(ctx context.Context, v AppliedVersion) error

	Commit() error
	Rollback() error
}

// Open looks up the driver registered as platform and opens it with
// connectionString.
func Open(platform, connectionString string, config *Config) (Driver, error) {
	d, err := Lookup(platform)
	if err != nil {
		return nil, err
	}
	return d.Open(connectionString, config.Copy())
}

// Lookup returns the driver registered as platform.
func Lookup(platform string) (Driver, error) {
	driversMu.RLock()
	d, ok := drivers[platform]
	driversMu.RUnlock()
	if !ok {
		return nil, &NotSupportedError{Platform: platform}
	}
	return d, nil
}

// Register globally registers a driver.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// List lists the registered drivers
func List() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
