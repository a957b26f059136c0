package migrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/versadb/migrate/bulk"
	"github.com/versadb/migrate/workspace"
)

// TransactionMode selects the transaction discipline of a run.
type TransactionMode string

const (
	// Session runs each version, its _pre and _post scripts and its ledger
	// row in one transaction.
	Session TransactionMode = "session"
	// PerScript commits every script on its own and records the version in
	// a separate transaction after its last script.
	PerScript TransactionMode = "statement"
)

// ParseTransactionMode accepts session, statement (or per-script) in any case.
func ParseTransactionMode(raw string) (TransactionMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "session":
		return Session, nil
	case "statement", "per-script", "perscript":
		return PerScript, nil
	}
	return "", fmt.Errorf("unknown transaction mode %q, expected %s or %s", raw, Session, PerScript)
}

// DefaultAppliedByTool is recorded in the ledger when Config leaves it empty.
const DefaultAppliedByTool = "versadb-migrate"

// Config is the configuration of a single Run. It is never modified by
// the Migrate.
type Config struct {
	// Workspace is the root directory of the version folders.
	Workspace string

	// TargetVersion is the highest version to apply, e.g. v1.02. Empty
	// means the latest version of the workspace.
	TargetVersion string

	// AutoCreateDatabase creates a missing target database.
	AutoCreateDatabase bool

	// Tokens replace ${key} markers in SQL scripts. The first pair wins
	// for a duplicated key.
	Tokens []Token

	// BulkSeparator defaults to bulk.DefaultSeparator.
	BulkSeparator string

	// BulkBatchSize defaults to bulk.DefaultBatchSize.
	BulkBatchSize int

	// TransactionMode defaults to Session.
	TransactionMode TransactionMode

	// ContinueAfterFailure records a failed version in the Report and goes
	// on with the next one instead of aborting.
	ContinueAfterFailure bool

	// RequiredClearedDraft fails the run when _draft holds any script.
	RequiredClearedDraft bool

	// IsForced applies every version up to the target, including those
	// already in the ledger.
	IsForced bool

	// VerifyOnly runs everything inside a transaction that is rolled back.
	VerifyOnly bool

	// Environment selects _<env> folders and <name>._<env>.<ext> files.
	Environment string

	// MetaSchemaName and MetaTableName locate the ledger. Empty values keep
	// the driver defaults.
	MetaSchemaName string
	MetaTableName  string

	// AppliedByTool and AppliedByToolVersion are written to the ledger.
	AppliedByTool        string
	AppliedByToolVersion string

	// CommandTimeout bounds every statement. Zero means no timeout.
	CommandTimeout time.Duration
}

// NewConfig returns a Config with the defaults for workspace.
func NewConfig(workspacePath string) Config {
	return Config{
		Workspace:       workspacePath,
		BulkSeparator:   bulk.DefaultSeparator,
		BulkBatchSize:   bulk.DefaultBatchSize,
		TransactionMode: Session,
		AppliedByTool:   DefaultAppliedByTool,
	}
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.BulkSeparator == "" {
		c.BulkSeparator = bulk.DefaultSeparator
	}
	if c.BulkBatchSize == 0 {
		c.BulkBatchSize = bulk.DefaultBatchSize
	}
	if c.TransactionMode == "" {
		c.TransactionMode = Session
	}
	if c.AppliedByTool == "" {
		c.AppliedByTool = DefaultAppliedByTool
	}
	return c
}

// Validate reports the first invalid setting as a *ConfigError.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Workspace) == "" {
		return &ConfigError{Field: "Workspace", Err: fmt.Errorf("workspace path is required")}
	}
	if c.TargetVersion != "" {
		if _, err := workspace.ParseVersion(c.TargetVersion); err != nil {
			return &ConfigError{Field: "TargetVersion", Err: err}
		}
	}
	if c.BulkBatchSize < 0 {
		return &ConfigError{Field: "BulkBatchSize", Err: fmt.Errorf("must not be negative, got %d", c.BulkBatchSize)}
	}
	if err := (bulk.Options{Separator: c.BulkSeparator}).Validate(); err != nil {
		return &ConfigError{Field: "BulkSeparator", Err: err}
	}
	switch c.TransactionMode {
	case "", Session, PerScript:
	default:
		return &ConfigError{Field: "TransactionMode", Err: fmt.Errorf("unknown transaction mode %q", c.TransactionMode)}
	}
	if c.CommandTimeout < 0 {
		return &ConfigError{Field: "CommandTimeout", Err: fmt.Errorf("must not be negative, got %v", c.CommandTimeout)}
	}
	for _, t := range c.Tokens {
		if t.Key == "" {
			return &ConfigError{Field: "Tokens", Err: fmt.Errorf("token with empty key")}
		}
	}
	return nil
}

func (c Config) bulkOptions() bulk.Options {
	return bulk.Options{Separator: c.BulkSeparator, BatchSize: c.BulkBatchSize}
}
