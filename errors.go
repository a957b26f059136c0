package migrate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBusy is returned when a Migrate is asked to start a flow while
	// another one is running.
	ErrBusy = errors.New("migrate: another operation is in progress")

	// ErrNotInitialized is returned by flows that need a database before
	// Initialize was called.
	ErrNotInitialized = errors.New("migrate: not initialized, call Initialize first")
)

// ConfigError is a configuration mistake found before the database is
// touched.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DatabaseNotFoundError is returned when the target database does not
// exist and AutoCreateDatabase is off.
type DatabaseNotFoundError struct {
	Name string
}

func (e *DatabaseNotFoundError) Error() string {
	return fmt.Sprintf("cannot open database %q", e.Name)
}

// ExecutionError names the script that failed and why.
type ExecutionError struct {
	// Version is the version folder, or the reserved folder for _init,
	// _draft and _erase.
	Version string
	// Script is relative to the workspace root. Empty when the failure is
	// not tied to a script, e.g. a failing commit.
	Script string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Script == "" {
		return fmt.Sprintf("%s failed: %v", e.Version, e.Err)
	}
	return fmt.Sprintf("%s failed at %s: %v", e.Version, e.Script, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// LedgerError is an inconsistency of the ledger. It is never repaired.
type LedgerError struct {
	Version string
	Reason  string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger is inconsistent: %s: %s", e.Version, e.Reason)
}

// VersionFailure is a version skipped after a failure when
// ContinueAfterFailure is set.
type VersionFailure struct {
	Version string
	Err     error
}

func (f VersionFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Version, f.Err)
}

// Report describes the outcome of a Run.
type Report struct {
	// Applied lists the versions recorded in the ledger by this run, or
	// the versions that would be when Verified is set.
	Applied []string
	// Skipped lists workspace versions that were not pending.
	Skipped []string
	// Failed lists versions that failed when ContinueAfterFailure is set.
	Failed []VersionFailure
	// Verified is set for a VerifyOnly run.
	Verified bool
	// Stopped is set when GracefulStop ended the run early.
	Stopped bool
}

func (r *Report) String() string {
	var b strings.Builder
	if r.Verified {
		b.WriteString("verified")
	} else {
		b.WriteString("applied")
	}
	fmt.Fprintf(&b, " %d version(s)", len(r.Applied))
	if len(r.Applied) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(r.Applied, ", "))
	}
	fmt.Fprintf(&b, ", skipped %d", len(r.Skipped))
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, ", failed %d", len(r.Failed))
	}
	if r.Stopped {
		b.WriteString(", stopped")
	}
	return b.String()
}
