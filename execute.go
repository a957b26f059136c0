package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/versadb/migrate/bulk"
	"github.com/versadb/migrate/database"
	"github.com/versadb/migrate/workspace"
)

// unit is a group of scripts run under one transaction discipline: a
// version with its _pre and _post scripts, or a reserved folder.
type unit struct {
	name    string
	scripts []workspace.Script
	// record is the ledger row written after the scripts, nil for reserved
	// folders and forced re-runs of applied versions.
	record *database.AppliedVersion
}

// sink receives scripts. database.Tx is one.
type sink interface {
	Exec(ctx context.Context, script string) error
	BulkLoad(ctx context.Context, table string, columns []string, rows [][]any) error
}

// discard is the sink of a verify-only run on a platform without
// transactional DDL. Scripts are read and parsed but not executed.
type discard struct{}

func (discard) Exec(context.Context, string) error { return nil }

func (discard) BulkLoad(context.Context, string, []string, [][]any) error { return nil }

type executor struct {
	m        *Migrate
	d        database.Driver
	cfg      Config
	ledger   *ledger
	reserved map[workspace.Reserved][]workspace.Script

	// verify is the single sink of a verify-only run.
	verify sink
}

func (e *executor) execute(ctx context.Context, p plan, report *Report) (err error) {
	if e.cfg.VerifyOnly {
		e.m.setState(Reporting)
		if e.d.Capabilities().TransactionalDDL {
			tx, errBegin := e.d.Begin(ctx)
			if errBegin != nil {
				return fmt.Errorf("begin verify transaction: %w", errBegin)
			}
			defer func() {
				if errRollback := tx.Rollback(); errRollback != nil && err == nil {
					err = fmt.Errorf("roll back verify transaction: %w", errRollback)
				}
			}()
			e.verify = tx
		} else {
			e.m.logPrintf("%s has no transactional DDL, scripts are checked but not executed\n", e.m.databaseName)
			e.verify = discard{}
		}
	}

	mode := e.cfg.TransactionMode
	if err := e.runUnit(ctx, unit{name: string(workspace.Init), scripts: e.reserved[workspace.Init]}, mode); err != nil {
		return err
	}

	for _, f := range p.pending {
		if e.m.stop() {
			e.m.logPrintf("Stopping after %d version(s)\n", len(report.Applied))
			report.Stopped = true
			return nil
		}

		u, err := e.versionUnit(f)
		if err != nil {
			return err
		}
		start := time.Now()
		if err := e.runUnit(ctx, u, mode); err != nil {
			if e.cfg.ContinueAfterFailure && !e.cfg.VerifyOnly && ctx.Err() == nil {
				e.m.logErr(err)
				report.Failed = append(report.Failed, VersionFailure{Version: u.name, Err: err})
				e.m.setState(Resolving)
				continue
			}
			return err
		}
		report.Applied = append(report.Applied, u.name)
		e.m.logPrintf("%v (%v)\n", u.name, time.Since(start))
	}

	return e.runUnit(ctx, unit{name: string(workspace.Draft), scripts: e.reserved[workspace.Draft]}, mode)
}

// versionUnit lists the scripts of a version folder between _pre and
// _post. Applied versions that are forced again get no ledger row.
func (e *executor) versionUnit(f workspace.Folder) (unit, error) {
	name := f.Version.String()
	scripts, err := workspace.Scripts(f.Path, e.cfg.Environment)
	if err != nil {
		return unit{}, &ExecutionError{Version: name, Err: err}
	}

	u := unit{name: name}
	u.scripts = append(u.scripts, e.reserved[workspace.Pre]...)
	u.scripts = append(u.scripts, scripts...)
	u.scripts = append(u.scripts, e.reserved[workspace.Post]...)

	if e.ledger != nil && e.ledger.applied[f.Version] {
		e.m.logVerbosePrintf("%s is in the ledger already, it is run again without a new ledger row\n", name)
		return u, nil
	}
	checksum, err := workspace.Checksum(scripts)
	if err != nil {
		return unit{}, &ExecutionError{Version: name, Err: err}
	}
	u.record = &database.AppliedVersion{
		Version:              name,
		AppliedByTool:        e.cfg.AppliedByTool,
		AppliedByToolVersion: e.cfg.AppliedByToolVersion,
		Checksum:             checksum,
		Status:               database.StatusSuccessful,
	}
	return u, nil
}

// runUnit runs u under mode. A failure rolls back whatever was not
// committed yet and is returned as *ExecutionError.
func (e *executor) runUnit(ctx context.Context, u unit, mode TransactionMode) error {
	if e.verify != nil {
		for _, s := range u.scripts {
			if err := e.runScript(ctx, e.verify, s); err != nil {
				return &ExecutionError{Version: u.name, Script: s.Rel, Err: err}
			}
		}
		return nil
	}
	if len(u.scripts) == 0 && u.record == nil {
		return nil
	}

	e.m.setState(Executing)
	start := time.Now()
	if mode == PerScript {
		for _, s := range u.scripts {
			if err := e.inTx(ctx, func(tx database.Tx) error {
				return e.runScript(ctx, tx, s)
			}); err != nil {
				return &ExecutionError{Version: u.name, Script: s.Rel, Err: err}
			}
		}
		if u.record == nil {
			return nil
		}
		e.m.setState(Recording)
		if err := e.inTx(ctx, func(tx database.Tx) error {
			return e.record(ctx, tx, u, start)
		}); err != nil {
			return &ExecutionError{Version: u.name, Err: err}
		}
		return nil
	}

	tx, err := e.d.Begin(ctx)
	if err != nil {
		return &ExecutionError{Version: u.name, Err: err}
	}
	for _, s := range u.scripts {
		if err := e.runScript(ctx, tx, s); err != nil {
			e.m.setState(RollingBack)
			return &ExecutionError{Version: u.name, Script: s.Rel, Err: rollback(tx, err)}
		}
	}
	if u.record != nil {
		e.m.setState(Recording)
		if err := e.record(ctx, tx, u, start); err != nil {
			e.m.setState(RollingBack)
			return &ExecutionError{Version: u.name, Err: rollback(tx, err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &ExecutionError{Version: u.name, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// inTx runs fn in its own transaction.
func (e *executor) inTx(ctx context.Context, fn func(tx database.Tx) error) error {
	tx, err := e.d.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		e.m.setState(RollingBack)
		return rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (e *executor) record(ctx context.Context, tx database.Tx, u unit, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := *u.record
	v.AppliedOn = time.Now().UTC()
	v.DurationMs = time.Since(start).Milliseconds()
	return tx.RecordVersion(ctx, v)
}

// runScript sends one script to s. SQL scripts get their tokens replaced,
// bulk files are streamed in batches.
func (e *executor) runScript(ctx context.Context, s sink, script workspace.Script) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := database.WithTimeout(ctx, e.cfg.CommandTimeout)
	defer cancel()

	switch script.Kind {
	case workspace.Bulk:
		e.m.logVerbosePrintf("Loading %s\n", script.Rel)
		stats, err := bulk.LoadFile(ctx, s, bulk.TableName(script.Path), script.Path, e.cfg.bulkOptions())
		if err != nil {
			return err
		}
		e.m.logVerbosePrintf("Loaded %d row(s) from %s in %d batch(es)\n", stats.Rows, script.Rel, stats.Batches)
		return nil

	default:
		b, err := script.Read()
		if err != nil {
			return err
		}
		body := ReplaceTokens(string(b), e.cfg.Tokens)
		if strings.TrimSpace(body) == "" {
			e.m.logVerbosePrintf("Skipping empty %s\n", script.Rel)
			return nil
		}
		e.m.logVerbosePrintf("Executing %s\n", script.Rel)
		if err := s.Exec(ctx, body); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && e.cfg.CommandTimeout > 0 {
				return fmt.Errorf("timed out after %v: %w", e.cfg.CommandTimeout, err)
			}
			return err
		}
		return nil
	}
}
