package migrate

import (
	"sort"

	"github.com/versadb/migrate/database"
	"github.com/versadb/migrate/workspace"
)

// ledger is the validated view of the applied versions.
type ledger struct {
	rows    []database.AppliedVersion
	applied map[workspace.Version]bool
	last    workspace.Version
	empty   bool
}

// newLedger validates rows. An unparseable or duplicated version is a
// *LedgerError.
func newLedger(rows []database.AppliedVersion) (*ledger, error) {
	l := &ledger{
		applied: make(map[workspace.Version]bool, len(rows)),
		empty:   len(rows) == 0,
	}
	type parsed struct {
		v   workspace.Version
		row database.AppliedVersion
	}
	all := make([]parsed, 0, len(rows))
	for _, r := range rows {
		v, err := workspace.ParseVersion(r.Version)
		if err != nil {
			return nil, &LedgerError{Version: r.Version, Reason: "not a version"}
		}
		if l.applied[v] {
			return nil, &LedgerError{Version: r.Version, Reason: "recorded more than once"}
		}
		l.applied[v] = true
		all = append(all, parsed{v: v, row: r})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].v.Less(all[j].v)
	})
	l.rows = make([]database.AppliedVersion, len(all))
	for i, p := range all {
		l.rows[i] = p.row
	}
	if len(all) > 0 {
		l.last = all[len(all)-1].v
	}
	return l, nil
}

// isPending reports whether v is above the last applied version.
func (l *ledger) isPending(v workspace.Version) bool {
	return l.empty || l.last.Less(v)
}

type plan struct {
	pending []workspace.Folder
	skipped []workspace.Folder
}

// resolve selects the pending versions: above the last applied one (every
// version when forced) and not above target.
func resolve(ws *workspace.Workspace, l *ledger, target *workspace.Version, forced bool) plan {
	var p plan
	for _, f := range ws.Versions {
		if target != nil && target.Less(f.Version) {
			continue
		}
		if forced || l.isPending(f.Version) {
			p.pending = append(p.pending, f)
		} else {
			p.skipped = append(p.skipped, f)
		}
	}
	return p
}

// resolveTarget returns nil for an empty target. The target is an upper
// bound, it does not need a version folder of its own.
func resolveTarget(raw string) (*workspace.Version, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := workspace.ParseVersion(raw)
	if err != nil {
		return nil, &ConfigError{Field: "TargetVersion", Err: err}
	}
	return &v, nil
}

func names(folders []workspace.Folder) []string {
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		out = append(out, f.Version.String())
	}
	return out
}
