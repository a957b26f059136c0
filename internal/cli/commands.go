package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/versadb/migrate"
	"github.com/versadb/migrate/database"
	"github.com/versadb/migrate/internal/config"
	"github.com/versadb/migrate/workspace"
)

func initCmd(log *Log, path string) error {
	if err := workspace.Create(path); err != nil {
		return err
	}
	log.Printf("Initialized workspace %s", path)
	return nil
}

func vnextCmd(log *Log, path string, major bool) error {
	next := workspace.IncrementMinor
	if major {
		next = workspace.IncrementMajor
	}
	v, err := next(path)
	if err != nil {
		return err
	}
	log.Printf("Created version %s", v)
	return nil
}

func platformsCmd(w io.Writer) {
	fmt.Fprintln(w, strings.Join(database.List(), "\n"))
}

func runCmd(ctx context.Context, log *Log, m *migrate.Migrate, cfg *config.Configuration, verify bool, version string) error {
	rc, err := cfg.Run(verify, version)
	if err != nil {
		return err
	}
	start := time.Now()
	report, err := m.Run(ctx, rc)
	if err != nil {
		return err
	}
	log.Debugf("Finished in %v", time.Since(start).Round(time.Millisecond))
	for _, f := range report.Failed {
		log.Errorf("%s: %v", f.Version, f.Err)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d version(s) failed", len(report.Failed))
	}
	return nil
}

func eraseCmd(ctx context.Context, log *Log, m *migrate.Migrate, cfg *config.Configuration, version string) error {
	rc, err := cfg.Run(false, version)
	if err != nil {
		return err
	}
	if err := m.EraseWithConfig(ctx, rc); err != nil {
		return err
	}
	log.Println("Erased")
	return nil
}

func listCmd(ctx context.Context, m *migrate.Migrate, w io.Writer) error {
	versions, err := m.AppliedVersions(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED ON (UTC)\tBY\tTOOL\tSTATUS\tDURATION")
	for _, v := range versions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%dms\n",
			v.Version,
			v.AppliedOn.UTC().Format(time.RFC3339),
			v.AppliedByUser,
			v.AppliedByTool, v.AppliedByToolVersion,
			v.Status,
			v.DurationMs)
	}
	return tw.Flush()
}
