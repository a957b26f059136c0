package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/versadb/migrate"
	"github.com/versadb/migrate/database"
	"github.com/versadb/migrate/internal/config"
)

const (
	initUsage   = `init         Create the workspace folders and the baseline v0.00`
	vnextUsage  = `vnext [-m]   Create the next minor version folder, or the next major with -m`
	runUsage    = `run          Apply the pending versions up to -t, or to the latest`
	verifyUsage = `verify       Run the pending versions and roll them back`
	eraseUsage  = `erase -f     Run the _erase scripts
	Use -f to confirm, erase drops objects`
	listUsage = `list         Print the applied versions`
)

func usage(w io.Writer, fs *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(w,
			`Usage: migrate COMMAND [OPTIONS]
       migrate [ version | platforms | --help ]

Commands:
  %s
  %s
  %s
  %s
  %s
  %s
  platforms    Print the supported platforms
  version      Print the version

Platforms: `+strings.Join(database.List(), ", ")+`

Options:
`, initUsage, vnextUsage, runUsage, verifyUsage, eraseUsage, listUsage)
		fs.PrintDefaults()
	}
}

// Main function of a cli application.
func Main(version string) {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, version))
}

// Run executes the command in args and returns the exit code: 0 on
// success, 1 on failure and 2 on bad usage.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, version string) int {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.Flags(fs)
	fs.Usage = usage(stderr, fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(fs, nil)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	log := NewLog(stderr, cfg.LogFormat, cfg.Verbose)
	if cfg.Verbose {
		var buf bytes.Buffer
		if err := config.PrintJSON(&buf, cfg, !cfg.TraceSensitiveData); err == nil {
			log.Debugf("configuration: %s", strings.TrimSpace(buf.String()))
		}
	}

	switch cmd := fs.Arg(0); cmd {
	case "init":
		err = initCmd(log, cfg.Workspace)
	case "vnext":
		err = vnextCmd(log, cfg.Workspace, cfg.Major)
	case "platforms":
		platformsCmd(stdout)
	case "version":
		fmt.Fprintln(stdout, version)
	case "run", "verify":
		err = withMigrate(ctx, log, cfg, func(ctx context.Context, m *migrate.Migrate) error {
			return runCmd(ctx, log, m, cfg, cmd == "verify", version)
		})
	case "erase":
		if !cfg.Force {
			err = &migrate.ConfigError{Field: "Force", Err: errors.New("erase drops objects, confirm with --force")}
			break
		}
		err = withMigrate(ctx, log, cfg, func(ctx context.Context, m *migrate.Migrate) error {
			return eraseCmd(ctx, log, m, cfg, version)
		})
	case "list":
		err = withMigrate(ctx, log, cfg, func(ctx context.Context, m *migrate.Migrate) error {
			return listCmd(ctx, m, stdout)
		})
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	if err != nil {
		log.Errorf("%v", err)
		return 1
	}
	return 0
}

// withMigrate binds a Migrate to the configured database for the time of
// fn. The first SIGINT stops after the running version, the second one
// cancels it.
func withMigrate(ctx context.Context, log *Log, cfg *config.Configuration, fn func(context.Context, *migrate.Migrate) error) error {
	m, err := migrate.New(cfg.Platform)
	if err != nil {
		return err
	}
	m.Log = log
	m.DatabaseConfig = cfg.Database()
	if err := m.Initialize(cfg.ConnectionString); err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Println(err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		stopping := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				if stopping {
					log.Println("Cancelling the running version")
					cancel()
					return
				}
				log.Println("Stopping after the running version")
				stopping = true
				select {
				case m.GracefulStop <- true:
				default:
				}
			}
		}
	}()

	return fn(ctx, m)
}
