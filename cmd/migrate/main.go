// Command migrate manages the cart snapshot schema. The DSN comes from
// -database, or from the storefront config file when the flag is empty.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maisonlune/storefront/internal/infra/config"
	"github.com/maisonlune/storefront/internal/infra/persistence/migrations"
)

const (
	defaultConfigPath = "config/app.yaml"
	defaultTimeout    = 30 * time.Second
	loggerPrefix      = "storefront-migrate "
)

var errUsage = errors.New("usage: migrate [flags] up | down [steps] | status")

// schema is the subset of the migrations package driven by the command.
type schema interface {
	Apply(ctx context.Context, dsn, dir string, logger *log.Logger) error
	Rollback(ctx context.Context, dsn, dir string, steps int, logger *log.Logger) error
	Status(ctx context.Context, dsn, dir string, logger *log.Logger) (migrations.SchemaStatus, error)
}

type golangMigrate struct{}

func (golangMigrate) Apply(ctx context.Context, dsn, dir string, logger *log.Logger) error {
	return migrations.Apply(ctx, dsn, dir, logger)
}

func (golangMigrate) Rollback(ctx context.Context, dsn, dir string, steps int, logger *log.Logger) error {
	return migrations.Rollback(ctx, dsn, dir, steps, logger)
}

func (golangMigrate) Status(ctx context.Context, dsn, dir string, logger *log.Logger) (migrations.SchemaStatus, error) {
	return migrations.Status(ctx, dsn, dir, logger)
}

type options struct {
	configPath string
	dsn        string
	dir        string
	timeout    time.Duration
	quiet      bool
	args       []string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err == nil {
		err = run(context.Background(), opts, golangMigrate{}, os.Stdout)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Storefront configuration file used when -database is empty")
	fs.StringVar(&opts.dsn, "database", "", "PostgreSQL DSN (overrides storage.database.dsn)")
	fs.StringVar(&opts.dir, "path", migrations.Embedded, "Directory containing SQL migrations (default: compiled-in set)")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "Maximum time to wait for database connectivity")
	fs.BoolVar(&opts.quiet, "quiet", false, "Suppress informational logs")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.args = fs.Args()
	if len(opts.args) == 0 {
		return opts, errUsage
	}
	return opts, nil
}

// resolveDSN prefers the explicit flag, then the config file, which itself
// falls back to STOREFRONT_DATABASE_DSN and a local default.
func resolveDSN(ctx context.Context, opts options) (string, error) {
	if dsn := strings.TrimSpace(opts.dsn); dsn != "" {
		return dsn, nil
	}
	cfg, _, err := config.LoadOrDefault(ctx, opts.configPath)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Storage.Database.DSN, nil
}

func run(ctx context.Context, opts options, target schema, out io.Writer) error {
	var logger *log.Logger
	if !opts.quiet {
		logger = log.New(out, loggerPrefix, log.LstdFlags)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	dsn, err := resolveDSN(ctx, opts)
	if err != nil {
		return err
	}

	switch opts.args[0] {
	case "up":
		return target.Apply(ctx, dsn, opts.dir, logger)
	case "down":
		steps := 1
		if len(opts.args) > 1 {
			n, err := strconv.Atoi(opts.args[1])
			if err != nil {
				return fmt.Errorf("invalid down steps %q: %w", opts.args[1], err)
			}
			steps = n
		}
		return target.Rollback(ctx, dsn, opts.dir, steps, logger)
	case "status":
		status, err := target.Status(ctx, dsn, opts.dir, logger)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, formatStatus(status))
		if status.Dirty {
			return fmt.Errorf("schema version %d is dirty; fix it and force a version", status.Version)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", opts.args[0], errUsage)
	}
}

func formatStatus(s migrations.SchemaStatus) string {
	state := "up to date"
	switch {
	case s.Dirty:
		state = "dirty"
	case s.Pending():
		state = fmt.Sprintf("%d pending", s.Latest-s.Version)
	}
	return fmt.Sprintf("cart snapshot schema: version=%d latest=%d (%s)", s.Version, s.Latest, state)
}
