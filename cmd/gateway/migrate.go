package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/nullroute-dev/llmgateway/internal/gwconfig"
	"github.com/nullroute-dev/llmgateway/internal/migration"
)

func runMigrate(args []string) {
	if len(args) == 0 {
		printMigrateUsage()
		os.Exit(1)
	}

	sub := args[0]
	rest := args[1:]

	switch sub {
	case "up":
		runMigrateUp(rest)
	case "down":
		runMigrateDown(rest)
	case "status":
		runMigrateStatus(rest)
	case "version":
		runMigrateVersion(rest)
	case "goto":
		runMigrateGoto(rest)
	case "force":
		runMigrateForce(rest)
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", sub)
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`gateway migrate - database schema migrations

Usage:
  gateway migrate <subcommand> [options]

Subcommands:
  up                 Apply all pending migrations
  down               Rollback the last migration (use --all to rollback everything)
  status             Show the status of every migration
  version            Show the current migration version
  goto <version>     Migrate to a specific version
  force <version>    Force the recorded version without running SQL (recovers a dirty state)

Options:
  --db-url string    Override the database DSN from config

Examples:
  gateway migrate up
  gateway migrate down --all
  gateway migrate goto 3
  gateway migrate force 2`)
}

// createMigrator builds a migrator from --db-url when given, otherwise from
// gwconfig.Load() — the gateway has no file-based config loader equivalent to
// the donor's config.NewLoader(), so there is no --config flag here.
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	dbURL := fs.String("db-url", "", "Database DSN (overrides config)")
	fs.Parse(args)

	if *dbURL != "" {
		return migration.NewMigratorFromURL("postgres", *dbURL)
	}

	cfg, err := gwconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return migration.NewMigratorFromConfig(cfg)
}

func runMigrateUp(args []string) {
	fs := flag.NewFlagSet("migrate up", flag.ExitOnError)
	m, err := createMigrator(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	if err := cli.RunUp(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runMigrateDown(args []string) {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	all := fs.Bool("all", false, "Rollback every applied migration")
	dbURL := fs.String("db-url", "", "Database DSN (overrides config)")
	fs.Parse(args)

	var m *migration.DefaultMigrator
	var err error
	if *dbURL != "" {
		m, err = migration.NewMigratorFromURL("postgres", *dbURL)
	} else {
		var cfg *gwconfig.Config
		cfg, err = gwconfig.Load()
		if err == nil {
			m, err = migration.NewMigratorFromConfig(cfg)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	ctx := context.Background()
	if *all {
		err = cli.RunDownAll(ctx)
	} else {
		err = cli.RunDown(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runMigrateStatus(args []string) {
	fs := flag.NewFlagSet("migrate status", flag.ExitOnError)
	m, err := createMigrator(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	if err := cli.RunStatus(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runMigrateVersion(args []string) {
	fs := flag.NewFlagSet("migrate version", flag.ExitOnError)
	m, err := createMigrator(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	if err := cli.RunVersion(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runMigrateGoto(args []string) {
	fs := flag.NewFlagSet("migrate goto", flag.ExitOnError)
	dbURL := fs.String("db-url", "", "Database DSN (overrides config)")
	fs.Parse(args)

	positional := fs.Args()
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: gateway migrate goto <version>")
		os.Exit(1)
	}
	version, err := strconv.ParseUint(positional[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version: %v\n", err)
		os.Exit(1)
	}

	var m *migration.DefaultMigrator
	if *dbURL != "" {
		m, err = migration.NewMigratorFromURL("postgres", *dbURL)
	} else {
		var cfg *gwconfig.Config
		cfg, err = gwconfig.Load()
		if err == nil {
			m, err = migration.NewMigratorFromConfig(cfg)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	if err := cli.RunGoto(context.Background(), uint(version)); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runMigrateForce(args []string) {
	fs := flag.NewFlagSet("migrate force", flag.ExitOnError)
	dbURL := fs.String("db-url", "", "Database DSN (overrides config)")
	fs.Parse(args)

	positional := fs.Args()
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: gateway migrate force <version>")
		os.Exit(1)
	}
	version, err := strconv.Atoi(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version: %v\n", err)
		os.Exit(1)
	}

	var m *migration.DefaultMigrator
	if *dbURL != "" {
		m, err = migration.NewMigratorFromURL("postgres", *dbURL)
	} else {
		var cfg *gwconfig.Config
		cfg, err = gwconfig.Load()
		if err == nil {
			m, err = migration.NewMigratorFromConfig(cfg)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	if err := cli.RunForce(context.Background(), version); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
