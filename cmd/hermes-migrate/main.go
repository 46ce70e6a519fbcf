// Package main is the entry point for the Hermes database migration tool.
// It manages the schema of both the SQLite and the PostgreSQL backends.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/prn-tf/hermes/internal/config"
	"github.com/prn-tf/hermes/internal/database"
	"github.com/prn-tf/hermes/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flags := flag.NewFlagSet("hermes-migrate", flag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to config file")
	flags.Usage = printUsage
	_ = flags.Parse(os.Args[1:])

	if flags.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flags.Arg(0)
	switch command {
	case "version":
		fmt.Printf("Hermes Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return

	case "help":
		printUsage()
		return

	case "up", "down", "status":
		if err := run(command, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func run(command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	// This tool decides when migrations run.
	cfg.Database.AutoMigrate = false

	ctx := context.Background()
	result, err := database.Open(ctx, cfg.Database, logger.Level(zerolog.WarnLevel))
	if err != nil {
		return err
	}
	db := result.Database
	defer db.Close()

	switch command {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("Migrations applied.")
	case "down":
		if err := db.Rollback(ctx); err != nil {
			return err
		}
		fmt.Println("Rolled back one migration.")
	}

	states, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATE\tAPPLIED AT")
	for _, s := range states {
		state, appliedAt := "pending", "-"
		if s.Applied {
			state = "applied"
			appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, s.Name, state, appliedAt)
	}
	return w.Flush()
}

func printUsage() {
	fmt.Println(`Hermes Migration Tool

Usage:
  hermes-migrate [--config FILE] <command>

Commands:
  up          Apply all pending migrations
  down        Roll back the last applied migration
  status      Show current migration status
  version     Print version information
  help        Show this help message

The database is selected by the configuration file and HERMES_DATABASE_*
environment variables, for example:
  HERMES_DATABASE_DRIVER=postgres HERMES_DATABASE_HOST=db hermes-migrate up
  HERMES_DATABASE_PATH=./data/hermes.db hermes-migrate status`)
}
