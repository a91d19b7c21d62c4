// Package main is the entry point for the Bodleian Archive migration tool.
// It applies the embedded SQLite schema migrations and, when the audit
// mirror is enabled, prepares the PostgreSQL mirror schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/repository/postgres"
	"github.com/prn-tf/bodleian-archive/internal/repository/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf("Bodleian Archive Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up":
		if err := runUp(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "status":
		if err := runStatus(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runUp(args []string) error {
	fs := flag.NewFlagSet("up", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Println("SQLite migrations applied")

	if cfg.AuditMirror.Enabled {
		pgDB, err := postgres.NewDB(ctx, cfg.AuditMirror.Postgres, logger)
		if err != nil {
			return fmt.Errorf("connect audit mirror: %w", err)
		}
		defer pgDB.Close()

		if err := postgres.EnsureSchema(ctx, pgDB); err != nil {
			return fmt.Errorf("prepare audit mirror schema: %w", err)
		}
		fmt.Println("Audit mirror schema prepared")
	}

	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return fmt.Errorf("read migration state: %w", err)
	}
	defer rows.Close()

	fmt.Println("Applied migrations:")
	for rows.Next() {
		var version, appliedAt string
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return err
		}
		fmt.Printf("  %s  %s\n", version, appliedAt)
	}
	return rows.Err()
}

func printUsage() {
	fmt.Println(`Bodleian Archive Migration Tool

Usage:
  bodleian-migrate <command> [arguments]

Commands:
  up        Apply all pending migrations
  status    Show applied migrations
  version   Print version information
  help      Show this help message

Examples:
  bodleian-migrate up --config configs/config.yaml
  bodleian-migrate status`)
}
