package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/erp/stockengine/internal/infrastructure/config"
	"github.com/erp/stockengine/internal/infrastructure/logger"
	"github.com/erp/stockengine/internal/infrastructure/migration"
	"github.com/erp/stockengine/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

func main() {
	var (
		migrationsPath string
		logLevel       string
	)

	flag.StringVar(&migrationsPath, "path", "", "Read migrations from this directory instead of the embedded set")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	switch command {
	case "create":
		if len(args) < 2 {
			log.Fatal("Migration name required. Usage: migrate create <name> [description]")
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		dir := resolveDir(migrationsPath, log)
		mf, err := migration.CreateMigration(dir, args[1], description)
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration created",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return

	case "list":
		dir := resolveDir(migrationsPath, log)
		names, err := migration.ListMigrations(dir)
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		if len(names) == 0 {
			log.Info("No migrations found", zap.String("path", dir))
			return
		}
		log.Info("Available migrations", zap.Int("count", len(names)))
		for _, name := range names {
			fmt.Println("  -", name)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatal("Schema migrations only run against postgres; sqlite databases are created by auto-migration",
			zap.String("driver", cfg.Database.Driver))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	var m *migration.Migrator
	if migrationsPath != "" {
		dir := resolveDir(migrationsPath, log)
		log.Info("Using migrations from disk", zap.String("path", dir))
		m, err = migration.New(db, dir, log)
	} else {
		m, err = migration.NewFromFS(db, migrations.FS, log)
	}
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	if err := run(m, command, args[1:], log); err != nil {
		log.Fatal("Migration command failed", zap.String("command", command), zap.Error(err))
	}
}

func run(m *migration.Migrator, command string, args []string, log *zap.Logger) error {
	switch command {
	case "up":
		return m.Up()

	case "down":
		return m.Down()

	case "step":
		if len(args) < 1 {
			return fmt.Errorf("step count required: migrate step <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)

	case "goto":
		if len(args) < 1 {
			return fmt.Errorf("version required: migrate goto <version>")
		}
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.GoTo(uint(version))

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current migration version",
			zap.Uint("version", version),
			zap.Bool("dirty", dirty),
		)
		return nil

	case "force":
		if len(args) < 1 {
			return fmt.Errorf("version required: migrate force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(version)

	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func resolveDir(path string, log *zap.Logger) string {
	if path == "" {
		path = defaultMigrationsPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		log.Fatal("Failed to resolve migrations path", zap.String("path", path), zap.Error(err))
	}
	return abs
}

func printUsage() {
	fmt.Println(`Stock engine schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Force set migration version after a failed run
  create <name> [desc]  Create the next numbered migration pair
  list                  List migrations on disk

Flags:
  -path string          Migrations directory (default: embedded set; ./migrations for create/list)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  ERP_DATABASE_HOST, ERP_DATABASE_PORT, ERP_DATABASE_USER,
  ERP_DATABASE_PASSWORD, ERP_DATABASE_DBNAME, ERP_DATABASE_SSLMODE

Examples:
  migrate up
  migrate step -1
  migrate create add_batch_supplier "Track supplier per batch"`)
}
