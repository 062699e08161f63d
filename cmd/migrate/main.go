package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"startuphub-comms/internal/config"
	"startuphub-comms/internal/store"
)

const usage = `
StartupHub Comms - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up       Apply all SQL migrations in lexical order
  status   Show database connection status

Flags:
  -migrations string   Path to migrations directory (default "migrations")

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go -migrations ./migrations up
`

func main() {
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		if err := applyMigrations(ctx, pool, *migrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		fmt.Println("migrations applied")
	case "status":
		fmt.Printf("connected to %s:%s/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}
		fmt.Printf("applied %s\n", filepath.Base(f))
	}
	return nil
}
