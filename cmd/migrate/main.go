// Package main - Database maintenance CLI for HeftCoder
//
// Usage:
//
//	go run ./cmd/migrate up           # Create or update tables
//	go run ./cmd/migrate status       # Show dialect and connection stats
//	go run ./cmd/migrate rotate-key   # Re-encrypt secrets from SECRETS_MASTER_KEY_OLD to SECRETS_MASTER_KEY
//	go run ./cmd/migrate gen-key      # Print a fresh master key
package main

import (
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"heftcoder/internal/config"
	"heftcoder/internal/db"
	"heftcoder/internal/logging"
	"heftcoder/internal/secrets"
)

func main() {
	config.LoadDotEnv()
	logging.Init()
	defer logging.Sync()
	log := logging.L()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "up":
		database := open(log)
		defer database.Close()
		log.Info("migrations applied", zap.String("dialect", string(database.Dialect())))
	case "status":
		database := open(log)
		defer database.Close()
		showStatus(database)
	case "rotate-key":
		database := open(log)
		defer database.Close()
		rotate(database, log)
	case "gen-key":
		key, err := secrets.GenerateMasterKey()
		if err != nil {
			log.Fatal("failed to generate key", zap.Error(err))
		}
		fmt.Println(key)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func open(log *zap.Logger) *db.Database {
	cfg := db.DefaultConfig()
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.URL = url
	}
	database, err := db.Open(cfg, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	return database
}

func showStatus(database *db.Database) {
	fmt.Printf("Dialect: %s\n", database.Dialect())
	if err := database.Health(); err != nil {
		fmt.Printf("Health:  unreachable (%v)\n", err)
	} else {
		fmt.Println("Health:  ok")
	}
	stats := database.GetStats()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-22s %v\n", k, stats[k])
	}
}

func rotate(database *db.Database, log *zap.Logger) {
	oldKey := os.Getenv("SECRETS_MASTER_KEY_OLD")
	newKey := os.Getenv("SECRETS_MASTER_KEY")
	if oldKey == "" || newKey == "" {
		log.Fatal("rotate-key needs both SECRETS_MASTER_KEY_OLD and SECRETS_MASTER_KEY")
	}
	oldManager, err := secrets.NewManager(oldKey)
	if err != nil {
		log.Fatal("invalid SECRETS_MASTER_KEY_OLD", zap.Error(err))
	}
	newManager, err := secrets.NewManager(newKey)
	if err != nil {
		log.Fatal("invalid SECRETS_MASTER_KEY", zap.Error(err))
	}
	result, err := secrets.RotateMasterKey(database.DB, oldManager, newManager, log)
	if err != nil {
		log.Fatal("rotation failed", zap.Error(err))
	}
	fmt.Printf("Rotated %d of %d secrets (%d skipped, %d failed) in %.1fs\n",
		result.Migrated, result.TotalSecrets, result.Skipped, result.Failed, result.DurationSeconds)
	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}

func printUsage() {
	fmt.Println(`HeftCoder database tool

Usage:
  migrate <command>

Commands:
  up           Create or update tables
  status       Show dialect and connection stats
  rotate-key   Re-encrypt secrets from SECRETS_MASTER_KEY_OLD to SECRETS_MASTER_KEY
  gen-key      Print a fresh base64 master key

Environment:
  DATABASE_URL  Postgres URL or SQLite path (default heftcoder.db)`)
}
