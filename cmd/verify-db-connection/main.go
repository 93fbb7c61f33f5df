package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"go-bridge/internal/config"

	_ "github.com/lib/pq"
)

// bridgeTables columns the bridge cannot run without, per table
var bridgeTables = map[string][]string{
	"chain_mappings":        {"local_chain_id", "external_chain_id", "emitter"},
	"processed_messages":    {"source_chain", "emitter", "sequence"},
	"account_balances":      {"asset", "account", "amount"},
	"token_ownerships":      {"asset", "token_id", "owner"},
	"outstanding_transfers": {"asset", "external_chain_id", "amount"},
	"role_assignments":      {"account", "role"},
	"bridge_settings":       {"paused", "consistency_level"},
	"bridge_events":         {"event_id", "type", "payload"},
	"transfer_records":      {"id", "direction", "status"},
}

func main() {
	fmt.Println("🔍 Verifying bridge database connection and schema...")

	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("verify-db-connection checks postgres deployments, database.driver is %q", cfg.Database.Driver)
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var dbName string
	if err := sqlDB.QueryRowContext(ctx, "SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	missing := 0
	for table, columns := range bridgeTables {
		for _, column := range columns {
			var exists bool
			err := sqlDB.QueryRowContext(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM information_schema.columns
					WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
				)`, table, column).Scan(&exists)
			if err != nil {
				log.Fatalf("Failed to query %s.%s: %v", table, column, err)
			}
			if !exists {
				fmt.Printf("❌ %s.%s is missing\n", table, column)
				missing++
			}
		}
	}

	var processed int64
	if err := sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM processed_messages").Scan(&processed); err == nil {
		fmt.Printf("📋 processed_messages rows: %d\n", processed)
	}

	if missing > 0 {
		fmt.Printf("❌ %d columns missing; start bridged once to run migrations\n", missing)
		os.Exit(1)
	}
	fmt.Println("✅ Bridge schema verified")
}
