package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"rag-document-platform/internal/app"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/database"
	"rag-document-platform/internal/docstore"
	"rag-document-platform/internal/logger"
	"rag-document-platform/services"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  up      - Apply pending schema migrations")
		fmt.Println("  verify  - Report schema version and store/index consistency")
		fmt.Println("  export  - Write the document inventory to an Excel file (default inventory.xlsx)")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	ctx := context.Background()
	password, err := app.DBPassword(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to resolve database password: %v", err)
	}

	// Open applies pending migrations
	db, err := database.Open(ctx, cfg, password)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	switch command {
	case "up":
		version, err := db.SchemaVersion(ctx)
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Printf("Schema is at version %d (%s)\n", version, db.Dialect)

	case "verify":
		if err := verify(ctx, db); err != nil {
			log.Fatalf("Verification failed: %v", err)
		}

	case "export":
		path := "inventory.xlsx"
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		if err := export(ctx, db, path); err != nil {
			log.Fatalf("Export failed: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func verify(ctx context.Context, db *database.DB) error {
	fmt.Println("Verifying document store...")

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	migrations, err := database.Migrations(db.Dialect)
	if err != nil {
		return err
	}
	latest := 0
	if n := len(migrations); n > 0 {
		latest = migrations[n-1].Version
	}

	stats, err := docstore.New(db).Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("  Schema version:     %d/%d\n", version, latest)
	fmt.Printf("  Documents:          %d\n", stats.Documents)
	fmt.Printf("  Chunks:             %d\n", stats.Chunks)
	fmt.Printf("  Unindexed chunks:   %d\n", stats.Unindexed)
	fmt.Printf("  Pending deletions:  %d\n", stats.PendingDeletions)

	if version != latest {
		return fmt.Errorf("schema version %d behind latest %d", version, latest)
	}
	if stats.Unindexed > 0 || stats.PendingDeletions > 0 {
		fmt.Println("Store and index disagree; the worker's reconcile sweep will repair them.")
		return nil
	}
	fmt.Println("Store and index are consistent.")
	return nil
}

func export(ctx context.Context, db *database.DB, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	report, err := services.ExportInventory(ctx, docstore.New(db), out)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Printf("Exported %d documents and %d chunks to %s\n", report.Documents, report.Chunks, path)
	return nil
}
