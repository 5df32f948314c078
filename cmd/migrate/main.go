package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	"furnidesk/internal/database"
	"furnidesk/internal/fixtures"
	"furnidesk/internal/migrations"
	"furnidesk/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "./furnidesk.db", "Path to the database file")
	seed := flag.Bool("seed", false, "Write the demo staff, clients and conversations after migrating")
	flag.Parse()

	if err := security.ValidateFilePath(*dbPath); err != nil {
		log.Fatalf("Invalid database path: %v", err)
	}

	ctx := context.Background()

	db, err := sql.Open("sqlite3", *dbPath+"?_busy_timeout=5000")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	applied, err := migrations.Apply(ctx, db)
	_ = db.Close()
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	if len(applied) == 0 {
		fmt.Println("Schema is up to date")
	}
	for _, version := range applied {
		fmt.Printf("Applied migration %s\n", version)
	}

	if !*seed {
		return
	}

	store, err := database.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	if err := fixtures.Seed(ctx, store, time.Now()); err != nil {
		log.Fatalf("Failed to seed demo data: %v", err)
	}
	fmt.Printf("Seeded %d users, %d clients and %d threads\n",
		len(fixtures.Staff()), len(fixtures.Clients()), len(fixtures.Threads(time.Now())))
}
