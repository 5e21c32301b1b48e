package main

import (
	"context"
	"log"
	"os"

	"github.com/david/donorflow/internal/api"
	"github.com/david/donorflow/internal/db"
	"github.com/david/donorflow/internal/sources"
)

func main() {
	ctx := context.Background()

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	srv := api.NewServer(pool)

	// Refresh the curated cache from the embedded catalog so a fresh
	// database serves opportunities without a manual seed call.
	if cat, err := sources.LoadCatalog(os.Getenv("CATALOG_PATH")); err != nil {
		log.Printf("curated catalog unavailable: %v", err)
	} else if n, err := srv.Adapter.SeedCurated(ctx, cat); err != nil {
		log.Printf("curated seed failed: %v", err)
	} else {
		log.Printf("curated catalog: %d entries", n)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	log.Printf("listening on :%s", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
