package main

import (
	"context"
	"flag"
	"log"
	"os"

	"emergency-dispatch-be/internal/repository/implementation"
	"emergency-dispatch-be/internal/roster"
	"emergency-dispatch-be/pkg/database"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

func main() {
	path := flag.String("file", "responders.yaml", "responder roster to load")
	flag.Parse()

	// Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, false)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	responders, err := roster.Load(*path)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}

	color.Cyan("Seeding %d responders from %s", len(responders), *path)

	repo := implementation.NewResponderRepository(db)
	ctx := context.Background()
	failed := 0
	for i := range responders {
		r := &responders[i]
		if err := repo.Upsert(ctx, r); err != nil {
			color.Red("  %s: %v", r.Id, err)
			failed++
			continue
		}
		color.Green("  %s (%s, %s)", r.Id, r.Role, r.Status)
	}

	if failed > 0 {
		color.Yellow("Seeding finished with %d failures", failed)
		os.Exit(1)
	}
	color.Cyan("Responder seeding completed!")
}
