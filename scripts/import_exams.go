// Imports an exam catalogue into the configured database without starting the server.
//
// The server can do the same on startup with -seed; this script is meant for CI checks of catalogue files
// (-dry-run) and for loading content into a database that is already serving traffic.
//
// Usage: go run scripts/import_exams.go -file configs/exams.example.yaml [-dry-run]

package main

import (
	"context"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/pkg/database"
	"exam_prep_backend/pkg/logger"
	"flag"
	"log"
	"os"
)

func main() {
	file := flag.String("file", "configs/exams.example.yaml", "catalogue to import")
	dryRun := flag.Bool("dry-run", false, "validate the catalogue and exit without writing")
	flag.Parse()

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read catalogue: %v", err)
	}

	if *dryRun {
		parsed, warnings, err := service.NewSeedService(nil).Parse(raw)
		if err != nil {
			log.Fatalf("Catalogue rejected: %v", err)
		}
		for _, w := range warnings {
			log.Printf("warning: %s", w)
		}
		log.Printf("Catalogue is valid: %d exams", len(parsed.Exams))
		return
	}

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, true)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	seeder := service.NewSeedService(repository.NewExamRepository(db))
	report, err := seeder.Import(context.Background(), raw)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	log.Printf("Done: %d imported, %d skipped, %d warnings", report.Imported, report.Skipped, len(report.Warnings))
}
