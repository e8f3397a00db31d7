package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"nailbook/internal/database"
	"nailbook/internal/domain"
	"nailbook/internal/models"
	"nailbook/internal/supabase"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// CatalogFile is the layout of configs/services.yaml.
type CatalogFile struct {
	Services []struct {
		models.Service `yaml:",inline"`
		Prices         *models.PriceMapping `yaml:"prices"`
	} `yaml:"services"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		catalogPath = flag.String("services", "configs/services.yaml", "path to services.yaml")
		driver      = flag.String("driver", "sqlite", "sqlite or supabase")
		dbPath      = flag.String("db", "./data/nailbook.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*catalogPath)
	if err != nil {
		return fmt.Errorf("read services: %w", err)
	}
	var catalog CatalogFile
	if err = yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("parse services: %w", err)
	}
	if len(catalog.Services) == 0 {
		return errors.New("no services in yaml")
	}

	var repo domain.Repository
	switch *driver {
	case "supabase":
		client, err := supabase.NewClient(os.Getenv("SUPABASE_URL"), os.Getenv("SUPABASE_SERVICE_KEY"))
		if err != nil {
			return err
		}
		repo = supabase.NewRepository(client, &logger)
	case "sqlite":
		db, err := database.NewDB(*dbPath, &logger)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		repo = db
	default:
		return fmt.Errorf("unknown driver %q", *driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, updated, mapped := 0, 0, 0
	for i := range catalog.Services {
		entry := catalog.Services[i]
		svc := entry.Service
		if svc.ID == "" || svc.Name == "" {
			continue
		}

		_, err = repo.GetService(ctx, svc.ID)
		switch {
		case err == nil:
			if err = repo.UpdateService(ctx, &svc); err != nil {
				return fmt.Errorf("update %s: %w", svc.ID, err)
			}
			updated++
		case errors.Is(err, database.ErrServiceNotFound):
			if err = repo.InsertService(ctx, &svc); err != nil {
				return fmt.Errorf("create %s: %w", svc.ID, err)
			}
			created++
		default:
			return fmt.Errorf("get %s: %w", svc.ID, err)
		}

		if entry.Prices != nil {
			entry.Prices.ServiceID = svc.ID
			if err = repo.UpsertPriceMapping(ctx, entry.Prices); err != nil {
				return fmt.Errorf("price mapping %s: %w", svc.ID, err)
			}
			mapped++
		}
	}

	logger.Info().Int("created", created).Int("updated", updated).Int("price_mappings", mapped).Msg("services seeded")
	return nil
}
