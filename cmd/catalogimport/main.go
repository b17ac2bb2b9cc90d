// Command catalogimport loads a catalog file into the courses table.
// The server reads the catalog from there when DATABASE_URI is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/courseadvisor/internal/db"
	"github.com/nkiryanov/courseadvisor/internal/logger"
	"github.com/nkiryanov/courseadvisor/internal/models"
	"github.com/nkiryanov/courseadvisor/internal/repository"
	"github.com/nkiryanov/courseadvisor/internal/repository/postgres"
	"github.com/nkiryanov/courseadvisor/internal/service/catalog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, _ := logger.NewTextLogger(logger.LevelInfo)

	if err := run(ctx, os.Getenv, os.Args[1:], l); err != nil {
		l.Error("Import failed", "error", err.Error())
		os.Exit(1)
	}
}

type options struct {
	DatabaseDSN string
	CatalogPath string
	OfferedOnly bool

	// Delete existing courses before import
	Replace bool
}

func parseOptions(getenv func(string) string, args []string) (options, error) {
	o := options{
		DatabaseDSN: getenv("DATABASE_URI"),
		CatalogPath: getenv("CATALOG_PATH"),
	}

	fs := pflag.NewFlagSet("catalogimport", pflag.ContinueOnError)
	fs.StringVarP(&o.DatabaseDSN, "database", "d", o.DatabaseDSN, "Database connection string")
	fs.StringVarP(&o.CatalogPath, "catalog", "f", o.CatalogPath, "Catalog file (JSON or YAML)")
	fs.BoolVar(&o.OfferedOnly, "offered-only", false, "Import only offered courses")
	fs.BoolVar(&o.Replace, "replace", false, "Delete existing courses first")

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch {
	case o.DatabaseDSN == "":
		return o, errors.New("database must be set (DATABASE_URI or --database)")
	case o.CatalogPath == "":
		return o, errors.New("catalog file must be set (CATALOG_PATH or --catalog)")
	}

	return o, nil
}

func run(ctx context.Context, getenv func(string) string, args []string, l logger.Logger) error {
	o, err := parseOptions(getenv, args)
	if err != nil {
		return err
	}

	// Read and validate the whole file before touching the database
	cat, err := catalog.LoadFile(o.CatalogPath, catalog.Options{OfferedOnly: o.OfferedOnly})
	if err != nil {
		return fmt.Errorf("can't load catalog. Err: %w", err)
	}

	pool, err := db.ConnectAndMigrate(ctx, o.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	defer pool.Close()

	deleted, err := importCourses(ctx, postgres.NewStorage(pool), cat.Courses(), o.Replace)
	if err != nil {
		return err
	}

	l.Info("Catalog imported", "file", o.CatalogPath, "courses", cat.Len(), "deleted", deleted)
	return nil
}

// Import courses in one transaction, nothing is written if any course fails
func importCourses(ctx context.Context, storage repository.Storage, courses []models.Course, replace bool) (int64, error) {
	var deleted int64

	err := storage.InTx(ctx, func(s repository.Storage) error {
		if replace {
			n, err := s.Course().DeleteCourses(ctx)
			if err != nil {
				return fmt.Errorf("can't delete courses. Err: %w", err)
			}
			deleted = n
		}

		for _, c := range courses {
			if err := s.Course().CreateCourse(ctx, c); err != nil {
				return fmt.Errorf("can't import course %s. Err: %w", c.ID, err)
			}
		}
		return nil
	})

	return deleted, err
}
