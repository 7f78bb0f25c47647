// Command seed-catalog bulk-loads products into the catalog from a JSON
// file (optionally gzip-compressed). Every record goes through the same
// validation path as a single product insert, and each record's outcome is
// independent: one bad record never blocks the rest of the batch.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/product"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/storage/postgres"
)

const insertWorkers = 8

type productJSON struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func main() {
	var (
		databaseURL string
		catalogFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/products.json", "path to products JSON file (.json or .json.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile); err != nil {
		slog.Error("catalog load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, catalogFile string) error {
	records, err := readCatalog(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)

	slog.Info("inserting products", slog.Int("count", len(records)))

	// Each record succeeds or fails on its own; workers log failures and
	// keep going rather than cancelling the group.
	var inserted, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(insertWorkers)
	for _, rec := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := repo.Insert(ctx, product.Product{
				Name:        rec.Name,
				Category:    rec.Category,
				Description: rec.Description,
				Price:       rec.Price,
				Quantity:    rec.Quantity,
			})
			if err != nil {
				failed.Add(1)
				slog.Error("insert failed",
					slog.String("name", rec.Name),
					slog.String("error", err.Error()))
				return nil
			}
			inserted.Add(1)
			slog.Info("inserted product", slog.String("name", rec.Name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("catalog load completed",
		slog.Int64("inserted", inserted.Load()),
		slog.Int64("failed", failed.Load()))
	return nil
}

// readCatalog parses the product records from path, transparently
// decompressing .gz files.
func readCatalog(path string) ([]productJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var records []productJSON
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return records, nil
}
