package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/rental-billing/internal/domain/car"
	"github.com/xenking/rental-billing/internal/domain/customer"
	"github.com/xenking/rental-billing/internal/domain/product"
	"github.com/xenking/rental-billing/internal/storage/bolt"
	"github.com/xenking/rental-billing/internal/storage/postgres"
)

// writer is the seeding surface shared by both storage backends.
type writer struct {
	products interface {
		Upsert(ctx context.Context, p *product.Product) error
	}
	customers interface {
		Upsert(ctx context.Context, c *customer.Customer) error
	}
	cars interface {
		Upsert(ctx context.Context, c *car.Car) error
	}
}

func main() {
	var (
		driver      string
		databaseURL string
		boltPath    string
		catalogFile string
	)

	flag.StringVar(&driver, "driver", "postgres", "storage driver: postgres or bolt")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&boltPath, "bolt-path", "rental.db", "BoltDB file for the bolt driver")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "catalog JSON file, optionally gzip-compressed (.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, driver, databaseURL, boltPath, catalogFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, driver, databaseURL, boltPath, catalogFile string) error {
	cat, err := loadCatalog(catalogFile)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	switch driver {
	case "postgres":
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
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
		return seed(ctx, writer{
			products:  postgres.NewProductStore(pool),
			customers: postgres.NewCustomerStore(pool),
			cars:      postgres.NewCarStore(pool),
		}, cat)

	case "bolt":
		slog.Info("opening bolt database", slog.String("path", boltPath))
		db, err := bolt.Open(boltPath)
		if err != nil {
			return errors.Wrap(err, "open bolt")
		}
		defer db.Close()
		return seed(ctx, writer{
			products:  db.Products(),
			customers: db.Customers(),
			cars:      db.Cars(),
		}, cat)

	default:
		return errors.Errorf("unknown driver %q", driver)
	}
}

func seed(ctx context.Context, w writer, cat *catalog) error {
	slog.Info("upserting products", slog.Int("count", len(cat.Products)))
	for i := range cat.Products {
		p := &cat.Products[i]
		if err := w.products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("type", string(p.Type)),
			slog.String("daily_rate", p.DailyRate.StringFixed(2)),
		)
	}

	for i := range cat.Customers {
		c := &cat.Customers[i]
		if err := w.customers.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
		slog.Info("upserted customer", slog.String("id", c.ID), slog.String("name", c.Name))
	}

	for i := range cat.Cars {
		c := &cat.Cars[i]
		if err := w.cars.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert car %s", c.ID)
		}
		slog.Info("upserted car", slog.String("id", c.ID), slog.String("status", string(c.Status)))
	}
	return nil
}
