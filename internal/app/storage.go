package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/rental-billing/internal/domain/car"
	"github.com/xenking/rental-billing/internal/domain/customer"
	"github.com/xenking/rental-billing/internal/domain/payment"
	"github.com/xenking/rental-billing/internal/domain/product"
	"github.com/xenking/rental-billing/internal/domain/rental"
	"github.com/xenking/rental-billing/internal/storage/bolt"
	"github.com/xenking/rental-billing/internal/storage/postgres"
	"github.com/xenking/rental-billing/pkg/health"
)

// stores bundles the domain stores of one backend.
type stores struct {
	products  product.Catalog
	customers customer.Store
	cars      car.Store
	rentals   rental.Store
	payments  payment.Store

	ping  health.CheckFunc
	close func()
}

// openStores connects to the configured backend, applying migrations for
// PostgreSQL.
func openStores(ctx context.Context, lg *zap.Logger, cfg StorageConfig) (*stores, error) {
	switch cfg.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		lg.Info("Using PostgreSQL storage")
		return &stores{
			products:  postgres.NewProductStore(pool),
			customers: postgres.NewCustomerStore(pool),
			cars:      postgres.NewCarStore(pool),
			rentals:   postgres.NewRentalStore(pool),
			payments:  postgres.NewPaymentStore(pool),
			ping:      pool.Ping,
			close:     pool.Close,
		}, nil

	case DriverBolt:
		db, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, errors.Wrap(err, "open bolt")
		}
		lg.Info("Using embedded BoltDB storage", zap.String("path", cfg.BoltPath))
		return &stores{
			products:  db.Products(),
			customers: db.Customers(),
			cars:      db.Cars(),
			rentals:   db.Rentals(),
			payments:  db.Payments(),
			ping:      health.PingCheck(db.Ping),
			close: func() {
				if err := db.Close(); err != nil {
					lg.Warn("Close bolt", zap.Error(err))
				}
			},
		}, nil

	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
