package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/rental-billing/internal/domain/car"
	"github.com/xenking/rental-billing/internal/domain/customer"
)

const (
	getCustomerByIDSQL = `SELECT id, name, phone, address, balance FROM customers WHERE id = $1`

	updateCustomerBalanceSQL = `UPDATE customers SET balance = $2 WHERE id = $1`

	upsertCustomerSQL = `INSERT INTO customers (id, name, phone, address)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address`

	getCarByIDSQL = `SELECT id, plate_number, driver_name, driver_phone, status FROM cars WHERE id = $1`

	upsertCarSQL = `INSERT INTO cars (id, plate_number, driver_name, driver_phone, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			plate_number = EXCLUDED.plate_number,
			driver_name = EXCLUDED.driver_name,
			driver_phone = EXCLUDED.driver_phone,
			status = EXCLUDED.status`
)

var (
	_ customer.Store = (*CustomerStore)(nil)
	_ car.Store      = (*CarStore)(nil)
)

// CustomerStore implements customer.Store backed by PostgreSQL.
type CustomerStore struct {
	pool *pgxpool.Pool
}

// NewCustomerStore returns a CustomerStore that uses the given pool.
func NewCustomerStore(pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{pool: pool}
}

// GetByID returns a customer by identifier.
func (s *CustomerStore) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := s.pool.Query(ctx, getCustomerByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (customer.Customer, error) {
		var c customer.Customer
		err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Balance)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// UpdateBalance stores the reconciled balance.
func (s *CustomerStore) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx, updateCustomerBalanceSQL, id, balance)
	if err != nil {
		return fmt.Errorf("updating balance of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// Upsert inserts or updates a customer. The balance is left untouched.
func (s *CustomerStore) Upsert(ctx context.Context, c *customer.Customer) error {
	if _, err := s.pool.Exec(ctx, upsertCustomerSQL, c.ID, c.Name, c.Phone, c.Address); err != nil {
		return fmt.Errorf("upserting customer %q: %w", c.ID, err)
	}
	return nil
}

// CarStore implements car.Store backed by PostgreSQL.
type CarStore struct {
	pool *pgxpool.Pool
}

// NewCarStore returns a CarStore that uses the given pool.
func NewCarStore(pool *pgxpool.Pool) *CarStore {
	return &CarStore{pool: pool}
}

// GetByID returns a car by identifier.
func (s *CarStore) GetByID(ctx context.Context, id string) (*car.Car, error) {
	rows, err := s.pool.Query(ctx, getCarByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting car %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (car.Car, error) {
		var (
			c      car.Car
			status string
		)
		err := row.Scan(&c.ID, &c.PlateNumber, &c.DriverName, &c.DriverPhone, &status)
		c.Status = car.Status(status)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, car.ErrNotFound
		}
		return nil, fmt.Errorf("getting car %q: %w", id, err)
	}
	return &c, nil
}

// Upsert inserts or updates a car.
func (s *CarStore) Upsert(ctx context.Context, c *car.Car) error {
	if _, err := s.pool.Exec(ctx, upsertCarSQL,
		c.ID, c.PlateNumber, c.DriverName, c.DriverPhone, string(c.Status),
	); err != nil {
		return fmt.Errorf("upserting car %q: %w", c.ID, err)
	}
	return nil
}
