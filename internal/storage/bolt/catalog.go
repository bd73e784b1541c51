package bolt

import (
	"context"

	bolt "github.com/boltdb/bolt"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rental-billing/internal/domain/car"
	"github.com/xenking/rental-billing/internal/domain/customer"
	"github.com/xenking/rental-billing/internal/domain/product"
)

var (
	_ product.Catalog = (*ProductStore)(nil)
	_ car.Store       = (*CarStore)(nil)
	_ customer.Store  = (*CustomerStore)(nil)
)

// ProductStore implements product.Catalog.
type ProductStore struct {
	db *bolt.DB
}

// GetByID returns a product by identifier.
func (s *ProductStore) GetByID(_ context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketProducts), id, &p, product.ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDs returns products matching any of ids. Missing IDs are skipped.
func (s *ProductStore) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProducts)
		for _, id := range ids {
			var p product.Product
			err := get(b, id, &p, product.ErrNotFound)
			if errors.Is(err, product.ErrNotFound) {
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "decode product %s", id)
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// Upsert stores a product, replacing any previous version.
func (s *ProductStore) Upsert(_ context.Context, p *product.Product) error {
	if err := p.Validate(); err != nil {
		return errors.Wrap(err, "validate product")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketProducts), p.ID, p)
	})
}

// CarStore implements car.Store.
type CarStore struct {
	db *bolt.DB
}

// GetByID returns a car by identifier.
func (s *CarStore) GetByID(_ context.Context, id string) (*car.Car, error) {
	var c car.Car
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketCars), id, &c, car.ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Upsert stores a car.
func (s *CarStore) Upsert(_ context.Context, c *car.Car) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketCars), c.ID, c)
	})
}

// CustomerStore implements customer.Store.
type CustomerStore struct {
	db *bolt.DB
}

// GetByID returns a customer by identifier.
func (s *CustomerStore) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketCustomers), id, &c, customer.ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateBalance stores the reconciled balance.
func (s *CustomerStore) UpdateBalance(_ context.Context, id string, balance decimal.Decimal) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCustomers)
		var c customer.Customer
		if err := get(b, id, &c, customer.ErrNotFound); err != nil {
			return err
		}
		c.Balance = balance
		return put(b, id, &c)
	})
}

// Upsert stores a customer. An existing balance is preserved.
func (s *CustomerStore) Upsert(_ context.Context, c *customer.Customer) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCustomers)
		stored := *c
		var existing customer.Customer
		switch err := get(b, c.ID, &existing, customer.ErrNotFound); {
		case err == nil:
			stored.Balance = existing.Balance
		case !errors.Is(err, customer.ErrNotFound):
			return err
		}
		return put(b, c.ID, &stored)
	})
}
