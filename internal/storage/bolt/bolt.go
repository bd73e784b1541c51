// Package bolt implements the domain stores on an embedded BoltDB file.
// Every entity lives in its own bucket as a JSON value keyed by ID, so a
// single-node deployment needs no external database.
package bolt

import (
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/go-faster/errors"
)

var (
	bucketProducts  = []byte("products")
	bucketCars      = []byte("cars")
	bucketCustomers = []byte("customers")
	bucketRentals   = []byte("rentals")
	bucketPayments  = []byte("payments")
)

// DB wraps a BoltDB database and hands out the per-entity stores.
type DB struct {
	db *bolt.DB
}

// Open opens (or creates) a BoltDB database at path and ensures every bucket
// exists.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketProducts, bucketCars, bucketCustomers, bucketRentals, bucketPayments} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close releases the database file lock.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks that the database file is readable.
func (d *DB) Ping() error {
	return d.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketRentals) == nil {
			return errors.New("rentals bucket missing")
		}
		return nil
	})
}

func (d *DB) Products() *ProductStore   { return &ProductStore{db: d.db} }
func (d *DB) Cars() *CarStore           { return &CarStore{db: d.db} }
func (d *DB) Customers() *CustomerStore { return &CustomerStore{db: d.db} }
func (d *DB) Rentals() *RentalStore     { return &RentalStore{db: d.db} }
func (d *DB) Payments() *PaymentStore   { return &PaymentStore{db: d.db} }

// get decodes the value stored under key into v. It returns notFound when the
// key is absent.
func get(b *bolt.Bucket, key string, v any, notFound error) error {
	data := b.Get([]byte(key))
	if data == nil {
		return notFound
	}
	return json.Unmarshal(data, v)
}

func put(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	return b.Put([]byte(key), data)
}

// each decodes every value of b into a fresh T and passes it to fn.
func each[T any](b *bolt.Bucket, fn func(*T)) error {
	return b.ForEach(func(_, data []byte) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		fn(&v)
		return nil
	})
}
