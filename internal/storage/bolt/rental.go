package bolt

import (
	"cmp"
	"context"
	"slices"

	bolt "github.com/boltdb/bolt"
	"github.com/go-faster/errors"

	"github.com/xenking/rental-billing/internal/domain/payment"
	"github.com/xenking/rental-billing/internal/domain/rental"
)

var (
	_ rental.Store  = (*RentalStore)(nil)
	_ payment.Store = (*PaymentStore)(nil)
)

// RentalStore implements rental.Store.
type RentalStore struct {
	db *bolt.DB
}

// Create stores a new rental and assigns the next rental number.
func (s *RentalStore) Create(_ context.Context, r *rental.Rental) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRentals)
		if b.Get([]byte(r.ID)) != nil {
			return errors.Errorf("rental %s already exists", r.ID)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return errors.Wrap(err, "next rental number")
		}
		r.RentalNumber = int64(seq)
		return put(b, r.ID, r)
	})
}

// Get returns a rental by identifier.
func (s *RentalStore) Get(_ context.Context, id string) (*rental.Rental, error) {
	var r rental.Rental
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketRentals), id, &r, rental.ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	normalizeRental(&r)
	return &r, nil
}

// Save replaces a stored rental. Previously stored returned lines must be a
// prefix of the new ones.
func (s *RentalStore) Save(_ context.Context, r *rental.Rental) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRentals)
		var stored rental.Rental
		if err := get(b, r.ID, &stored, rental.ErrNotFound); err != nil {
			return err
		}
		if len(r.Returned) < len(stored.Returned) {
			return rental.ErrLedgerRewrite
		}
		for i, rl := range stored.Returned {
			if r.Returned[i].ID != rl.ID {
				return rental.ErrLedgerRewrite
			}
		}
		return put(b, r.ID, r)
	})
}

// Delete removes a rental.
func (s *RentalStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRentals)
		if b.Get([]byte(id)) == nil {
			return rental.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// ListByCustomer returns a customer's rentals ordered by rental number.
func (s *RentalStore) ListByCustomer(_ context.Context, customerID string) ([]rental.Rental, error) {
	return s.filter(func(r *rental.Rental) bool { return r.CustomerID == customerID })
}

// ListActive returns every active rental ordered by rental number.
func (s *RentalStore) ListActive(context.Context) ([]rental.Rental, error) {
	return s.filter(func(r *rental.Rental) bool { return r.Status == rental.StatusActive })
}

func (s *RentalStore) filter(keep func(*rental.Rental) bool) ([]rental.Rental, error) {
	var out []rental.Rental
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketRentals), func(r *rental.Rental) {
			if keep(r) {
				normalizeRental(r)
				out = append(out, *r)
			}
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan rentals")
	}
	slices.SortFunc(out, func(a, b rental.Rental) int {
		return cmp.Compare(a.RentalNumber, b.RentalNumber)
	})
	return out, nil
}

// normalizeRental restores UTC locations lost in the JSON round trip.
func normalizeRental(r *rental.Rental) {
	r.WorkStartDate = r.WorkStartDate.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if r.ClosedAt != nil {
		t := r.ClosedAt.UTC()
		r.ClosedAt = &t
	}
	for i := range r.Borrowed {
		r.Borrowed[i].StartDate = r.Borrowed[i].StartDate.UTC()
	}
	for i := range r.Returned {
		r.Returned[i].ReturnDate = r.Returned[i].ReturnDate.UTC()
	}
}

// PaymentStore implements payment.Store.
type PaymentStore struct {
	db *bolt.DB
}

// Append stores a payment. Payment IDs must be unique.
func (s *PaymentStore) Append(_ context.Context, p *payment.Payment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPayments)
		if b.Get([]byte(p.ID)) != nil {
			return errors.Errorf("payment %s already exists", p.ID)
		}
		return put(b, p.ID, p)
	})
}

// ListByCustomer returns a customer's payments in date order.
func (s *PaymentStore) ListByCustomer(_ context.Context, customerID string) ([]payment.Payment, error) {
	return s.filter(func(p *payment.Payment) bool { return p.CustomerID == customerID })
}

// ListByRental returns payments referencing a rental in date order.
func (s *PaymentStore) ListByRental(_ context.Context, rentalID string) ([]payment.Payment, error) {
	return s.filter(func(p *payment.Payment) bool { return p.RentalID == rentalID })
}

func (s *PaymentStore) filter(keep func(*payment.Payment) bool) ([]payment.Payment, error) {
	var out []payment.Payment
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketPayments), func(p *payment.Payment) {
			if keep(p) {
				p.Date = p.Date.UTC()
				out = append(out, *p)
			}
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan payments")
	}
	slices.SortFunc(out, func(a, b payment.Payment) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
