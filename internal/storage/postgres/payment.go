package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rental-billing/internal/domain/payment"
)

const (
	paymentColumns = `id, customer_id, rental_id, amount, discount, method, paid_at, memo`

	appendPaymentSQL = `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	listPaymentsByCustomerSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE customer_id = $1 ORDER BY paid_at, id`

	listPaymentsByRentalSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE rental_id = $1 ORDER BY paid_at, id`
)

var _ payment.Store = (*PaymentStore)(nil)

// PaymentStore implements payment.Store backed by PostgreSQL.
type PaymentStore struct {
	pool *pgxpool.Pool
}

// NewPaymentStore returns a PaymentStore that uses the given pool.
func NewPaymentStore(pool *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{pool: pool}
}

// Append inserts a payment.
func (s *PaymentStore) Append(ctx context.Context, p *payment.Payment) error {
	if _, err := s.pool.Exec(ctx, appendPaymentSQL,
		p.ID, p.CustomerID, nullString(p.RentalID), p.Amount, p.Discount,
		string(p.Method), p.Date, p.Memo,
	); err != nil {
		return fmt.Errorf("appending payment %q: %w", p.ID, err)
	}
	return nil
}

// ListByCustomer returns a customer's payments in date order.
func (s *PaymentStore) ListByCustomer(ctx context.Context, customerID string) ([]payment.Payment, error) {
	rows, err := s.pool.Query(ctx, listPaymentsByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing payments of customer %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanPayment)
}

// ListByRental returns payments referencing a rental in date order.
func (s *PaymentStore) ListByRental(ctx context.Context, rentalID string) ([]payment.Payment, error) {
	rows, err := s.pool.Query(ctx, listPaymentsByRentalSQL, rentalID)
	if err != nil {
		return nil, fmt.Errorf("listing payments of rental %q: %w", rentalID, err)
	}
	return pgx.CollectRows(rows, scanPayment)
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p        payment.Payment
		rentalID *string
		method   string
	)
	err := row.Scan(&p.ID, &p.CustomerID, &rentalID, &p.Amount, &p.Discount, &method, &p.Date, &p.Memo)
	p.RentalID = derefString(rentalID)
	p.Method = payment.Method(method)
	p.Date = utc(p.Date)
	return p, err
}
