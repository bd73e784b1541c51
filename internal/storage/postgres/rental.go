package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rental-billing/internal/domain/rental"
)

const (
	rentalColumns = `id, rental_number, customer_id, car_id, work_start_date, status, borrowed,
		prepaid_amount, total_cost, debt, description, created_at, updated_at, closed_at`

	createRentalSQL = `INSERT INTO rentals (id, customer_id, car_id, work_start_date, status, borrowed,
			prepaid_amount, total_cost, debt, description, created_at, updated_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING rental_number`

	updateRentalSQL = `UPDATE rentals SET
			car_id = $2, status = $3, borrowed = $4, prepaid_amount = $5, total_cost = $6,
			debt = $7, description = $8, updated_at = $9, closed_at = $10
		WHERE id = $1`

	getRentalSQL = `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1`

	listRentalsByCustomerSQL = `SELECT ` + rentalColumns + ` FROM rentals
		WHERE customer_id = $1 ORDER BY rental_number`

	listActiveRentalsSQL = `SELECT ` + rentalColumns + ` FROM rentals
		WHERE status = 'active' ORDER BY rental_number`

	deleteRentalSQL = `DELETE FROM rentals WHERE id = $1`

	returnedColumns = `rental_id, id, product_id, parent_product_id, quantity, return_date, discount_days,
		daily_rate, raw_days, billable_days, cost, auto`

	listReturnedSQL = `SELECT ` + returnedColumns + ` FROM returned_lines
		WHERE rental_id = ANY($1) ORDER BY rental_id, seq`

	insertReturnedSQL = `INSERT INTO returned_lines (seq, ` + returnedColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`
)

var _ rental.Store = (*RentalStore)(nil)

// RentalStore implements rental.Store backed by PostgreSQL. Borrowed lines
// are kept as JSONB on the rental row; returned lines live in their own
// append-only table.
type RentalStore struct {
	pool *pgxpool.Pool
}

// NewRentalStore returns a RentalStore that uses the given pool.
func NewRentalStore(pool *pgxpool.Pool) *RentalStore {
	return &RentalStore{pool: pool}
}

// Create inserts a rental and assigns its rental number from a sequence.
func (s *RentalStore) Create(ctx context.Context, r *rental.Rental) error {
	borrowed, err := json.Marshal(r.Borrowed)
	if err != nil {
		return fmt.Errorf("marshaling borrowed lines: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, createRentalSQL,
			r.ID, r.CustomerID, nullString(r.CarID), r.WorkStartDate, string(r.Status), borrowed,
			r.PrepaidAmount, r.TotalCost, r.Debt, r.Description, r.CreatedAt, r.UpdatedAt, r.ClosedAt,
		).Scan(&r.RentalNumber); err != nil {
			return fmt.Errorf("creating rental %q: %w", r.ID, err)
		}
		return insertReturned(ctx, tx, r)
	})
}

// Save updates the rental row and appends returned lines not stored yet,
// in one transaction.
func (s *RentalStore) Save(ctx context.Context, r *rental.Rental) error {
	borrowed, err := json.Marshal(r.Borrowed)
	if err != nil {
		return fmt.Errorf("marshaling borrowed lines: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateRentalSQL,
			r.ID, nullString(r.CarID), string(r.Status), borrowed, r.PrepaidAmount,
			r.TotalCost, r.Debt, r.Description, r.UpdatedAt, r.ClosedAt,
		)
		if err != nil {
			return fmt.Errorf("updating rental %q: %w", r.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return rental.ErrNotFound
		}
		return insertReturned(ctx, tx, r)
	})
}

func insertReturned(ctx context.Context, tx pgx.Tx, r *rental.Rental) error {
	if len(r.Returned) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, rl := range r.Returned {
		batch.Queue(insertReturnedSQL,
			i, r.ID, rl.ID, rl.ProductID, rl.ParentProductID, rl.Quantity, rl.ReturnDate,
			rl.DiscountDays, rl.DailyRate, rl.RawDays, rl.BillableDays, rl.Cost, rl.Auto,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("appending returned lines of %q: %w", r.ID, err)
	}
	return nil
}

// Get returns a rental with its returned lines.
func (s *RentalStore) Get(ctx context.Context, id string) (*rental.Rental, error) {
	rows, err := s.pool.Query(ctx, getRentalSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting rental %q: %w", id, err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRental)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rental.ErrNotFound
		}
		return nil, fmt.Errorf("getting rental %q: %w", id, err)
	}

	rentals := []rental.Rental{r}
	if err := s.attachReturned(ctx, rentals); err != nil {
		return nil, err
	}
	return &rentals[0], nil
}

// Delete removes a rental and its returned lines.
func (s *RentalStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, deleteRentalSQL, id)
	if err != nil {
		return fmt.Errorf("deleting rental %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return rental.ErrNotFound
	}
	return nil
}

// ListByCustomer returns a customer's rentals ordered by rental number.
func (s *RentalStore) ListByCustomer(ctx context.Context, customerID string) ([]rental.Rental, error) {
	return s.list(ctx, listRentalsByCustomerSQL, customerID)
}

// ListActive returns every active rental.
func (s *RentalStore) ListActive(ctx context.Context) ([]rental.Rental, error) {
	return s.list(ctx, listActiveRentalsSQL)
}

func (s *RentalStore) list(ctx context.Context, sql string, args ...any) ([]rental.Rental, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing rentals: %w", err)
	}
	rentals, err := pgx.CollectRows(rows, scanRental)
	if err != nil {
		return nil, fmt.Errorf("listing rentals: %w", err)
	}
	if err := s.attachReturned(ctx, rentals); err != nil {
		return nil, err
	}
	return rentals, nil
}

func (s *RentalStore) attachReturned(ctx context.Context, rentals []rental.Rental) error {
	if len(rentals) == 0 {
		return nil
	}
	ids := make([]string, len(rentals))
	byID := make(map[string]int, len(rentals))
	for i := range rentals {
		ids[i] = rentals[i].ID
		byID[rentals[i].ID] = i
	}

	rows, err := s.pool.Query(ctx, listReturnedSQL, ids)
	if err != nil {
		return fmt.Errorf("listing returned lines: %w", err)
	}
	type lineRow struct {
		rentalID string
		line     rental.ReturnedLine
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (lineRow, error) {
		var lr lineRow
		rl := &lr.line
		err := row.Scan(&lr.rentalID, &rl.ID, &rl.ProductID, &rl.ParentProductID, &rl.Quantity,
			&rl.ReturnDate, &rl.DiscountDays, &rl.DailyRate, &rl.RawDays, &rl.BillableDays,
			&rl.Cost, &rl.Auto)
		rl.ReturnDate = utc(rl.ReturnDate)
		return lr, err
	})
	if err != nil {
		return fmt.Errorf("listing returned lines: %w", err)
	}

	for _, lr := range lines {
		i := byID[lr.rentalID]
		rentals[i].Returned = append(rentals[i].Returned, lr.line)
	}
	return nil
}

func scanRental(row pgx.CollectableRow) (rental.Rental, error) {
	var (
		r        rental.Rental
		carID    *string
		status   string
		borrowed []byte
		closedAt *time.Time
	)
	if err := row.Scan(
		&r.ID, &r.RentalNumber, &r.CustomerID, &carID, &r.WorkStartDate, &status, &borrowed,
		&r.PrepaidAmount, &r.TotalCost, &r.Debt, &r.Description, &r.CreatedAt, &r.UpdatedAt, &closedAt,
	); err != nil {
		return r, err
	}
	if err := json.Unmarshal(borrowed, &r.Borrowed); err != nil {
		return r, fmt.Errorf("unmarshaling borrowed lines of %q: %w", r.ID, err)
	}

	r.CarID = derefString(carID)
	r.Status = rental.Status(status)
	r.WorkStartDate = utc(r.WorkStartDate)
	r.CreatedAt = utc(r.CreatedAt)
	r.UpdatedAt = utc(r.UpdatedAt)
	if closedAt != nil {
		t := utc(*closedAt)
		r.ClosedAt = &t
	}
	for i := range r.Borrowed {
		r.Borrowed[i].StartDate = utc(r.Borrowed[i].StartDate)
	}
	return r, nil
}
