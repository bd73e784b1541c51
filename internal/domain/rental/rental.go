package rental

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rental-billing/internal/domain/product"
)

// ErrNotFound is returned by a Store when a rental does not exist.
var ErrNotFound = errors.New("rental not found")

// Status is the lifecycle state of a rental.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCanceled:
		return true
	default:
		return false
	}
}

// BorrowedLine is one product taken out on a rental. DailyRate and Parts are
// snapshots taken at creation; later catalog changes never affect them.
type BorrowedLine struct {
	ProductID   string                   `json:"product_id"`
	ProductName string                   `json:"product_name"`
	Type        product.Type             `json:"type"`
	Quantity    int                      `json:"quantity"`
	DailyRate   decimal.Decimal          `json:"daily_rate"`
	StartDate   time.Time                `json:"start_date"`
	Parts       []product.PartAllocation `json:"parts,omitempty"`
}

// ReturnedLine is one discrete return event. ParentProductID is set when the
// returned product is a part allocation of a combo line. Lines are
// append-only.
type ReturnedLine struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	ParentProductID string          `json:"parent_product_id,omitempty"`
	Quantity        int             `json:"quantity"`
	ReturnDate      time.Time       `json:"return_date"`
	DiscountDays    int             `json:"discount_days"`
	DailyRate       decimal.Decimal `json:"daily_rate"`
	RawDays         int             `json:"raw_days"`
	BillableDays    int             `json:"billable_days"`
	Cost            decimal.Decimal `json:"cost"`
	// Auto marks lines generated by a terminal transition.
	Auto bool `json:"auto,omitempty"`
}

// Rental is a customer's borrowing of one or more products. TotalCost and
// Debt are cached projections; Returned is the source of truth.
type Rental struct {
	ID            string
	RentalNumber  int64
	CustomerID    string
	CarID         string
	WorkStartDate time.Time
	Status        Status
	Borrowed      []BorrowedLine
	Returned      []ReturnedLine
	PrepaidAmount decimal.Decimal
	TotalCost     decimal.Decimal
	Debt          decimal.Decimal
	Description   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
}

// Clone returns a deep copy so a failed operation never leaks partial
// mutations into the caller's value.
func (r *Rental) Clone() *Rental {
	c := *r
	c.Borrowed = make([]BorrowedLine, len(r.Borrowed))
	for i, l := range r.Borrowed {
		l.Parts = slices.Clone(l.Parts)
		c.Borrowed[i] = l
	}
	c.Returned = slices.Clone(r.Returned)
	if r.ClosedAt != nil {
		t := *r.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// Line returns the top-level borrowed line for productID.
func (r *Rental) Line(productID string) (*BorrowedLine, bool) {
	for i := range r.Borrowed {
		if r.Borrowed[i].ProductID == productID {
			return &r.Borrowed[i], true
		}
	}
	return nil, false
}

// Store persists rentals. Create assigns RentalNumber. Save replaces the
// stored rental in one atomic write.
type Store interface {
	Create(ctx context.Context, r *Rental) error
	Get(ctx context.Context, id string) (*Rental, error)
	Save(ctx context.Context, r *Rental) error
	Delete(ctx context.Context, id string) error
	ListByCustomer(ctx context.Context, customerID string) ([]Rental, error)
	ListActive(ctx context.Context) ([]Rental, error)
}

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
