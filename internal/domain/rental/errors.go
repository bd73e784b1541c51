package rental

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/rental-billing/internal/domain/domainerr"
)

var (
	// ErrClosed is returned when mutating a completed or canceled rental.
	ErrClosed = errors.New("rental is closed")
	// ErrHasActivity is returned when deleting a rental that already has
	// returns or payments recorded against it.
	ErrHasActivity = errors.New("rental has recorded returns or payments")
	// ErrLedgerRewrite is returned by stores when a save would drop or alter
	// an already stored returned line.
	ErrLedgerRewrite = errors.New("returned lines are append-only")
)

// PaymentNotRecordedError reports a return that was stored while the payment
// taken with it was not.
type PaymentNotRecordedError struct {
	Err error
}

func (e *PaymentNotRecordedError) Error() string {
	return "return recorded, payment not recorded: " + e.Err.Error()
}

func (e *PaymentNotRecordedError) Unwrap() error { return e.Err }

// OverReturnError indicates a return larger than the outstanding quantity.
type OverReturnError struct {
	ProductID       string
	ParentProductID string
	Requested       int
	Remaining       int
}

func (e *OverReturnError) Error() string {
	if e.ParentProductID != "" {
		return fmt.Sprintf("cannot return %d of part %s in %s: only %d outstanding",
			e.Requested, e.ProductID, e.ParentProductID, e.Remaining)
	}
	return fmt.Sprintf("cannot return %d of product %s: only %d outstanding",
		e.Requested, e.ProductID, e.Remaining)
}

// InvalidDateError indicates a return dated before the rental started.
type InvalidDateError struct {
	ReturnDate time.Time
	StartDate  time.Time
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("return date %s is before start date %s",
		e.ReturnDate.Format(time.DateOnly), e.StartDate.Format(time.DateOnly))
}

// InvalidTransitionError indicates an illegal status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition rental from %s to %s", e.From, e.To)
}

// ZeroQuantityError indicates a non-positive quantity. It unwraps to a
// domainerr.ValidationError.
type ZeroQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *ZeroQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

func (e *ZeroQuantityError) Unwrap() error {
	return domainerr.Invalid("quantity", "must be greater than 0")
}
