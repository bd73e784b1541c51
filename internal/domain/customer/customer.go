package customer

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is a renter. Balance is positive when the customer owes money.
type Customer struct {
	ID      string
	Name    string
	Phone   string
	Address string
	Balance decimal.Decimal
}

// Store provides customer lookups and persists the reconciled balance.
type Store interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
}
