package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rental-billing/internal/domain/domainerr"
)

// Method is how a payment was made.
type Method string

const (
	MethodCash     Method = "cash"
	MethodCard     Method = "card"
	MethodTransfer Method = "transfer"
	// MethodPrepaid is recorded automatically for a rental's prepaid amount.
	MethodPrepaid Method = "prepaid"
	MethodOther   Method = "other"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer, MethodPrepaid, MethodOther:
		return true
	default:
		return false
	}
}

// Payment is money received from a customer, optionally against a rental.
type Payment struct {
	ID         string
	CustomerID string
	RentalID   string
	Amount     decimal.Decimal
	// Discount is forgiven from Amount when settling debt.
	Discount decimal.Decimal
	Method   Method
	Date     time.Time
	Memo     string
}

// Net is the amount credited against the customer's debt.
func (p *Payment) Net() decimal.Decimal {
	return p.Amount.Sub(p.Discount)
}

// NetTotal sums Net over payments.
func NetTotal(payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for i := range payments {
		sum = sum.Add(payments[i].Net())
	}
	return sum
}

// New validates req and builds a payment dated now when req.Date is zero.
// Referenced customers and rentals are not checked here.
func New(req RecordRequest, now time.Time) (*Payment, error) {
	if req.CustomerID == "" {
		return nil, domainerr.Invalid("customer_id", "required")
	}
	if !req.Amount.IsPositive() {
		return nil, domainerr.Invalid("amount", "must be greater than 0")
	}
	if req.Discount.IsNegative() {
		return nil, domainerr.Invalid("discount", "must not be negative")
	}
	if req.Discount.GreaterThan(req.Amount) {
		return nil, domainerr.Invalid("discount", "must not exceed amount")
	}
	if req.Method == "" {
		req.Method = MethodCash
	}
	if !req.Method.Valid() {
		return nil, domainerr.Invalid("method", "unknown payment method "+string(req.Method))
	}
	if req.Date.IsZero() {
		req.Date = now.UTC()
	}
	return &Payment{
		ID:         uuid.New().String(),
		CustomerID: req.CustomerID,
		RentalID:   req.RentalID,
		Amount:     req.Amount.Round(2),
		Discount:   req.Discount.Round(2),
		Method:     req.Method,
		Date:       req.Date,
		Memo:       req.Memo,
	}, nil
}

// Store persists payments. Payments are append-only.
type Store interface {
	Append(ctx context.Context, p *Payment) error
	ListByCustomer(ctx context.Context, customerID string) ([]Payment, error)
	ListByRental(ctx context.Context, rentalID string) ([]Payment, error)
}
