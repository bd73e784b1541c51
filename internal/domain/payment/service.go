package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/rental-billing/internal/domain/customer"
	"github.com/xenking/rental-billing/internal/domain/domainerr"
)

// RentalLinker resolves the rental a payment references and refreshes its
// cached debt once the payment is stored. WithLock runs fn while holding the
// rental's mutation lock; RentalCustomer may be called inside fn, RefreshDebt
// must not.
type RentalLinker interface {
	RentalCustomer(ctx context.Context, rentalID string) (string, error)
	RefreshDebt(ctx context.Context, rentalID string) error
	WithLock(ctx context.Context, rentalID string, fn func(ctx context.Context) error) error
}

// BalanceRefresher recomputes and persists a customer's balance.
type BalanceRefresher interface {
	Refresh(ctx context.Context, customerID string) (decimal.Decimal, error)
}

// RecordRequest holds the input for recording a payment.
type RecordRequest struct {
	CustomerID string
	RentalID   string
	Amount     decimal.Decimal
	Discount   decimal.Decimal
	Method     Method
	// Date defaults to the current time when zero.
	Date time.Time
	Memo string
}

// Service records payments and keeps rental debt and customer balance in
// step with them.
type Service struct {
	payments  Store
	customers customer.Store
	rentals   RentalLinker
	balances  BalanceRefresher
	now       func() time.Time
}

// NewService creates a payment Service.
func NewService(
	payments Store,
	customers customer.Store,
	rentals RentalLinker,
	balances BalanceRefresher,
) *Service {
	return &Service{
		payments:  payments,
		customers: customers,
		rentals:   rentals,
		balances:  balances,
		now:       time.Now,
	}
}

// RecordPayment validates and appends a payment, then refreshes the debt of
// the referenced rental and the customer's balance.
func (s *Service) RecordPayment(ctx context.Context, req RecordRequest) (*Payment, error) {
	p, err := New(req, s.now())
	if err != nil {
		return nil, err
	}

	if _, err := s.customers.GetByID(ctx, req.CustomerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, domainerr.NotFound("customer", req.CustomerID)
		}
		return nil, errors.Wrap(err, "get customer")
	}

	if req.RentalID == "" {
		if err := s.payments.Append(ctx, p); err != nil {
			return nil, errors.Wrap(err, "append payment")
		}
	} else {
		// Serialized with returns and deletion of the same rental.
		err := s.rentals.WithLock(ctx, req.RentalID, func(ctx context.Context) error {
			owner, err := s.rentals.RentalCustomer(ctx, req.RentalID)
			if err != nil {
				return errors.Wrap(err, "resolve rental")
			}
			if owner != req.CustomerID {
				return domainerr.Invalid("rental_id", "rental belongs to another customer")
			}
			if err := s.payments.Append(ctx, p); err != nil {
				return errors.Wrap(err, "append payment")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	lg := zctx.From(ctx).With(
		zap.String("payment_id", p.ID),
		zap.String("customer_id", p.CustomerID),
	)
	lg.Info("Payment recorded",
		zap.String("rental_id", p.RentalID),
		zap.Stringer("amount", p.Amount),
		zap.Stringer("discount", p.Discount),
	)

	if p.RentalID != "" {
		if err := s.rentals.RefreshDebt(ctx, p.RentalID); err != nil {
			lg.Warn("Refresh rental debt failed", zap.Error(err))
		}
	}
	if _, err := s.balances.Refresh(ctx, p.CustomerID); err != nil {
		lg.Warn("Refresh balance failed", zap.Error(err))
	}

	return p, nil
}

// ListByCustomer returns every payment of a customer.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Payment, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, domainerr.NotFound("customer", customerID)
		}
		return nil, errors.Wrap(err, "get customer")
	}
	payments, err := s.payments.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	return payments, nil
}
