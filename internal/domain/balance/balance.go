// Package balance reconciles a customer's rentals and payments into the
// running balance stored on the customer.
package balance

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/rental-billing/internal/domain/customer"
	"github.com/xenking/rental-billing/internal/domain/domainerr"
	"github.com/xenking/rental-billing/internal/domain/payment"
	"github.com/xenking/rental-billing/internal/domain/rental"
	"github.com/xenking/rental-billing/pkg/keylock"
)

// Contribution is what a rental adds to its customer's balance. Canceled
// rentals only owe what was settled before cancellation; the ledger is read
// directly so a stale cached total never leaks in.
func Contribution(r *rental.Rental) decimal.Decimal {
	if r.Status == rental.StatusCanceled {
		return rental.SettledCost(r)
	}
	return r.TotalCost
}

// Reconcile computes a balance: rental contributions minus net payments.
// Positive means the customer owes money.
func Reconcile(rentals []rental.Rental, payments []payment.Payment) decimal.Decimal {
	owed := decimal.Zero
	for i := range rentals {
		owed = owed.Add(Contribution(&rentals[i]))
	}
	return owed.Sub(payment.NetTotal(payments)).Round(2)
}

// Reconciler loads a customer's rentals and payments, reconciles them and
// persists the result.
type Reconciler struct {
	rentals   rental.Store
	payments  payment.Store
	customers customer.Store
	locks     keylock.Map
}

// NewReconciler creates a Reconciler.
func NewReconciler(rentals rental.Store, payments payment.Store, customers customer.Store) *Reconciler {
	return &Reconciler{
		rentals:   rentals,
		payments:  payments,
		customers: customers,
	}
}

// Balance computes the current balance without persisting it.
func (r *Reconciler) Balance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	if _, err := r.customers.GetByID(ctx, customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return decimal.Zero, domainerr.NotFound("customer", customerID)
		}
		return decimal.Zero, errors.Wrap(err, "get customer")
	}
	return r.compute(ctx, customerID)
}

// Refresh recomputes the balance and stores it on the customer. Refreshes
// of one customer are serialized so a slower, older computation cannot
// overwrite a newer one.
func (r *Reconciler) Refresh(ctx context.Context, customerID string) (decimal.Decimal, error) {
	unlock := r.locks.Lock(customerID)
	defer unlock()

	start := time.Now()
	balance, err := r.compute(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := r.customers.UpdateBalance(ctx, customerID, balance); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return decimal.Zero, domainerr.NotFound("customer", customerID)
		}
		return decimal.Zero, errors.Wrap(err, "update balance")
	}

	zctx.From(ctx).Debug("Balance refreshed",
		zap.String("customer_id", customerID),
		zap.Stringer("balance", balance),
		zap.Duration("took", time.Since(start)),
	)
	return balance, nil
}

func (r *Reconciler) compute(ctx context.Context, customerID string) (decimal.Decimal, error) {
	var (
		rentals  []rental.Rental
		payments []payment.Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rentals, err = r.rentals.ListByCustomer(gctx, customerID)
		return errors.Wrap(err, "list rentals")
	})
	g.Go(func() error {
		var err error
		payments, err = r.payments.ListByCustomer(gctx, customerID)
		return errors.Wrap(err, "list payments")
	})
	if err := g.Wait(); err != nil {
		return decimal.Zero, err
	}
	return Reconcile(rentals, payments), nil
}
