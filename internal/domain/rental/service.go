package rental

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/rental-billing/internal/domain/car"
	"github.com/xenking/rental-billing/internal/domain/customer"
	"github.com/xenking/rental-billing/internal/domain/domainerr"
	"github.com/xenking/rental-billing/internal/domain/payment"
	"github.com/xenking/rental-billing/internal/domain/product"
	"github.com/xenking/rental-billing/pkg/keylock"
)

// BalanceRefresher recomputes and persists a customer's balance. It is
// called only after the triggering rental mutation has been saved.
type BalanceRefresher interface {
	Refresh(ctx context.Context, customerID string) (decimal.Decimal, error)
}

// LineRequest is one product requested at rental creation.
type LineRequest struct {
	ProductID string
	Quantity  int
	// StartDate defaults to the rental's work start date.
	StartDate time.Time
}

// CreateRequest holds the input for creating a rental.
type CreateRequest struct {
	CustomerID    string
	CarID         string
	Lines         []LineRequest
	WorkStartDate time.Time
	PrepaidAmount decimal.Decimal
	Description   string
}

// PaymentInput is an optional payment taken together with a return.
type PaymentInput struct {
	Amount   decimal.Decimal
	Discount decimal.Decimal
	Method   payment.Method
	Memo     string
}

// ReturnRequest holds the input for recording a return.
type ReturnRequest struct {
	RentalID string
	ReturnInput
	Payment *PaymentInput
}

// ReturnResult is the outcome of a recorded return.
type ReturnResult struct {
	Rental  *Rental
	Line    ReturnedLine
	Payment *payment.Payment
}

// TransitionRequest holds the input for closing a rental.
type TransitionRequest struct {
	RentalID string
	Status   Status
	// DiscountDays is applied to every forced return.
	DiscountDays int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMeterProvider sets the meter provider for service counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// Service runs the billing engine against injected stores. Mutations of one
// rental are serialized; different rentals proceed in parallel.
type Service struct {
	rentals   Store
	catalog   product.Catalog
	customers customer.Store
	cars      car.Store
	payments  payment.Store
	balances  BalanceRefresher

	locks keylock.Map
	now   func() time.Time

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	created        metric.Int64Counter
	returns        metric.Int64Counter
	transitions    metric.Int64Counter
}

// NewService creates a rental Service.
func NewService(
	rentals Store,
	catalog product.Catalog,
	customers customer.Store,
	cars car.Store,
	payments payment.Store,
	balances BalanceRefresher,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		rentals:        rentals,
		catalog:        catalog,
		customers:      customers,
		cars:           cars,
		payments:       payments,
		balances:       balances,
		now:            time.Now,
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	const scope = "github.com/xenking/rental-billing/internal/domain/rental"
	s.tracer = s.tracerProvider.Tracer(scope)
	meter := s.meterProvider.Meter(scope)

	var err error
	if s.created, err = meter.Int64Counter("rental.created",
		metric.WithDescription("Rentals created"),
	); err != nil {
		return nil, errors.Wrap(err, "rental.created counter")
	}
	if s.returns, err = meter.Int64Counter("rental.returns",
		metric.WithDescription("Return events recorded"),
	); err != nil {
		return nil, errors.Wrap(err, "rental.returns counter")
	}
	if s.transitions, err = meter.Int64Counter("rental.transitions",
		metric.WithDescription("Rentals moved to a terminal status"),
	); err != nil {
		return nil, errors.Wrap(err, "rental.transitions counter")
	}
	return s, nil
}

// CreateRental validates the request, snapshots product rates and combo
// parts, persists the rental and records the prepaid amount as a payment.
func (s *Service) CreateRental(ctx context.Context, req CreateRequest) (*Rental, error) {
	ctx, span := s.tracer.Start(ctx, "rental.Create")
	defer span.End()

	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	if _, err := s.customers.GetByID(ctx, req.CustomerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, domainerr.NotFound("customer", req.CustomerID)
		}
		return nil, errors.Wrap(err, "get customer")
	}

	if req.CarID != "" {
		c, err := s.cars.GetByID(ctx, req.CarID)
		if err != nil {
			if errors.Is(err, car.ErrNotFound) {
				return nil, domainerr.NotFound("car", req.CarID)
			}
			return nil, errors.Wrap(err, "get car")
		}
		if c.Status != car.StatusActive {
			return nil, domainerr.Invalid("car_id", "car is "+string(c.Status))
		}
	}

	ids := make([]string, len(req.Lines))
	for i, l := range req.Lines {
		ids[i] = l.ProductID
	}
	fetched, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	products := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		products[fetched[i].ID] = &fetched[i]
	}

	now := s.now().UTC()
	r := &Rental{
		ID:            uuid.New().String(),
		CustomerID:    req.CustomerID,
		CarID:         req.CarID,
		WorkStartDate: req.WorkStartDate,
		Status:        StatusActive,
		Borrowed:      make([]BorrowedLine, 0, len(req.Lines)),
		PrepaidAmount: req.PrepaidAmount.Round(2),
		Description:   req.Description,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, l := range req.Lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, domainerr.NotFound("product", l.ProductID)
		}
		r.Borrowed = append(r.Borrowed, BorrowedLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Type:        p.Type,
			Quantity:    l.Quantity,
			DailyRate:   p.EffectiveDailyRate(),
			StartDate:   l.StartDate,
			Parts:       product.Decompose(p, l.Quantity),
		})
	}
	r.Recompute(now, r.PrepaidAmount)

	if err := s.rentals.Create(ctx, r); err != nil {
		return nil, errors.Wrap(err, "create rental")
	}

	if r.PrepaidAmount.IsPositive() {
		p, err := payment.New(payment.RecordRequest{
			CustomerID: r.CustomerID,
			RentalID:   r.ID,
			Amount:     r.PrepaidAmount,
			Method:     payment.MethodPrepaid,
			Date:       r.WorkStartDate,
			Memo:       "prepaid",
		}, now)
		if err != nil {
			return nil, errors.Wrap(err, "build prepaid payment")
		}
		if err := s.payments.Append(ctx, p); err != nil {
			if delErr := s.rentals.Delete(ctx, r.ID); delErr != nil {
				zctx.From(ctx).Error("Roll back rental failed",
					zap.String("rental_id", r.ID),
					zap.Error(delErr),
				)
			}
			return nil, errors.Wrap(err, "append prepaid payment")
		}
	}

	s.created.Add(ctx, 1)
	zctx.From(ctx).Info("Rental created",
		zap.String("rental_id", r.ID),
		zap.Int64("rental_number", r.RentalNumber),
		zap.String("customer_id", r.CustomerID),
		zap.Int("lines", len(r.Borrowed)),
		zap.Stringer("total_cost", r.TotalCost),
	)
	s.refreshBalance(ctx, r.CustomerID)
	return r, nil
}

// RecordReturn appends a return event, recomputes cost and debt and
// optionally records a payment taken on the spot. The payment is appended
// after the return is stored; if that fails the result is returned together
// with a *PaymentNotRecordedError.
func (s *Service) RecordReturn(ctx context.Context, req ReturnRequest) (*ReturnResult, error) {
	ctx, span := s.tracer.Start(ctx, "rental.RecordReturn",
		trace.WithAttributes(attribute.String("rental.id", req.RentalID)),
	)
	defer span.End()

	unlock := s.locks.Lock(req.RentalID)
	defer unlock()

	current, err := s.load(ctx, req.RentalID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	work := current.Clone()
	line, err := work.RecordReturn(req.ReturnInput)
	if err != nil {
		return nil, err
	}

	var p *payment.Payment
	if req.Payment != nil {
		p, err = payment.New(payment.RecordRequest{
			CustomerID: work.CustomerID,
			RentalID:   work.ID,
			Amount:     req.Payment.Amount,
			Discount:   req.Payment.Discount,
			Method:     req.Payment.Method,
			Memo:       req.Payment.Memo,
			Date:       req.ReturnDate,
		}, now)
		if err != nil {
			return nil, err
		}
	}

	// The payment goes in after the return so debt never counts it early.
	if err := s.save(ctx, work, now); err != nil {
		return nil, err
	}

	s.returns.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("part", line.ParentProductID != ""),
	))
	lg := zctx.From(ctx).With(zap.String("rental_id", work.ID))
	lg.Info("Return recorded",
		zap.String("product_id", line.ProductID),
		zap.String("parent_product_id", line.ParentProductID),
		zap.Int("quantity", line.Quantity),
		zap.Int("billable_days", line.BillableDays),
		zap.Stringer("cost", line.Cost),
	)

	res := &ReturnResult{Rental: work, Line: line}
	if p != nil {
		if err := s.payments.Append(ctx, p); err != nil {
			lg.Warn("Payment with return not recorded", zap.Error(err))
			s.refreshBalance(ctx, work.CustomerID)
			return res, &PaymentNotRecordedError{Err: err}
		}
		res.Payment = p
		if err := s.save(ctx, work, now); err != nil {
			lg.Warn("Refresh debt after payment failed", zap.Error(err))
		}
	}
	s.refreshBalance(ctx, work.CustomerID)

	return res, nil
}

// QuoteReturn prices a return without recording it.
func (s *Service) QuoteReturn(ctx context.Context, rentalID string, in ReturnInput) (ReturnedLine, error) {
	r, err := s.load(ctx, rentalID)
	if err != nil {
		return ReturnedLine{}, err
	}
	return r.PrepareReturn(in)
}

// TransitionRental closes a rental, forcing the return of everything still
// outstanding.
func (s *Service) TransitionRental(ctx context.Context, req TransitionRequest) (*Rental, error) {
	ctx, span := s.tracer.Start(ctx, "rental.Transition",
		trace.WithAttributes(
			attribute.String("rental.id", req.RentalID),
			attribute.String("rental.status", string(req.Status)),
		),
	)
	defer span.End()

	if !req.Status.Valid() {
		return nil, domainerr.Invalid("status", "unknown status "+string(req.Status))
	}

	unlock := s.locks.Lock(req.RentalID)
	defer unlock()

	current, err := s.load(ctx, req.RentalID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	work := current.Clone()
	generated, err := work.Transition(req.Status, now, req.DiscountDays)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, work, now); err != nil {
		return nil, err
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(req.Status)),
	))
	zctx.From(ctx).Info("Rental closed",
		zap.String("rental_id", work.ID),
		zap.String("status", string(work.Status)),
		zap.Int("forced_returns", len(generated)),
		zap.Stringer("total_cost", work.TotalCost),
	)
	s.refreshBalance(ctx, work.CustomerID)
	return work, nil
}

// AdjustBorrowedQuantity changes the quantity of a borrowed line on an
// active rental and rebuilds its combo allocations.
func (s *Service) AdjustBorrowedQuantity(ctx context.Context, rentalID, productID string, quantity int) (*Rental, error) {
	unlock := s.locks.Lock(rentalID)
	defer unlock()

	current, err := s.load(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	work := current.Clone()
	if err := work.AdjustQuantity(productID, quantity); err != nil {
		return nil, err
	}
	if err := s.save(ctx, work, now); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Borrowed quantity adjusted",
		zap.String("rental_id", rentalID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)
	s.refreshBalance(ctx, work.CustomerID)
	return work, nil
}

// DeleteRental removes an active rental that has no returns and no
// payments.
func (s *Service) DeleteRental(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != StatusActive {
		return ErrClosed
	}
	if len(r.Returned) > 0 {
		return ErrHasActivity
	}
	payments, err := s.payments.ListByRental(ctx, id)
	if err != nil {
		return errors.Wrap(err, "list payments")
	}
	if len(payments) > 0 {
		return ErrHasActivity
	}

	if err := s.rentals.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return domainerr.NotFound("rental", id)
		}
		return errors.Wrap(err, "delete rental")
	}
	zctx.From(ctx).Info("Rental deleted", zap.String("rental_id", id))
	s.refreshBalance(ctx, r.CustomerID)
	return nil
}

// GetRental returns a rental by ID.
func (s *Service) GetRental(ctx context.Context, id string) (*Rental, error) {
	return s.load(ctx, id)
}

// CostAsOf returns the rental's cost breakdown at the given time.
func (s *Service) CostAsOf(ctx context.Context, id string, at time.Time) (CostView, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return CostView{}, err
	}
	if at.IsZero() {
		at = s.now().UTC()
	}
	return CostAsOf(r, at), nil
}

// ListCustomerRentals returns every rental of a customer.
func (s *Service) ListCustomerRentals(ctx context.Context, customerID string) ([]Rental, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, domainerr.NotFound("customer", customerID)
		}
		return nil, errors.Wrap(err, "get customer")
	}
	rentals, err := s.rentals.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list rentals")
	}
	return rentals, nil
}

// RentalCustomer returns the customer owning a rental.
func (s *Service) RentalCustomer(ctx context.Context, rentalID string) (string, error) {
	r, err := s.load(ctx, rentalID)
	if err != nil {
		return "", err
	}
	return r.CustomerID, nil
}

// WithLock runs fn while holding the mutation lock of rentalID. fn must not
// call other mutating methods of s for the same rental.
func (s *Service) WithLock(ctx context.Context, rentalID string, fn func(ctx context.Context) error) error {
	unlock := s.locks.Lock(rentalID)
	defer unlock()
	return fn(ctx)
}

// RefreshDebt recomputes and saves the cached cost and debt of a rental.
func (s *Service) RefreshDebt(ctx context.Context, rentalID string) error {
	unlock := s.locks.Lock(rentalID)
	defer unlock()

	r, err := s.load(ctx, rentalID)
	if err != nil {
		return err
	}
	return s.save(ctx, r, s.now().UTC())
}

// RefreshActive recomputes the outstanding cost of every active rental, then
// refreshes the balance of each affected customer. It returns the number of
// rentals refreshed.
func (s *Service) RefreshActive(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "rental.RefreshActive")
	defer span.End()

	active, err := s.rentals.ListActive(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list active rentals")
	}

	customers := make(map[string]struct{})
	for _, r := range active {
		if err := s.RefreshDebt(ctx, r.ID); err != nil {
			if errors.As(err, new(*domainerr.NotFoundError)) {
				continue
			}
			return 0, errors.Wrapf(err, "refresh rental %s", r.ID)
		}
		customers[r.CustomerID] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for id := range customers {
		g.Go(func() error {
			if _, err := s.balances.Refresh(gctx, id); err != nil {
				return errors.Wrapf(err, "refresh balance of %s", id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(active), nil
}

func (s *Service) load(ctx context.Context, id string) (*Rental, error) {
	r, err := s.rentals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, domainerr.NotFound("rental", id)
		}
		return nil, errors.Wrap(err, "get rental")
	}
	return r, nil
}

// save recomputes cached cost and debt against stored payments and persists
// r.
func (s *Service) save(ctx context.Context, r *Rental, now time.Time) error {
	payments, err := s.payments.ListByRental(ctx, r.ID)
	if err != nil {
		return errors.Wrap(err, "list payments")
	}
	r.Recompute(now, payment.NetTotal(payments))
	r.UpdatedAt = now
	if err := s.rentals.Save(ctx, r); err != nil {
		return errors.Wrap(err, "save rental")
	}
	return nil
}

func (s *Service) refreshBalance(ctx context.Context, customerID string) {
	if _, err := s.balances.Refresh(ctx, customerID); err != nil {
		zctx.From(ctx).Warn("Refresh balance failed",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
	}
}

func validateCreate(req *CreateRequest) error {
	if req.CustomerID == "" {
		return domainerr.Invalid("customer_id", "required")
	}
	if req.WorkStartDate.IsZero() {
		return domainerr.Invalid("work_start_date", "required")
	}
	if len(req.Lines) == 0 {
		return domainerr.Invalid("lines", "at least one product required")
	}
	if req.PrepaidAmount.IsNegative() {
		return domainerr.Invalid("prepaid_amount", "must not be negative")
	}

	req.Lines = slices.Clone(req.Lines)
	seen := make(map[string]struct{}, len(req.Lines))
	for i := range req.Lines {
		l := &req.Lines[i]
		if l.ProductID == "" {
			return domainerr.Invalid("product_id", "required")
		}
		if _, dup := seen[l.ProductID]; dup {
			return domainerr.Invalid("product_id", "duplicate product "+l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
		if l.Quantity <= 0 {
			return &ZeroQuantityError{ProductID: l.ProductID, Quantity: l.Quantity}
		}
		if l.StartDate.IsZero() {
			l.StartDate = req.WorkStartDate
		}
		if l.StartDate.Before(req.WorkStartDate) {
			return domainerr.Invalid("start_date", "before work start date for "+l.ProductID)
		}
	}
	return nil
}
