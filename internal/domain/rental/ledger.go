package rental

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rental-billing/internal/domain/domainerr"
	"github.com/xenking/rental-billing/internal/domain/product"
)

// ReturnInput describes one return event. ParentProductID selects a part
// allocation inside a combo line; when empty, a top-level line is preferred
// and a part is resolved only if exactly one combo carries it.
type ReturnInput struct {
	ProductID       string
	ParentProductID string
	Quantity        int
	ReturnDate      time.Time
	DiscountDays    int
}

// Remaining is the outstanding quantity of a top-level borrowed line.
func (r *Rental) Remaining(productID string) int {
	line, ok := r.Line(productID)
	if !ok {
		return 0
	}
	return line.Quantity - r.returned(productID, "", time.Time{})
}

// RemainingPart is the outstanding quantity of a part allocation inside the
// combo line parentID.
func (r *Rental) RemainingPart(parentID, partID string) int {
	line, ok := r.Line(parentID)
	if !ok {
		return 0
	}
	alloc, ok := findPart(line, partID)
	if !ok {
		return 0
	}
	return alloc.Quantity - r.returned(partID, parentID, time.Time{})
}

// returned sums returned quantities for one ledger. A non-zero asOf only
// counts returns dated on or before it.
func (r *Rental) returned(productID, parentID string, asOf time.Time) int {
	n := 0
	for _, rl := range r.Returned {
		if rl.ProductID != productID || rl.ParentProductID != parentID {
			continue
		}
		if !asOf.IsZero() && rl.ReturnDate.After(asOf) {
			continue
		}
		n += rl.Quantity
	}
	return n
}

func findPart(line *BorrowedLine, partID string) (product.PartAllocation, bool) {
	for _, a := range line.Parts {
		if a.PartProductID == partID {
			return a, true
		}
	}
	return product.PartAllocation{}, false
}

// target is a resolved ledger entry a return applies to.
type target struct {
	productID string
	parentID  string
	start     time.Time
	rate      decimal.Decimal
	remaining int
}

func (r *Rental) resolve(productID, parentID string) (target, error) {
	if parentID != "" {
		line, ok := r.Line(parentID)
		if !ok {
			return target{}, domainerr.NotFound("borrowed line", parentID)
		}
		if _, ok := findPart(line, productID); !ok {
			return target{}, domainerr.NotFound("part allocation", parentID+"/"+productID)
		}
		return target{
			productID: productID,
			parentID:  parentID,
			start:     line.StartDate,
			rate:      decimal.Zero,
			remaining: r.RemainingPart(parentID, productID),
		}, nil
	}

	if line, ok := r.Line(productID); ok {
		return target{
			productID: productID,
			start:     line.StartDate,
			rate:      line.DailyRate,
			remaining: r.Remaining(productID),
		}, nil
	}

	var owner *BorrowedLine
	for i := range r.Borrowed {
		if _, ok := findPart(&r.Borrowed[i], productID); !ok {
			continue
		}
		if owner != nil {
			return target{}, domainerr.Invalid("parent_product_id",
				"part "+productID+" belongs to several combos, parent required")
		}
		owner = &r.Borrowed[i]
	}
	if owner == nil {
		return target{}, domainerr.NotFound("borrowed line", productID)
	}
	return r.resolve(productID, owner.ProductID)
}

// PrepareReturn validates in against the ledger and prices it without
// mutating the rental. Part returns carry zero cost: the combo line is
// billed through its own ledger.
func (r *Rental) PrepareReturn(in ReturnInput) (ReturnedLine, error) {
	if r.Status.Terminal() {
		return ReturnedLine{}, ErrClosed
	}
	if in.Quantity <= 0 {
		return ReturnedLine{}, &ZeroQuantityError{ProductID: in.ProductID, Quantity: in.Quantity}
	}
	if in.ReturnDate.IsZero() {
		return ReturnedLine{}, domainerr.Invalid("return_date", "required")
	}

	t, err := r.resolve(in.ProductID, in.ParentProductID)
	if err != nil {
		return ReturnedLine{}, err
	}

	if in.ReturnDate.Before(r.WorkStartDate) {
		return ReturnedLine{}, &InvalidDateError{ReturnDate: in.ReturnDate, StartDate: r.WorkStartDate}
	}
	if in.ReturnDate.Before(t.start) {
		return ReturnedLine{}, &InvalidDateError{ReturnDate: in.ReturnDate, StartDate: t.start}
	}
	if in.Quantity > t.remaining {
		return ReturnedLine{}, &OverReturnError{
			ProductID:       t.productID,
			ParentProductID: t.parentID,
			Requested:       in.Quantity,
			Remaining:       t.remaining,
		}
	}

	discount := max(in.DiscountDays, 0)
	p := Prorate(t.start, in.ReturnDate, discount)
	cost := lineCost(t.rate, in.Quantity, p.BillableDays).Round(2)

	return ReturnedLine{
		ProductID:       t.productID,
		ParentProductID: t.parentID,
		Quantity:        in.Quantity,
		ReturnDate:      in.ReturnDate,
		DiscountDays:    discount,
		DailyRate:       t.rate,
		RawDays:         p.RawDays,
		BillableDays:    p.BillableDays,
		Cost:            cost,
	}, nil
}

// RecordReturn validates, prices and appends a return. The rental is left
// unchanged when an error is returned.
func (r *Rental) RecordReturn(in ReturnInput) (ReturnedLine, error) {
	line, err := r.PrepareReturn(in)
	if err != nil {
		return ReturnedLine{}, err
	}
	line.ID = uuid.NewString()
	r.Returned = append(r.Returned, line)
	return line, nil
}

// AdjustQuantity changes the borrowed quantity of an active top-level line.
// Combo part allocations are rebuilt from their per-unit ratios.
func (r *Rental) AdjustQuantity(productID string, quantity int) error {
	if r.Status.Terminal() {
		return ErrClosed
	}
	if quantity <= 0 {
		return &ZeroQuantityError{ProductID: productID, Quantity: quantity}
	}
	line, ok := r.Line(productID)
	if !ok {
		return domainerr.NotFound("borrowed line", productID)
	}
	if returned := r.returned(productID, "", time.Time{}); quantity < returned {
		return domainerr.Invalid("quantity", "below already returned quantity")
	}

	parts := product.Rescale(line.Parts, quantity)
	for _, a := range parts {
		if a.Quantity < r.returned(a.PartProductID, productID, time.Time{}) {
			return domainerr.Invalid("quantity", "part "+a.PartProductID+" below already returned quantity")
		}
	}

	line.Quantity = quantity
	line.Parts = parts
	return nil
}
