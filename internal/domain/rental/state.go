package rental

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transition moves an active rental to a terminal status. Every top-level
// line and part allocation still outstanding is returned at `at` and the
// generated lines are flagged Auto. A cancellation waives the usage not yet
// settled, so its generated lines carry zero cost.
//
// On error the rental is left unchanged.
func (r *Rental) Transition(to Status, at time.Time, discountDays int) ([]ReturnedLine, error) {
	if r.Status.Terminal() || !to.Terminal() {
		return nil, &InvalidTransitionError{From: r.Status, To: to}
	}

	work := r.Clone()
	var generated []ReturnedLine
	forceReturn := func(in ReturnInput) error {
		rl, err := work.PrepareReturn(in)
		if err != nil {
			return err
		}
		rl.ID = uuid.NewString()
		rl.Auto = true
		if to == StatusCanceled {
			rl.Cost = decimal.Zero
		}
		work.Returned = append(work.Returned, rl)
		generated = append(generated, rl)
		return nil
	}

	for _, line := range r.Borrowed {
		returnDate := latest(at, line.StartDate, r.WorkStartDate)
		if n := work.Remaining(line.ProductID); n > 0 {
			if err := forceReturn(ReturnInput{
				ProductID:    line.ProductID,
				Quantity:     n,
				ReturnDate:   returnDate,
				DiscountDays: discountDays,
			}); err != nil {
				return nil, err
			}
		}
		for _, part := range line.Parts {
			n := work.RemainingPart(line.ProductID, part.PartProductID)
			if n <= 0 {
				continue
			}
			if err := forceReturn(ReturnInput{
				ProductID:       part.PartProductID,
				ParentProductID: line.ProductID,
				Quantity:        n,
				ReturnDate:      returnDate,
				DiscountDays:    discountDays,
			}); err != nil {
				return nil, err
			}
		}
	}

	closed := at
	work.Status = to
	work.ClosedAt = &closed
	*r = *work
	return generated, nil
}

// latest returns the latest of ts.
func latest(ts ...time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t.After(out) {
			out = t
		}
	}
	return out
}
