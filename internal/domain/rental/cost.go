package rental

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostView is the cost breakdown of a rental at a reference time.
type CostView struct {
	At          time.Time
	Settled     decimal.Decimal
	Outstanding decimal.Decimal
	Total       decimal.Decimal
}

// SettledCost is the sum of all recorded return costs.
func SettledCost(r *Rental) decimal.Decimal {
	sum := decimal.Zero
	for _, rl := range r.Returned {
		sum = sum.Add(rl.Cost)
	}
	return sum.Round(2)
}

// OutstandingCost projects the cost of every unreturned top-level unit as if
// it were returned at now with no discount. Part allocations are never
// billed on top of their combo line.
func OutstandingCost(r *Rental, now time.Time) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range r.Borrowed {
		remaining := r.Remaining(line.ProductID)
		if remaining <= 0 {
			continue
		}
		days := Prorate(line.StartDate, now, 0).BillableDays
		sum = sum.Add(lineCost(line.DailyRate, remaining, days))
	}
	return sum.Round(2)
}

// CostAsOf reconstructs the cost as it stood at at: only returns dated on or
// before at are settled and the rest is projected to at.
func CostAsOf(r *Rental, at time.Time) CostView {
	settled := decimal.Zero
	for _, rl := range r.Returned {
		if rl.ReturnDate.After(at) {
			continue
		}
		settled = settled.Add(rl.Cost)
	}

	outstanding := decimal.Zero
	for _, line := range r.Borrowed {
		remaining := line.Quantity - r.returned(line.ProductID, "", at)
		if remaining <= 0 {
			continue
		}
		days := Prorate(line.StartDate, at, 0).BillableDays
		outstanding = outstanding.Add(lineCost(line.DailyRate, remaining, days))
	}

	settled = settled.Round(2)
	outstanding = outstanding.Round(2)
	return CostView{
		At:          at,
		Settled:     settled,
		Outstanding: outstanding,
		Total:       settled.Add(outstanding),
	}
}

// Recompute refreshes the cached TotalCost and Debt. paid is the net amount
// of payments referencing the rental.
func (r *Rental) Recompute(now time.Time, paid decimal.Decimal) {
	r.TotalCost = SettledCost(r).Add(OutstandingCost(r, now))
	r.Debt = r.TotalCost.Sub(paid).Round(2)
}

func lineCost(rate decimal.Decimal, quantity, days int) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(int64(quantity))).Mul(decimal.NewFromInt(int64(days)))
}
