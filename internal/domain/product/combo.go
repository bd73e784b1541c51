package product

import "github.com/shopspring/decimal"

// PartAllocation is the quantity of one part product carried by a combo
// rental line. QuantityPerUnit is kept so the allocation can be rebuilt from
// the frozen snapshot when the parent quantity changes.
type PartAllocation struct {
	PartProductID   string          `json:"part_product_id"`
	QuantityPerUnit int             `json:"quantity_per_unit"`
	Quantity        int             `json:"quantity"`
	DailyRate       decimal.Decimal `json:"daily_rate"`
}

// Decompose expands a combo product into part allocations for the given
// quantity. Order follows p.Parts. Parts that are combos themselves are not
// expanded further. Single products yield nil.
func Decompose(p *Product, quantity int) []PartAllocation {
	if !p.IsCombo() || len(p.Parts) == 0 {
		return nil
	}
	out := make([]PartAllocation, len(p.Parts))
	for i, part := range p.Parts {
		out[i] = PartAllocation{
			PartProductID:   part.PartProductID,
			QuantityPerUnit: part.QuantityPerUnit,
			Quantity:        part.QuantityPerUnit * quantity,
			DailyRate:       part.DailyRate,
		}
	}
	return out
}

// Rescale rebuilds allocations for a new parent quantity from their
// per-unit ratios. The input is not modified.
func Rescale(allocs []PartAllocation, quantity int) []PartAllocation {
	if len(allocs) == 0 {
		return nil
	}
	out := make([]PartAllocation, len(allocs))
	for i, a := range allocs {
		a.Quantity = a.QuantityPerUnit * quantity
		out[i] = a
	}
	return out
}

// ComboRate is the bundle price derived from its parts.
func ComboRate(parts []Part) decimal.Decimal {
	sum := decimal.Zero
	for _, part := range parts {
		sum = sum.Add(part.DailyRate.Mul(decimal.NewFromInt(int64(part.QuantityPerUnit))))
	}
	return sum
}
