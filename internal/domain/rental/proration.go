package rental

import "time"

const day = 24 * time.Hour

// Proration is the day count billed for a line item.
type Proration struct {
	RawDays      int
	BillableDays int
}

// Prorate computes billable days between start and reference. Elapsed time
// is rounded up to whole days and never bills less than one day, even for
// same-day or inverted ranges. Negative discountDays count as zero.
func Prorate(start, reference time.Time, discountDays int) Proration {
	elapsed := reference.Sub(start)
	raw := int(elapsed / day)
	if elapsed%day > 0 {
		raw++
	}
	if raw < 1 {
		raw = 1
	}

	discountDays = max(discountDays, 0)
	return Proration{
		RawDays:      raw,
		BillableDays: max(raw-discountDays, 1),
	}
}
