package rental

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rental-billing/internal/domain/domainerr"
	"github.com/xenking/rental-billing/internal/domain/product"
)

// newTestRental builds an active rental starting 2024-01-01 with a single
// product "drill" (rate 1000, qty 2) and a combo "scaffold" (rate 500,
// qty 3) whose part "frame" is allocated 2 per unit.
func newTestRental() *Rental {
	start := date(2024, 1, 1)
	return &Rental{
		ID:            "r1",
		CustomerID:    "c1",
		WorkStartDate: start,
		Status:        StatusActive,
		Borrowed: []BorrowedLine{
			{
				ProductID: "drill",
				Type:      product.TypeSingle,
				Quantity:  2,
				DailyRate: decimal.NewFromInt(1000),
				StartDate: start,
			},
			{
				ProductID: "scaffold",
				Type:      product.TypeCombo,
				Quantity:  3,
				DailyRate: decimal.NewFromInt(500),
				StartDate: start,
				Parts: []product.PartAllocation{
					{PartProductID: "frame", QuantityPerUnit: 2, Quantity: 6, DailyRate: decimal.NewFromInt(100)},
				},
			},
		},
	}
}

func TestRecordReturn_ScenarioA(t *testing.T) {
	r := newTestRental()

	line, err := r.RecordReturn(ReturnInput{
		ProductID:    "drill",
		Quantity:     2,
		ReturnDate:   date(2024, 1, 4),
		DiscountDays: 1,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, line.ID)
	assert.Equal(t, 3, line.RawDays)
	assert.Equal(t, 2, line.BillableDays)
	assert.True(t, line.Cost.Equal(decimal.NewFromInt(4000)), "cost = %s", line.Cost)
	assert.True(t, line.DailyRate.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 0, r.Remaining("drill"))
	assert.Len(t, r.Returned, 1)
}

func TestRecordReturn_OverReturnLeavesLedgerUnchanged(t *testing.T) {
	r := newTestRental()

	_, err := r.RecordReturn(ReturnInput{ProductID: "scaffold", Quantity: 5, ReturnDate: date(2024, 1, 2)})

	var orErr *OverReturnError
	require.ErrorAs(t, err, &orErr)
	assert.Equal(t, "scaffold", orErr.ProductID)
	assert.Equal(t, 5, orErr.Requested)
	assert.Equal(t, 3, orErr.Remaining)
	assert.Empty(t, r.Returned)
	assert.Equal(t, 3, r.Remaining("scaffold"))
}

func TestRecordReturn_Incremental(t *testing.T) {
	r := newTestRental()

	_, err := r.RecordReturn(ReturnInput{ProductID: "scaffold", Quantity: 1, ReturnDate: date(2024, 1, 2)})
	require.NoError(t, err)
	_, err = r.RecordReturn(ReturnInput{ProductID: "scaffold", Quantity: 1, ReturnDate: date(2024, 1, 5)})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Remaining("scaffold"))

	_, err = r.RecordReturn(ReturnInput{ProductID: "scaffold", Quantity: 2, ReturnDate: date(2024, 1, 6)})
	var orErr *OverReturnError
	require.ErrorAs(t, err, &orErr)
	assert.Equal(t, 1, orErr.Remaining)

	_, err = r.RecordReturn(ReturnInput{ProductID: "scaffold", Quantity: 1, ReturnDate: date(2024, 1, 6)})
	require.NoError(t, err)
	assert.Equal(t, 0, r.Remaining("scaffold"))

	costs := make([]string, len(r.Returned))
	for i, rl := range r.Returned {
		costs[i] = rl.Cost.String()
	}
	assert.Equal(t, []string{"500", "2000", "2500"}, costs)
}

func TestRecordReturn_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		input ReturnInput
		check func(t *testing.T, err error)
	}{
		{
			name:  "zero quantity",
			input: ReturnInput{ProductID: "drill", Quantity: 0, ReturnDate: date(2024, 1, 2)},
			check: func(t *testing.T, err error) {
				var zqErr *ZeroQuantityError
				require.ErrorAs(t, err, &zqErr)
				var vErr *domainerr.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, "quantity", vErr.Field)
			},
		},
		{
			name:  "negative quantity",
			input: ReturnInput{ProductID: "drill", Quantity: -1, ReturnDate: date(2024, 1, 2)},
			check: func(t *testing.T, err error) {
				var zqErr *ZeroQuantityError
				require.ErrorAs(t, err, &zqErr)
			},
		},
		{
			name:  "before work start",
			input: ReturnInput{ProductID: "drill", Quantity: 1, ReturnDate: date(2023, 12, 31)},
			check: func(t *testing.T, err error) {
				var idErr *InvalidDateError
				require.ErrorAs(t, err, &idErr)
				assert.Equal(t, date(2024, 1, 1), idErr.StartDate)
			},
		},
		{
			name:  "missing date",
			input: ReturnInput{ProductID: "drill", Quantity: 1},
			check: func(t *testing.T, err error) {
				var vErr *domainerr.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, "return_date", vErr.Field)
			},
		},
		{
			name:  "unknown product",
			input: ReturnInput{ProductID: "saw", Quantity: 1, ReturnDate: date(2024, 1, 2)},
			check: func(t *testing.T, err error) {
				var nfErr *domainerr.NotFoundError
				require.ErrorAs(t, err, &nfErr)
			},
		},
		{
			name:  "unknown part of combo",
			input: ReturnInput{ProductID: "plank", ParentProductID: "scaffold", Quantity: 1, ReturnDate: date(2024, 1, 2)},
			check: func(t *testing.T, err error) {
				var nfErr *domainerr.NotFoundError
				require.ErrorAs(t, err, &nfErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRental()
			_, err := r.RecordReturn(tt.input)
			tt.check(t, err)
			assert.Empty(t, r.Returned)
		})
	}
}

func TestRecordReturn_BeforeLineStart(t *testing.T) {
	r := newTestRental()
	r.Borrowed[0].StartDate = date(2024, 1, 10)

	_, err := r.RecordReturn(ReturnInput{ProductID: "drill", Quantity: 1, ReturnDate: date(2024, 1, 5)})

	var idErr *InvalidDateError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, date(2024, 1, 10), idErr.StartDate)
}

func TestRecordReturn_ClosedRental(t *testing.T) {
	r := newTestRental()
	r.Status = StatusCompleted

	_, err := r.RecordReturn(ReturnInput{ProductID: "drill", Quantity: 1, ReturnDate: date(2024, 1, 2)})
	require.ErrorIs(t, err, ErrClosed)
}

func TestRecordReturn_PartsAreIndependentLedger(t *testing.T) {
	r := newTestRental()

	// Returning combo units leaves the part allocation untouched.
	_, err := r.RecordReturn(ReturnInput{ProductID: "scaffold", Quantity: 3, ReturnDate: date(2024, 1, 3)})
	require.NoError(t, err)
	assert.Equal(t, 0, r.Remaining("scaffold"))
	assert.Equal(t, 6, r.RemainingPart("scaffold", "frame"))

	// A part is resolved to its combo when no top-level line matches.
	line, err := r.RecordReturn(ReturnInput{ProductID: "frame", Quantity: 4, ReturnDate: date(2024, 1, 3)})
	require.NoError(t, err)
	assert.Equal(t, "scaffold", line.ParentProductID)
	assert.True(t, line.Cost.IsZero(), "parts are billed through the combo")
	assert.Equal(t, 2, r.RemainingPart("scaffold", "frame"))

	_, err = r.RecordReturn(ReturnInput{ProductID: "frame", ParentProductID: "scaffold", Quantity: 3, ReturnDate: date(2024, 1, 3)})
	var orErr *OverReturnError
	require.ErrorAs(t, err, &orErr)
	assert.Equal(t, "scaffold", orErr.ParentProductID)
	assert.Equal(t, 2, orErr.Remaining)
}

func TestRecordReturn_AmbiguousPart(t *testing.T) {
	r := newTestRental()
	r.Borrowed = append(r.Borrowed, BorrowedLine{
		ProductID: "tower",
		Type:      product.TypeCombo,
		Quantity:  1,
		DailyRate: decimal.NewFromInt(800),
		StartDate: r.WorkStartDate,
		Parts: []product.PartAllocation{
			{PartProductID: "frame", QuantityPerUnit: 4, Quantity: 4},
		},
	})

	_, err := r.RecordReturn(ReturnInput{ProductID: "frame", Quantity: 1, ReturnDate: date(2024, 1, 2)})
	var vErr *domainerr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "parent_product_id", vErr.Field)

	_, err = r.RecordReturn(ReturnInput{ProductID: "frame", ParentProductID: "tower", Quantity: 1, ReturnDate: date(2024, 1, 2)})
	require.NoError(t, err)
	assert.Equal(t, 3, r.RemainingPart("tower", "frame"))
	assert.Equal(t, 6, r.RemainingPart("scaffold", "frame"))
}

func TestRecordReturn_NeverExceedsBorrowed(t *testing.T) {
	r := newTestRental()
	attempts := []int{1, 3, 1, 2, 1, 5, 1}
	for i, q := range attempts {
		_, _ = r.RecordReturn(ReturnInput{
			ProductID:  "scaffold",
			Quantity:   q,
			ReturnDate: date(2024, 1, 2).Add(time.Duration(i) * day),
		})
		assert.GreaterOrEqual(t, r.Remaining("scaffold"), 0)
	}
	assert.Equal(t, 3, r.returned("scaffold", "", time.Time{}))
}

func TestPrepareReturn_DoesNotMutate(t *testing.T) {
	r := newTestRental()

	line, err := r.PrepareReturn(ReturnInput{ProductID: "drill", Quantity: 1, ReturnDate: date(2024, 1, 3)})
	require.NoError(t, err)
	assert.Empty(t, line.ID)
	assert.True(t, line.Cost.Equal(decimal.NewFromInt(2000)))
	assert.Empty(t, r.Returned)
}

func TestAdjustQuantity(t *testing.T) {
	t.Run("rescales combo parts", func(t *testing.T) {
		r := newTestRental()
		require.NoError(t, r.AdjustQuantity("scaffold", 5))

		line, _ := r.Line("scaffold")
		assert.Equal(t, 5, line.Quantity)
		assert.Equal(t, 10, line.Parts[0].Quantity)
	})

	t.Run("below returned", func(t *testing.T) {
		r := newTestRental()
		_, err := r.RecordReturn(ReturnInput{ProductID: "scaffold", Quantity: 2, ReturnDate: date(2024, 1, 2)})
		require.NoError(t, err)

		err = r.AdjustQuantity("scaffold", 1)
		var vErr *domainerr.ValidationError
		require.ErrorAs(t, err, &vErr)
		line, _ := r.Line("scaffold")
		assert.Equal(t, 3, line.Quantity)
	})

	t.Run("part below returned", func(t *testing.T) {
		r := newTestRental()
		_, err := r.RecordReturn(ReturnInput{ProductID: "frame", ParentProductID: "scaffold", Quantity: 5, ReturnDate: date(2024, 1, 2)})
		require.NoError(t, err)

		err = r.AdjustQuantity("scaffold", 2)
		var vErr *domainerr.ValidationError
		require.ErrorAs(t, err, &vErr)
		line, _ := r.Line("scaffold")
		assert.Equal(t, 6, line.Parts[0].Quantity)
	})

	t.Run("zero", func(t *testing.T) {
		r := newTestRental()
		var zqErr *ZeroQuantityError
		require.ErrorAs(t, r.AdjustQuantity("drill", 0), &zqErr)
	})

	t.Run("closed", func(t *testing.T) {
		r := newTestRental()
		r.Status = StatusCanceled
		require.ErrorIs(t, r.AdjustQuantity("drill", 4), ErrClosed)
	})
}

func TestClone_IsDeep(t *testing.T) {
	r := newTestRental()
	c := r.Clone()

	c.Borrowed[1].Parts[0].Quantity = 99
	c.Borrowed[0].Quantity = 99
	_, err := c.RecordReturn(ReturnInput{ProductID: "drill", Quantity: 1, ReturnDate: date(2024, 1, 2)})
	require.NoError(t, err)

	assert.Equal(t, 6, r.Borrowed[1].Parts[0].Quantity)
	assert.Equal(t, 2, r.Borrowed[0].Quantity)
	assert.Empty(t, r.Returned)
}
