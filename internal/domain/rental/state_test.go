package rental

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSinglesRental() *Rental {
	r := newTestRental()
	r.Borrowed[1].Parts = nil
	return r
}

func TestTransition_CompleteForcesReturn(t *testing.T) {
	r := newSinglesRental()
	now := time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)

	generated, err := r.Transition(StatusCompleted, now, 0)
	require.NoError(t, err)

	require.Len(t, generated, 2)
	for _, rl := range generated {
		assert.True(t, rl.Auto)
		assert.Equal(t, now, rl.ReturnDate)
		assert.NotEmpty(t, rl.ID)
	}
	assert.Equal(t, 0, r.Remaining("drill"))
	assert.Equal(t, 0, r.Remaining("scaffold"))
	assert.Equal(t, StatusCompleted, r.Status)
	require.NotNil(t, r.ClosedAt)
	assert.Equal(t, now, *r.ClosedAt)

	// 4 days and a partial day: 5 billable days.
	assert.True(t, generated[0].Cost.Equal(decimal.NewFromInt(10000)), "drill = %s", generated[0].Cost)
	assert.True(t, generated[1].Cost.Equal(decimal.NewFromInt(7500)), "scaffold = %s", generated[1].Cost)
}

func TestTransition_ReturnsOutstandingParts(t *testing.T) {
	r := newTestRental()
	_, err := r.RecordReturn(ReturnInput{ProductID: "frame", ParentProductID: "scaffold", Quantity: 2, ReturnDate: date(2024, 1, 2)})
	require.NoError(t, err)

	generated, err := r.Transition(StatusCompleted, date(2024, 1, 3), 0)
	require.NoError(t, err)

	require.Len(t, generated, 3)
	part := generated[2]
	assert.Equal(t, "frame", part.ProductID)
	assert.Equal(t, "scaffold", part.ParentProductID)
	assert.Equal(t, 4, part.Quantity)
	assert.True(t, part.Cost.IsZero())
	assert.Equal(t, 0, r.RemainingPart("scaffold", "frame"))
}

func TestTransition_OnlyRemainingQuantity(t *testing.T) {
	r := newSinglesRental()
	_, err := r.RecordReturn(ReturnInput{ProductID: "drill", Quantity: 2, ReturnDate: date(2024, 1, 2)})
	require.NoError(t, err)
	_, err = r.RecordReturn(ReturnInput{ProductID: "scaffold", Quantity: 1, ReturnDate: date(2024, 1, 2)})
	require.NoError(t, err)

	generated, err := r.Transition(StatusCompleted, date(2024, 1, 4), 1)
	require.NoError(t, err)

	require.Len(t, generated, 1)
	assert.Equal(t, "scaffold", generated[0].ProductID)
	assert.Equal(t, 2, generated[0].Quantity)
	assert.Equal(t, 2, generated[0].BillableDays)
	assert.Equal(t, 1, generated[0].DiscountDays)
}

func TestTransition_CancelWaivesOutstanding(t *testing.T) {
	r := newSinglesRental()
	_, err := r.RecordReturn(ReturnInput{ProductID: "drill", Quantity: 1, ReturnDate: date(2024, 1, 2)})
	require.NoError(t, err)

	generated, err := r.Transition(StatusCanceled, date(2024, 1, 10), 0)
	require.NoError(t, err)

	require.Len(t, generated, 2)
	for _, rl := range generated {
		assert.True(t, rl.Cost.IsZero())
		assert.Positive(t, rl.BillableDays)
	}
	assert.True(t, SettledCost(r).Equal(decimal.NewFromInt(1000)))
	assert.True(t, OutstandingCost(r, date(2024, 1, 20)).IsZero())
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
	}{
		{name: "completed to canceled", from: StatusCompleted, to: StatusCanceled},
		{name: "canceled to completed", from: StatusCanceled, to: StatusCompleted},
		{name: "completed to completed", from: StatusCompleted, to: StatusCompleted},
		{name: "active to active", from: StatusActive, to: StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRental()
			r.Status = tt.from

			generated, err := r.Transition(tt.to, date(2024, 1, 5), 0)

			var itErr *InvalidTransitionError
			require.ErrorAs(t, err, &itErr)
			assert.Equal(t, tt.from, itErr.From)
			assert.Equal(t, tt.to, itErr.To)
			assert.Nil(t, generated)
			assert.Equal(t, tt.from, r.Status)
			assert.Empty(t, r.Returned)
		})
	}
}

func TestTransition_BeforeLineStartUsesStart(t *testing.T) {
	r := newSinglesRental()
	r.Borrowed[0].StartDate = date(2024, 1, 8)

	generated, err := r.Transition(StatusCompleted, date(2024, 1, 5), 0)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 1, 8), generated[0].ReturnDate)
	assert.Equal(t, 1, generated[0].BillableDays)
}
