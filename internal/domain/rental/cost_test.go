package rental

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutstandingCost_BillsComboAtParentRate(t *testing.T) {
	r := newTestRental()

	// Two days elapsed: drill 1000*2*2 + scaffold 500*3*2. The frame part
	// allocation (6 x 100) is not added on top.
	got := OutstandingCost(r, date(2024, 1, 3))
	assert.True(t, got.Equal(decimal.NewFromInt(7000)), "outstanding = %s", got)
}

func TestRecompute_SettledPlusOutstanding(t *testing.T) {
	r := newTestRental()
	_, err := r.RecordReturn(ReturnInput{
		ProductID:    "drill",
		Quantity:     2,
		ReturnDate:   date(2024, 1, 4),
		DiscountDays: 1,
	})
	require.NoError(t, err)

	now := date(2024, 1, 5)
	r.Recompute(now, decimal.NewFromInt(2500))

	assert.True(t, SettledCost(r).Equal(decimal.NewFromInt(4000)))
	assert.True(t, OutstandingCost(r, now).Equal(decimal.NewFromInt(6000)))
	assert.True(t, r.TotalCost.Equal(decimal.NewFromInt(10000)), "total = %s", r.TotalCost)
	assert.True(t, r.Debt.Equal(decimal.NewFromInt(7500)), "debt = %s", r.Debt)
}

func TestRecompute_Idempotent(t *testing.T) {
	r := newTestRental()
	_, err := r.RecordReturn(ReturnInput{ProductID: "scaffold", Quantity: 1, ReturnDate: date(2024, 1, 2)})
	require.NoError(t, err)

	now := date(2024, 1, 9)
	r.Recompute(now, decimal.Zero)
	first := r.TotalCost
	r.Recompute(now, decimal.Zero)
	assert.True(t, first.Equal(r.TotalCost))
}

func TestRecompute_LedgerWinsOverCache(t *testing.T) {
	r := newTestRental()
	r.TotalCost = decimal.NewFromInt(123456)
	r.Debt = decimal.NewFromInt(-1)

	r.Recompute(date(2024, 1, 2), decimal.Zero)
	assert.True(t, r.TotalCost.Equal(decimal.NewFromInt(3500)), "total = %s", r.TotalCost)
	assert.True(t, r.Debt.Equal(r.TotalCost))
}

func TestCostAsOf(t *testing.T) {
	r := newTestRental()
	_, err := r.RecordReturn(ReturnInput{ProductID: "drill", Quantity: 1, ReturnDate: date(2024, 1, 3)})
	require.NoError(t, err)
	_, err = r.RecordReturn(ReturnInput{ProductID: "drill", Quantity: 1, ReturnDate: date(2024, 1, 6)})
	require.NoError(t, err)

	tests := []struct {
		name            string
		at              int
		wantSettled     int64
		wantOutstanding int64
	}{
		// drill 1 remaining at 1000*1*3, scaffold 500*3*3.
		{name: "between returns", at: 4, wantSettled: 2000, wantOutstanding: 7500},
		// Both drill returns settled, scaffold 500*3*5.
		{name: "after returns", at: 6, wantSettled: 7000, wantOutstanding: 7500},
		// Nothing settled yet.
		{name: "before returns", at: 2, wantSettled: 0, wantOutstanding: 3500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := CostAsOf(r, date(2024, 1, tt.at))
			assert.True(t, view.Settled.Equal(decimal.NewFromInt(tt.wantSettled)), "settled = %s", view.Settled)
			assert.True(t, view.Outstanding.Equal(decimal.NewFromInt(tt.wantOutstanding)), "outstanding = %s", view.Outstanding)
			assert.True(t, view.Total.Equal(view.Settled.Add(view.Outstanding)))
		})
	}
}

func TestCost_SnapshotRateIsAuthoritative(t *testing.T) {
	r := newTestRental()
	r.Borrowed[0].DailyRate = decimal.RequireFromString("12.345")

	line, err := r.RecordReturn(ReturnInput{ProductID: "drill", Quantity: 1, ReturnDate: date(2024, 1, 2)})
	require.NoError(t, err)
	assert.Equal(t, "12.35", line.Cost.StringFixed(2))
}
