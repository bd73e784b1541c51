package rental

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestProrate(t *testing.T) {
	start := date(2024, 1, 1)

	tests := []struct {
		name         string
		reference    time.Time
		discountDays int
		wantRaw      int
		wantBillable int
	}{
		{name: "same day bills one day", reference: start, wantRaw: 1, wantBillable: 1},
		{name: "reference before start", reference: date(2023, 12, 25), wantRaw: 1, wantBillable: 1},
		{name: "whole days", reference: date(2024, 1, 4), wantRaw: 3, wantBillable: 3},
		{name: "partial day rounds up", reference: start.Add(49 * time.Hour), wantRaw: 3, wantBillable: 3},
		{name: "one nanosecond", reference: start.Add(time.Nanosecond), wantRaw: 1, wantBillable: 1},
		{name: "discount", reference: date(2024, 1, 4), discountDays: 1, wantRaw: 3, wantBillable: 2},
		{name: "discount equals raw", reference: date(2024, 1, 4), discountDays: 3, wantRaw: 3, wantBillable: 1},
		{name: "discount above raw", reference: date(2024, 1, 4), discountDays: 10, wantRaw: 3, wantBillable: 1},
		{name: "negative discount clamps", reference: date(2024, 1, 4), discountDays: -2, wantRaw: 3, wantBillable: 3},
		{name: "across month end", reference: date(2024, 3, 1), wantRaw: 60, wantBillable: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Prorate(start, tt.reference, tt.discountDays)
			assert.Equal(t, tt.wantRaw, got.RawDays)
			assert.Equal(t, tt.wantBillable, got.BillableDays)
		})
	}
}
