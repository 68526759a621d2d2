package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookwise/circulation-service/circulation/internal/service"
)

func TestCalculateFee(t *testing.T) {
	t.Parallel()
	due := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{name: "before due date", now: due.AddDate(0, 0, -1), want: 0},
		{name: "grace period day 3", now: due.AddDate(0, 0, 3), want: 0},
		{name: "grace period boundary day 5", now: due.AddDate(0, 0, 5), want: 0},
		{name: "day 6 first penalty", now: due.AddDate(0, 0, 6), want: 5},
		{name: "day 14 still first block", now: due.AddDate(0, 0, 14), want: 5},
		{name: "day 16 second block", now: due.AddDate(0, 0, 16), want: 10},
		{name: "day 26 third block", now: due.AddDate(0, 0, 26), want: 15},
		{name: "day 100", now: due.AddDate(0, 0, 100), want: 50},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, service.CalculateFee(due, tt.now))
		})
	}
}

func TestCalculateFee_Monotonic(t *testing.T) {
	t.Parallel()
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var prev int64
	for day := 0; day <= 120; day++ {
		fee := service.CalculateFee(due, due.AddDate(0, 0, day))
		require.GreaterOrEqual(t, fee, prev, "fee decreased on day %d", day)
		prev = fee
	}
}
