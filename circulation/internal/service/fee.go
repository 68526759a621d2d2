package service

import "time"

const (
	feeGraceDays = 5
	feeBase      = 5
	feeStep      = 5
	feeStepDays  = 10
)

// CalculateFee maps (due date, now) to the owed amount: zero during the
// five-day grace period, then a flat penalty plus one step for each
// additional full ten-day block. Non-decreasing in now.
func CalculateFee(dueDate, now time.Time) int64 {
	daysOverdue := int64(now.Sub(dueDate) / (24 * time.Hour))
	if daysOverdue <= feeGraceDays {
		return 0
	}
	return feeBase + (daysOverdue-feeGraceDays)/feeStepDays*feeStep
}
