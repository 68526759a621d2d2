package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/bookwise/circulation-service/circulation/internal/model"
	"github.com/bookwise/circulation-service/circulation/internal/service"
)

func TestRunSweep_PromotesAndAccrues(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	repo.addUser(1, true)
	repo.addCopy(10, 100, model.CopyOnLoan)
	repo.addLoan(1, 10, model.LoanActive, testStart.AddDate(0, 0, -16))
	svc, _, sink := newTestService(repo, service.DefaultConfig())

	res, err := svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.LoansPromoted)
	require.Equal(t, 1, res.FeesCreated)

	require.Len(t, repo.fees, 1)
	require.Equal(t, model.FeePending, repo.fees[0].Status)
	require.EqualValues(t, 10, repo.fees[0].Amount, "16 days overdue")

	// the fresh fee gets a payment reminder in the same run
	require.Equal(t, 1, res.RemindersCreated)
	events := sink.Events()
	require.Len(t, events, 1)
	require.Equal(t, string(model.ReminderPaymentDue), events[0].Type)
}

func TestRunSweep_Idempotent(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	repo.addUser(1, true)
	repo.addUser(2, true)
	repo.addCopy(10, 100, model.CopyOnLoan)
	repo.addCopy(11, 100, model.CopyOnLoan)
	repo.addLoan(1, 10, model.LoanActive, testStart.AddDate(0, 0, -20))
	repo.addLoan(2, 11, model.LoanOverdue, testStart.AddDate(0, 0, -30))
	svc, _, _ := newTestService(repo, service.DefaultConfig())
	ctx := context.Background()

	first, err := svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, first.FeesCreated)

	second, err := svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, second.LoansPromoted)
	require.Zero(t, second.FeesCreated, "pending fee per user/copy already exists")
	require.Zero(t, second.RemindersCreated, "reminders deduped within the interval")
	require.Len(t, repo.fees, 2)
}

func TestRunSweep_GracePeriod(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	repo.addUser(1, true)
	repo.addCopy(10, 100, model.CopyOnLoan)
	repo.addLoan(1, 10, model.LoanActive, testStart.AddDate(0, 0, -3))
	svc, _, _ := newTestService(repo, service.DefaultConfig())

	res, err := svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.LoansPromoted, "overdue regardless of grace")
	require.Zero(t, res.FeesCreated, "no fee inside the grace period")
	require.Empty(t, repo.fees)
}

func TestRunSweep_FeeGrowsAfterPayment(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	repo.addUser(1, true)
	repo.addCopy(10, 100, model.CopyOnLoan)
	repo.addLoan(1, 10, model.LoanActive, testStart.AddDate(0, 0, -6))
	svc, clock, _ := newTestService(repo, service.DefaultConfig())
	ctx := context.Background()

	_, err := svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Len(t, repo.fees, 1)
	require.EqualValues(t, 5, repo.fees[0].Amount)

	// settle the fee, then let another block pass; a new larger fee accrues
	_, err = svc.PayFees(ctx, 1, []int{repo.fees[0].ID})
	require.NoError(t, err)
	clock.Advance(10 * 24 * time.Hour)

	_, err = svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Len(t, repo.fees, 2)
	require.EqualValues(t, 10, repo.fees[1].Amount)
}

func TestRunSweep_SkipsOptedOutUsers(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	repo.addUser(1, false)
	repo.addCopy(10, 100, model.CopyOnLoan)
	repo.addLoan(1, 10, model.LoanActive, testStart.AddDate(0, 0, -20))
	svc, _, sink := newTestService(repo, service.DefaultConfig())

	res, err := svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.LoansPromoted)
	require.Zero(t, res.FeesCreated)
	require.Zero(t, res.RemindersCreated)
	require.Empty(t, sink.Events())
}

func TestRunSweep_MissingDueDateSkipped(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	repo.addUser(1, true)
	repo.addCopy(10, 100, model.CopyOnLoan)
	repo.addLoan(1, 10, model.LoanOverdue, time.Time{})
	svc, _, _ := newTestService(repo, service.DefaultConfig())

	res, err := svc.RunSweep(context.Background())
	require.NoError(t, err, "data fault is logged, not fatal")
	require.Zero(t, res.FeesCreated)
}

func TestRunSweep_ReturnDueReminders(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	repo.addUser(1, true)
	repo.addUser(2, true)
	repo.addCopy(10, 100, model.CopyOnLoan)
	repo.addCopy(11, 100, model.CopyOnLoan)
	// one loan due in 3 days, one far out
	repo.addLoan(1, 10, model.LoanActive, testStart.AddDate(0, 0, 3))
	repo.addLoan(2, 11, model.LoanActive, testStart.AddDate(0, 0, 30))
	svc, clock, sink := newTestService(repo, service.DefaultConfig())
	ctx := context.Background()

	res, err := svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.RemindersCreated)
	events := sink.Events()
	require.Len(t, events, 1)
	require.Equal(t, string(model.ReminderReturnDue), events[0].Type)
	require.Equal(t, 1, events[0].UserID)

	// same day again: deduped
	res, err = svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, res.RemindersCreated)

	// next day's sweep reminds again
	clock.Advance(24 * time.Hour)
	res, err = svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.RemindersCreated)
}

func TestRunSweep_StepFailureIsolated(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	repo.addUser(1, true)
	repo.addCopy(10, 100, model.CopyOnLoan)
	repo.addLoan(1, 10, model.LoanActive, testStart.AddDate(0, 0, 2))
	repo.failPromote = errors.New("db down")
	svc, _, _ := newTestService(repo, service.DefaultConfig())

	res, err := svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.LoansPromoted)
	require.Equal(t, 1, res.RemindersCreated, "later steps still run")
}

func TestRunSweep_CreateFeeFailureSkipsRecord(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	repo.addUser(1, true)
	repo.addCopy(10, 100, model.CopyOnLoan)
	repo.addLoan(1, 10, model.LoanOverdue, testStart.AddDate(0, 0, -20))
	repo.failCreateFee = errors.New("insert failed")
	svc, _, _ := newTestService(repo, service.DefaultConfig())

	res, err := svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.FeesCreated)
	require.Empty(t, repo.fees)
}
