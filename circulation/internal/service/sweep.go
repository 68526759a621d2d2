package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bookwise/circulation-service/circulation/internal/model"
)

const sweepKey = "billing-sweep"

// RunSweep executes the periodic billing job. Concurrent callers share a
// single run via singleflight, so two sweeps never overlap. Each step is
// independent: a failing step is logged and the run continues.
func (s *Service) RunSweep(ctx context.Context) (model.SweepResult, error) {
	v, err, _ := s.sweepGroup.Do(sweepKey, func() (interface{}, error) {
		return s.runSweep(ctx), nil
	})
	if err != nil {
		return model.SweepResult{}, err
	}
	return v.(model.SweepResult), nil
}

func (s *Service) runSweep(ctx context.Context) model.SweepResult {
	log := s.log.Named("sweep")
	now := s.clock.Now()

	var result model.SweepResult

	// 1. promote overdue loans
	promoted, err := s.repo.PromoteOverdueLoans(ctx, now)
	if err != nil {
		log.Error("promote overdue loans", zap.Error(err))
	} else {
		result.LoansPromoted = promoted
	}

	// 2. fee accrual, one pending fee per (user, copy)
	overdue, err := s.repo.ListOverdueLoans(ctx)
	if err != nil {
		log.Error("list overdue loans", zap.Error(err))
	}
	for _, loan := range overdue {
		if !loan.WantsNotifications {
			continue
		}
		if loan.DueDate.IsZero() {
			log.Error("overdue loan without due date, skipping",
				zap.String("loanUid", loan.LoanUid))
			continue
		}
		amount := CalculateFee(loan.DueDate, now)
		if amount == 0 {
			continue
		}
		exists, err := s.repo.HasPendingFee(ctx, loan.UserID, loan.CopyID)
		if err != nil {
			log.Error("pending fee lookup", zap.String("loanUid", loan.LoanUid), zap.Error(err))
			continue
		}
		if exists {
			continue
		}
		fee := model.Fee{
			UserID:    loan.UserID,
			CopyID:    loan.CopyID,
			Amount:    amount,
			Status:    model.FeePending,
			CreatedAt: now,
		}
		if err := s.repo.CreateFee(ctx, fee); err != nil {
			log.Error("create fee", zap.String("loanUid", loan.LoanUid), zap.Error(err))
			continue
		}
		result.FeesCreated++
	}

	// 3. payment reminders for fees created within the last interval
	window := now.Add(-s.cfg.SweepInterval)
	fees, err := s.repo.ListRecentPendingFees(ctx, window)
	if err != nil {
		log.Error("list recent pending fees", zap.Error(err))
	}
	for _, fee := range fees {
		if !fee.WantsNotifications {
			continue
		}
		s.remind(ctx, log, fee.UserID, fee.CopyID, model.ReminderPaymentDue, now, &result)
	}

	// 4. return-due reminders for loans due within the lookahead window
	due, err := s.repo.ListLoansDueWithin(ctx, now, now.Add(s.cfg.ReturnDueWindow))
	if err != nil {
		log.Error("list loans due soon", zap.Error(err))
	}
	for _, loan := range due {
		if !loan.WantsNotifications {
			continue
		}
		s.remind(ctx, log, loan.UserID, loan.CopyID, model.ReminderReturnDue, now, &result)
	}

	log.Info("sweep finished",
		zap.Int("loansPromoted", result.LoansPromoted),
		zap.Int("feesCreated", result.FeesCreated),
		zap.Int("remindersCreated", result.RemindersCreated))
	return result
}

// remind creates a reminder unless one of the same kind was already sent
// within the sweep interval, then publishes it. Record-level errors are
// logged and the sweep moves on.
func (s *Service) remind(ctx context.Context, log *zap.Logger, userID, copyID int, typ model.ReminderType, now time.Time, result *model.SweepResult) {
	sent, err := s.repo.HasReminderSince(ctx, userID, copyID, typ, now.Add(-s.cfg.SweepInterval))
	if err != nil {
		log.Error("reminder lookup", zap.Int("userId", userID), zap.Int("copyId", copyID), zap.Error(err))
		return
	}
	if sent {
		return
	}
	rem := model.Reminder{
		UserID: userID,
		CopyID: copyID,
		Type:   typ,
		SentAt: now,
	}
	if err := s.repo.CreateReminder(ctx, rem); err != nil {
		log.Error("create reminder", zap.Int("userId", userID), zap.Int("copyId", copyID), zap.Error(err))
		return
	}
	result.RemindersCreated++
	s.emit(ctx, userID, copyID, typ, now)
}
