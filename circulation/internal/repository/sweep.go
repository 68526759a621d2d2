package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/bookwise/circulation-service/circulation/internal/model"
)

func (r *repository) PromoteOverdueLoans(ctx context.Context, now time.Time) (int, error) {
	const q = `update loans set status = 'overdue'
	where status = 'active' and due_date < $1`
	res, err := r.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *repository) ListOverdueLoans(ctx context.Context) ([]model.LoanWithUser, error) {
	const q = `
	select l.id, l.loan_uid, l.user_id, l.copy_id, l.status, l.loan_date, l.due_date, l.return_date,
	       u.wants_notifications
	from loans l
	join users u on u.id = l.user_id
	where l.status = 'overdue'
	order by l.id`
	var loans []model.LoanWithUser
	if err := r.db.SelectContext(ctx, &loans, q); err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) HasPendingFee(ctx context.Context, userID, copyID int) (bool, error) {
	const q = `select exists (
	select 1 from fees where user_id = $1 and copy_id = $2 and status = 'pending')`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, userID, copyID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *repository) CreateFee(ctx context.Context, fee model.Fee) error {
	q, args, err := qb.Insert(feesTableName).
		Columns("user_id", "copy_id", "amount", "status", "created_at").
		Values(fee.UserID, fee.CopyID, fee.Amount, fee.Status, fee.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}

func (r *repository) ListRecentPendingFees(ctx context.Context, since time.Time) ([]model.FeeWithUser, error) {
	const q = `
	select f.id, f.user_id, f.copy_id, f.amount, f.status, f.created_at,
	       u.wants_notifications
	from fees f
	join users u on u.id = f.user_id
	where f.status = 'pending' and f.created_at >= $1
	order by f.id`
	var fees []model.FeeWithUser
	if err := r.db.SelectContext(ctx, &fees, q, since); err != nil {
		return nil, err
	}
	return fees, nil
}

func (r *repository) ListLoansDueWithin(ctx context.Context, now, until time.Time) ([]model.LoanWithUser, error) {
	const q = `
	select l.id, l.loan_uid, l.user_id, l.copy_id, l.status, l.loan_date, l.due_date, l.return_date,
	       u.wants_notifications
	from loans l
	join users u on u.id = l.user_id
	where l.status = 'active' and l.due_date >= $1 and l.due_date <= $2
	order by l.id`
	var loans []model.LoanWithUser
	if err := r.db.SelectContext(ctx, &loans, q, now, until); err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) HasReminderSince(ctx context.Context, userID, copyID int, typ model.ReminderType, since time.Time) (bool, error) {
	q, args, err := qb.Select("1").
		From(remindersTableName).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"copy_id": copyID}).
		Where(sq.Eq{"type": typ}).
		Where(sq.GtOrEq{"sent_at": since}).
		Limit(1).
		Prefix("select exists (").Suffix(")").
		ToSql()
	if err != nil {
		return false, err
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *repository) CreateReminder(ctx context.Context, rem model.Reminder) error {
	const q = `insert into reminders (user_id, copy_id, type, sent_at) values ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, q, rem.UserID, rem.CopyID, rem.Type, rem.SentAt)
	return err
}
