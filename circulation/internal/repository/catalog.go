package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookwise/circulation-service/circulation/internal/errs"
	"github.com/bookwise/circulation-service/circulation/internal/model"
)

func (r *repository) ListBooks(ctx context.Context, filter model.ListBooksFilter) (model.ListBooks, error) {
	q := qb.Select("id", "isbn", "title", "author", "genre", "publication_year", "description").
		From(booksTableName)

	if filter.Genre != "" {
		q = q.Where(sq.Eq{"genre": filter.Genre})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(sq.Or{sq.ILike{"title": pattern}, sq.ILike{"author": pattern}})
	}
	if filter.Page != 0 && filter.Size != 0 {
		q = q.Limit(uint64(filter.Size)).Offset(uint64((filter.Page - 1) * filter.Size))
	}

	query, args, err := q.OrderBy("id").ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return model.ListBooks{}, err
	}

	return model.ListBooks{
		Paging: model.Paging{
			Page:          filter.Page,
			PageSize:      filter.Size,
			TotalElements: len(books),
		},
		Items: books,
	}, nil
}

func (r *repository) ListCopies(ctx context.Context, bookID int) ([]model.Copy, error) {
	query, args, err := qb.Select("id", "book_id", "status").
		From(copiesTableName).
		Where(sq.Eq{"book_id": bookID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var copies []model.Copy
	if err := r.db.SelectContext(ctx, &copies, query, args...); err != nil {
		return nil, err
	}
	return copies, nil
}

func (r *repository) GetUser(ctx context.Context, userID int) (model.User, error) {
	query, args, err := qb.Select("id", "name", "surname", "email", "wants_notifications", "registered_at").
		From(usersTableName).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var u model.User
	if err := r.db.GetContext(ctx, &u, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}

func (r *repository) SetNotificationPref(ctx context.Context, userID int, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`update users set wants_notifications = $2 where id = $1`, userID, enabled)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *repository) UserDebt(ctx context.Context, userID int) (int64, error) {
	const q = `select coalesce(sum(amount), 0) from fees
	where user_id = $1 and status = 'pending'`
	var total int64
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) PayFees(ctx context.Context, userID int, feeIDs []int) (int, error) {
	query, args, err := qb.Update(feesTableName).
		Set("status", model.FeePaid).
		Where(sq.Eq{"id": feeIDs}).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"status": model.FeePending}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *repository) ListReviews(ctx context.Context) ([]model.Review, error) {
	query, args, err := qb.Select("id", "book_id", "user_id", "rating", "text", "created_at").
		From(reviewsTableName).
		ToSql()
	if err != nil {
		return nil, err
	}
	var reviews []model.Review
	if err := r.db.SelectContext(ctx, &reviews, query, args...); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *repository) ListUserLoanBookIDs(ctx context.Context, userID int) ([]int, error) {
	const q = `
	select distinct c.book_id
	from loans l
	join copies c on c.id = l.copy_id
	where l.user_id = $1`
	var ids []int
	if err := r.db.SelectContext(ctx, &ids, q, userID); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) GetBooksByIDs(ctx context.Context, ids []int) ([]model.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := qb.Select("id", "isbn", "title", "author", "genre", "publication_year", "description").
		From(booksTableName).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, err
	}
	return books, nil
}
