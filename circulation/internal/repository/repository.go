package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookwise/circulation-service/circulation/internal/errs"
	"github.com/bookwise/circulation-service/circulation/internal/model"
)

type Repository interface {
	// Copy state machine. Each method is one transaction over a
	// row-locked copy; copy status and its reservation/loan records
	// never change outside these methods.
	PlaceHoldCopy(ctx context.Context, copyID, userID int, uid string, now time.Time) (model.Reservation, error)
	PlaceHoldBook(ctx context.Context, bookID, userID int, uid string, now time.Time) (model.Reservation, error)
	ReleaseHold(ctx context.Context, copyID int) (model.Reservation, error)
	StageForPickup(ctx context.Context, copyID int, requireOptIn bool, now time.Time) (model.Reservation, bool, error)
	CheckOut(ctx context.Context, copyID int, uid string, now, due time.Time) (model.Loan, error)
	ReturnCopy(ctx context.Context, copyID int, now time.Time) (model.Loan, error)
	DeleteCopy(ctx context.Context, copyID int) (bool, error)

	// Billing sweep.
	PromoteOverdueLoans(ctx context.Context, now time.Time) (int, error)
	ListOverdueLoans(ctx context.Context) ([]model.LoanWithUser, error)
	HasPendingFee(ctx context.Context, userID, copyID int) (bool, error)
	CreateFee(ctx context.Context, fee model.Fee) error
	ListRecentPendingFees(ctx context.Context, since time.Time) ([]model.FeeWithUser, error)
	ListLoansDueWithin(ctx context.Context, now, until time.Time) ([]model.LoanWithUser, error)
	HasReminderSince(ctx context.Context, userID, copyID int, typ model.ReminderType, since time.Time) (bool, error)
	CreateReminder(ctx context.Context, rem model.Reminder) error

	// Staff catalog management.
	CreateBook(ctx context.Context, book model.Book, copies int) (model.Book, error)
	UpdateBook(ctx context.Context, bookID int, upd model.UpdateBookRequest) (model.Book, error)
	CreateCopy(ctx context.Context, bookID int) (model.Copy, error)

	// Catalog and account reads/updates.
	ListBooks(ctx context.Context, filter model.ListBooksFilter) (model.ListBooks, error)
	ListCopies(ctx context.Context, bookID int) ([]model.Copy, error)
	GetUser(ctx context.Context, userID int) (model.User, error)
	SetNotificationPref(ctx context.Context, userID int, enabled bool) error
	UserDebt(ctx context.Context, userID int) (int64, error)
	PayFees(ctx context.Context, userID int, feeIDs []int) (int, error)
	ListReviews(ctx context.Context) ([]model.Review, error)
	ListUserLoanBookIDs(ctx context.Context, userID int) ([]int, error)
	GetBooksByIDs(ctx context.Context, ids []int) ([]model.Book, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	usersTableName           = `users`
	booksTableName           = `books`
	copiesTableName          = `copies`
	reservationsTableName    = `reservations`
	loansTableName           = `loans`
	feesTableName            = `fees`
	remindersTableName       = `reminders`
	reviewsTableName         = `reviews`
	recommendationsTableName = `recommendations`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const txAttempts = 3

// withTx runs fn in a transaction, retrying a bounded number of times on
// lock contention. After the last failed attempt the caller sees ErrConflict.
func (r *repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		r.log.Warn("tx conflict, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
	return errors.Wrap(errs.ErrConflict, err.Error())
}

func (r *repository) runTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return true
	}
	return false
}

// lockCopy takes a row lock on the copy, serializing all state
// transitions for it within the current transaction.
func lockCopy(tx *sqlx.Tx, copyID int) (model.Copy, error) {
	const q = `select id, book_id, status from copies where id = $1 for update`
	var c model.Copy
	if err := tx.Get(&c, q, copyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Copy{}, errs.ErrNotFound
		}
		return model.Copy{}, err
	}
	return c, nil
}

func setCopyStatus(tx *sqlx.Tx, copyID int, status model.CopyStatus) error {
	_, err := tx.Exec(`update copies set status = $2 where id = $1`, copyID, status)
	return err
}

func (r *repository) PlaceHoldCopy(ctx context.Context, copyID, userID int, uid string, now time.Time) (model.Reservation, error) {
	var res model.Reservation
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		c, err := lockCopy(tx, copyID)
		if err != nil {
			return err
		}
		if c.Status != model.CopyAvailable {
			return errs.ErrNotAvailable
		}
		return placeHold(tx, &res, c.ID, userID, uid, now)
	})
	return res, err
}

func (r *repository) PlaceHoldBook(ctx context.Context, bookID, userID int, uid string, now time.Time) (model.Reservation, error) {
	var res model.Reservation
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		// lowest id first keeps the assignment deterministic across
		// equally eligible copies
		const q = `select id, book_id, status from copies
		where book_id = $1 and status = 'available'
		order by id limit 1 for update`
		var c model.Copy
		if err := tx.Get(&c, q, bookID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotAvailable
			}
			return err
		}
		return placeHold(tx, &res, c.ID, userID, uid, now)
	})
	return res, err
}

func placeHold(tx *sqlx.Tx, res *model.Reservation, copyID, userID int, uid string, now time.Time) error {
	if err := setCopyStatus(tx, copyID, model.CopyReserved); err != nil {
		return err
	}
	const q = `insert into reservations (reservation_uid, user_id, copy_id, status, created_at)
	values ($1, $2, $3, $4, $5)
	returning id, reservation_uid, user_id, copy_id, status, created_at`
	return tx.Get(res, q, uid, userID, copyID, model.ReservationActive, now)
}

func insertReminder(tx *sqlx.Tx, rem model.Reminder) error {
	const q = `insert into reminders (user_id, copy_id, type, sent_at) values ($1, $2, $3, $4)`
	_, err := tx.Exec(q, rem.UserID, rem.CopyID, rem.Type, rem.SentAt)
	return err
}

func activeReservation(tx *sqlx.Tx, copyID int) (model.Reservation, error) {
	const q = `select id, reservation_uid, user_id, copy_id, status, created_at
	from reservations
	where copy_id = $1 and status = 'active'
	order by created_at desc, id desc limit 1`
	var res model.Reservation
	if err := tx.Get(&res, q, copyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Reservation{}, errs.ErrNoActiveReservation
		}
		return model.Reservation{}, err
	}
	return res, nil
}

func (r *repository) ReleaseHold(ctx context.Context, copyID int) (model.Reservation, error) {
	var res model.Reservation
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		c, err := lockCopy(tx, copyID)
		if err != nil {
			return err
		}
		if c.Status != model.CopyReserved && c.Status != model.CopyReadyForPickup {
			return errs.ErrNotReserved
		}
		if res, err = activeReservation(tx, copyID); err != nil {
			return err
		}
		if _, err = tx.Exec(`update reservations set status = $2 where id = $1`,
			res.ID, model.ReservationCancelled); err != nil {
			return err
		}
		res.Status = model.ReservationCancelled
		return setCopyStatus(tx, copyID, model.CopyAvailable)
	})
	return res, err
}

func (r *repository) StageForPickup(ctx context.Context, copyID int, requireOptIn bool, now time.Time) (model.Reservation, bool, error) {
	var (
		res    model.Reservation
		staged bool
	)
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		c, err := lockCopy(tx, copyID)
		if err != nil {
			return err
		}
		if c.Status != model.CopyReserved {
			return errs.ErrNotReserved
		}
		if res, err = activeReservation(tx, copyID); err != nil {
			return err
		}
		if requireOptIn {
			var wants bool
			if err := tx.Get(&wants, `select wants_notifications from users where id = $1`, res.UserID); err != nil {
				return err
			}
			// the hold stays reserved until the user can be notified;
			// observed rule, toggled by configuration
			if !wants {
				staged = false
				return nil
			}
		}
		if err := setCopyStatus(tx, copyID, model.CopyReadyForPickup); err != nil {
			return err
		}
		if err := insertReminder(tx, model.Reminder{
			UserID: res.UserID,
			CopyID: copyID,
			Type:   model.ReminderPickupReady,
			SentAt: now,
		}); err != nil {
			return err
		}
		staged = true
		return nil
	})
	return res, staged, err
}

func (r *repository) CheckOut(ctx context.Context, copyID int, uid string, now, due time.Time) (model.Loan, error) {
	var loan model.Loan
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		c, err := lockCopy(tx, copyID)
		if err != nil {
			return err
		}
		if c.Status != model.CopyReadyForPickup {
			return errs.ErrNotReadyForPickup
		}
		res, err := activeReservation(tx, copyID)
		if err != nil {
			return err
		}
		if _, err = tx.Exec(`update reservations set status = $2 where id = $1`,
			res.ID, model.ReservationCompleted); err != nil {
			return err
		}
		if err = setCopyStatus(tx, copyID, model.CopyOnLoan); err != nil {
			return err
		}
		const q = `insert into loans (loan_uid, user_id, copy_id, status, loan_date, due_date)
		values ($1, $2, $3, $4, $5, $6)
		returning id, loan_uid, user_id, copy_id, status, loan_date, due_date, return_date`
		return tx.Get(&loan, q, uid, res.UserID, copyID, model.LoanActive, now, due)
	})
	return loan, err
}

func (r *repository) ReturnCopy(ctx context.Context, copyID int, now time.Time) (model.Loan, error) {
	var loan model.Loan
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := lockCopy(tx, copyID); err != nil {
			return err
		}
		const q = `update loans set status = $2, return_date = $3
		where copy_id = $1 and status in ('active', 'overdue')
		returning id, loan_uid, user_id, copy_id, status, loan_date, due_date, return_date`
		if err := tx.Get(&loan, q, copyID, model.LoanClosed, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNoActiveLoan
			}
			return err
		}
		return setCopyStatus(tx, copyID, model.CopyAvailable)
	})
	return loan, err
}

// DeleteCopy removes an available copy. Deleting the book's last copy also
// removes the book together with its reviews and recommendations; those
// are working data derived from the catalog entry, not referential cascades.
func (r *repository) DeleteCopy(ctx context.Context, copyID int) (bool, error) {
	var bookDeleted bool
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		c, err := lockCopy(tx, copyID)
		if err != nil {
			return err
		}
		if c.Status != model.CopyAvailable {
			return errs.ErrCopyNotAvailable
		}
		// historical records for the copy go with it
		for _, q := range []string{
			`delete from reminders where copy_id = $1`,
			`delete from fees where copy_id = $1`,
			`delete from loans where copy_id = $1`,
			`delete from reservations where copy_id = $1`,
			`delete from copies where id = $1`,
		} {
			if _, err = tx.Exec(q, copyID); err != nil {
				return err
			}
		}
		var remaining int
		if err = tx.Get(&remaining, `select count(*) from copies where book_id = $1`, c.BookID); err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		for _, q := range []string{
			`delete from recommendations where book_id = $1`,
			`delete from reviews where book_id = $1`,
			`delete from books where id = $1`,
		} {
			if _, err = tx.Exec(q, c.BookID); err != nil {
				return err
			}
		}
		bookDeleted = true
		return nil
	})
	return bookDeleted, err
}
