package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/bookwise/circulation-service/circulation/internal/errs"
	"github.com/bookwise/circulation-service/circulation/internal/model"
	"github.com/bookwise/circulation-service/pkg/kafka"
)

// fakeRepo is an in-memory stand-in for the persistence layer. It keeps
// the same semantics as the SQL implementation (one active reservation
// per copy, one pending fee per user/copy, status-gated transitions) so
// the state machine and the sweep can be exercised without a database.
type fakeRepo struct {
	mu sync.Mutex

	users        map[int]model.User
	books        map[int]model.Book
	copies       map[int]*model.Copy
	reservations []*model.Reservation
	loans        []*model.Loan
	fees         []*model.Fee
	reminders    []model.Reminder
	reviews      []model.Review

	nextID int

	failCreateFee      error
	failPromote        error
	failCreateReminder error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:  make(map[int]model.User),
		books:  make(map[int]model.Book),
		copies: make(map[int]*model.Copy),
	}
}

func (f *fakeRepo) id() int {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) addUser(id int, wantsNotifications bool) {
	f.users[id] = model.User{ID: id, WantsNotifications: wantsNotifications}
}

func (f *fakeRepo) addCopy(id, bookID int, status model.CopyStatus) {
	f.books[bookID] = model.Book{ID: bookID}
	f.copies[id] = &model.Copy{ID: id, BookID: bookID, Status: status}
}

func (f *fakeRepo) addLoan(userID, copyID int, status model.LoanStatus, due time.Time) *model.Loan {
	loan := &model.Loan{
		ID:      f.id(),
		LoanUid: "loan-fixture",
		UserID:  userID,
		CopyID:  copyID,
		Status:  status,
		DueDate: due,
	}
	f.loans = append(f.loans, loan)
	return loan
}

func (f *fakeRepo) activeReservation(copyID int) *model.Reservation {
	for i := len(f.reservations) - 1; i >= 0; i-- {
		res := f.reservations[i]
		if res.CopyID == copyID && res.Status == model.ReservationActive {
			return res
		}
	}
	return nil
}

func (f *fakeRepo) pendingFees(userID, copyID int) []*model.Fee {
	var out []*model.Fee
	for _, fee := range f.fees {
		if fee.UserID == userID && fee.CopyID == copyID && fee.Status == model.FeePending {
			out = append(out, fee)
		}
	}
	return out
}

func (f *fakeRepo) placeHold(copyID, userID int, uid string, now time.Time) model.Reservation {
	f.copies[copyID].Status = model.CopyReserved
	res := &model.Reservation{
		ID:             f.id(),
		ReservationUid: uid,
		UserID:         userID,
		CopyID:         copyID,
		Status:         model.ReservationActive,
		CreatedAt:      now,
	}
	f.reservations = append(f.reservations, res)
	return *res
}

func (f *fakeRepo) PlaceHoldCopy(_ context.Context, copyID, userID int, uid string, now time.Time) (model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.copies[copyID]
	if !ok {
		return model.Reservation{}, errs.ErrNotFound
	}
	if c.Status != model.CopyAvailable {
		return model.Reservation{}, errs.ErrNotAvailable
	}
	return f.placeHold(copyID, userID, uid, now), nil
}

func (f *fakeRepo) PlaceHoldBook(_ context.Context, bookID, userID int, uid string, now time.Time) (model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	best := 0
	for id, c := range f.copies {
		if c.BookID != bookID || c.Status != model.CopyAvailable {
			continue
		}
		if best == 0 || id < best {
			best = id
		}
	}
	if best == 0 {
		return model.Reservation{}, errs.ErrNotAvailable
	}
	return f.placeHold(best, userID, uid, now), nil
}

func (f *fakeRepo) ReleaseHold(_ context.Context, copyID int) (model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.copies[copyID]
	if !ok {
		return model.Reservation{}, errs.ErrNotFound
	}
	if c.Status != model.CopyReserved && c.Status != model.CopyReadyForPickup {
		return model.Reservation{}, errs.ErrNotReserved
	}
	res := f.activeReservation(copyID)
	if res == nil {
		return model.Reservation{}, errs.ErrNoActiveReservation
	}
	res.Status = model.ReservationCancelled
	c.Status = model.CopyAvailable
	return *res, nil
}

func (f *fakeRepo) StageForPickup(_ context.Context, copyID int, requireOptIn bool, now time.Time) (model.Reservation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.copies[copyID]
	if !ok {
		return model.Reservation{}, false, errs.ErrNotFound
	}
	if c.Status != model.CopyReserved {
		return model.Reservation{}, false, errs.ErrNotReserved
	}
	res := f.activeReservation(copyID)
	if res == nil {
		return model.Reservation{}, false, errs.ErrNoActiveReservation
	}
	if requireOptIn && !f.users[res.UserID].WantsNotifications {
		return *res, false, nil
	}
	c.Status = model.CopyReadyForPickup
	f.reminders = append(f.reminders, model.Reminder{
		ID:     f.id(),
		UserID: res.UserID,
		CopyID: copyID,
		Type:   model.ReminderPickupReady,
		SentAt: now,
	})
	return *res, true, nil
}

func (f *fakeRepo) CheckOut(_ context.Context, copyID int, uid string, now, due time.Time) (model.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.copies[copyID]
	if !ok {
		return model.Loan{}, errs.ErrNotFound
	}
	if c.Status != model.CopyReadyForPickup {
		return model.Loan{}, errs.ErrNotReadyForPickup
	}
	res := f.activeReservation(copyID)
	if res == nil {
		return model.Loan{}, errs.ErrNoActiveReservation
	}
	res.Status = model.ReservationCompleted
	c.Status = model.CopyOnLoan
	loan := &model.Loan{
		ID:       f.id(),
		LoanUid:  uid,
		UserID:   res.UserID,
		CopyID:   copyID,
		Status:   model.LoanActive,
		LoanDate: now,
		DueDate:  due,
	}
	f.loans = append(f.loans, loan)
	return *loan, nil
}

func (f *fakeRepo) ReturnCopy(_ context.Context, copyID int, now time.Time) (model.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.copies[copyID]; !ok {
		return model.Loan{}, errs.ErrNotFound
	}
	for _, loan := range f.loans {
		if loan.CopyID != copyID || loan.Status == model.LoanClosed {
			continue
		}
		loan.Status = model.LoanClosed
		returned := now
		loan.ReturnDate = &returned
		f.copies[copyID].Status = model.CopyAvailable
		return *loan, nil
	}
	return model.Loan{}, errs.ErrNoActiveLoan
}

func (f *fakeRepo) DeleteCopy(_ context.Context, copyID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.copies[copyID]
	if !ok {
		return false, errs.ErrNotFound
	}
	if c.Status != model.CopyAvailable {
		return false, errs.ErrCopyNotAvailable
	}
	bookID := c.BookID
	delete(f.copies, copyID)
	for _, other := range f.copies {
		if other.BookID == bookID {
			return false, nil
		}
	}
	delete(f.books, bookID)
	kept := f.reviews[:0]
	for _, rv := range f.reviews {
		if rv.BookID != bookID {
			kept = append(kept, rv)
		}
	}
	f.reviews = kept
	return true, nil
}

func (f *fakeRepo) PromoteOverdueLoans(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPromote != nil {
		return 0, f.failPromote
	}
	promoted := 0
	for _, loan := range f.loans {
		if loan.Status == model.LoanActive && loan.DueDate.Before(now) {
			loan.Status = model.LoanOverdue
			promoted++
		}
	}
	return promoted, nil
}

func (f *fakeRepo) ListOverdueLoans(_ context.Context) ([]model.LoanWithUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.LoanWithUser
	for _, loan := range f.loans {
		if loan.Status != model.LoanOverdue {
			continue
		}
		out = append(out, model.LoanWithUser{
			Loan:               *loan,
			WantsNotifications: f.users[loan.UserID].WantsNotifications,
		})
	}
	return out, nil
}

func (f *fakeRepo) HasPendingFee(_ context.Context, userID, copyID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pendingFees(userID, copyID)) > 0, nil
}

func (f *fakeRepo) CreateFee(_ context.Context, fee model.Fee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateFee != nil {
		return f.failCreateFee
	}
	fee.ID = f.id()
	f.fees = append(f.fees, &fee)
	return nil
}

func (f *fakeRepo) ListRecentPendingFees(_ context.Context, since time.Time) ([]model.FeeWithUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.FeeWithUser
	for _, fee := range f.fees {
		if fee.Status != model.FeePending || fee.CreatedAt.Before(since) {
			continue
		}
		out = append(out, model.FeeWithUser{
			Fee:                *fee,
			WantsNotifications: f.users[fee.UserID].WantsNotifications,
		})
	}
	return out, nil
}

func (f *fakeRepo) ListLoansDueWithin(_ context.Context, now, until time.Time) ([]model.LoanWithUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.LoanWithUser
	for _, loan := range f.loans {
		if loan.Status != model.LoanActive {
			continue
		}
		if loan.DueDate.Before(now) || loan.DueDate.After(until) {
			continue
		}
		out = append(out, model.LoanWithUser{
			Loan:               *loan,
			WantsNotifications: f.users[loan.UserID].WantsNotifications,
		})
	}
	return out, nil
}

func (f *fakeRepo) HasReminderSince(_ context.Context, userID, copyID int, typ model.ReminderType, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rem := range f.reminders {
		if rem.UserID == userID && rem.CopyID == copyID && rem.Type == typ && !rem.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) CreateReminder(_ context.Context, rem model.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateReminder != nil {
		return f.failCreateReminder
	}
	rem.ID = f.id()
	f.reminders = append(f.reminders, rem)
	return nil
}

func (f *fakeRepo) CreateBook(_ context.Context, book model.Book, copies int) (model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	book.ID = f.id()
	f.books[book.ID] = book
	for i := 0; i < copies; i++ {
		id := f.id()
		f.copies[id] = &model.Copy{ID: id, BookID: book.ID, Status: model.CopyAvailable}
	}
	return book, nil
}

func (f *fakeRepo) UpdateBook(_ context.Context, bookID int, upd model.UpdateBookRequest) (model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[bookID]
	if !ok {
		return model.Book{}, errs.ErrNotFound
	}
	if upd.ISBN != nil {
		b.ISBN = *upd.ISBN
	}
	if upd.Title != nil {
		b.Title = *upd.Title
	}
	if upd.Author != nil {
		b.Author = *upd.Author
	}
	if upd.Genre != nil {
		b.Genre = *upd.Genre
	}
	if upd.Year != nil {
		b.Year = *upd.Year
	}
	if upd.Description != nil {
		b.Description = *upd.Description
	}
	f.books[bookID] = b
	return b, nil
}

func (f *fakeRepo) CreateCopy(_ context.Context, bookID int) (model.Copy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[bookID]; !ok {
		return model.Copy{}, errs.ErrNotFound
	}
	id := f.id()
	c := &model.Copy{ID: id, BookID: bookID, Status: model.CopyAvailable}
	f.copies[id] = c
	return *c, nil
}

func (f *fakeRepo) ListBooks(_ context.Context, filter model.ListBooksFilter) (model.ListBooks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := model.ListBooks{Paging: model.Paging{Page: filter.Page, PageSize: filter.Size}}
	for _, b := range f.books {
		out.Items = append(out.Items, b)
	}
	out.TotalElements = len(out.Items)
	return out, nil
}

func (f *fakeRepo) ListCopies(_ context.Context, bookID int) ([]model.Copy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Copy
	for _, c := range f.copies {
		if c.BookID == bookID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetUser(_ context.Context, userID int) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) SetNotificationPref(_ context.Context, userID int, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return errs.ErrNotFound
	}
	u.WantsNotifications = enabled
	f.users[userID] = u
	return nil
}

func (f *fakeRepo) UserDebt(_ context.Context, userID int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, fee := range f.fees {
		if fee.UserID == userID && fee.Status == model.FeePending {
			total += fee.Amount
		}
	}
	return total, nil
}

func (f *fakeRepo) PayFees(_ context.Context, userID int, feeIDs []int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[int]struct{}, len(feeIDs))
	for _, id := range feeIDs {
		ids[id] = struct{}{}
	}
	paid := 0
	for _, fee := range f.fees {
		if _, ok := ids[fee.ID]; !ok {
			continue
		}
		if fee.UserID != userID || fee.Status != model.FeePending {
			continue
		}
		fee.Status = model.FeePaid
		paid++
	}
	return paid, nil
}

func (f *fakeRepo) ListReviews(_ context.Context) ([]model.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Review(nil), f.reviews...), nil
}

func (f *fakeRepo) ListUserLoanBookIDs(_ context.Context, userID int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[int]struct{})
	var out []int
	for _, loan := range f.loans {
		if loan.UserID != userID {
			continue
		}
		c, ok := f.copies[loan.CopyID]
		if !ok {
			continue
		}
		if _, dup := seen[c.BookID]; dup {
			continue
		}
		seen[c.BookID] = struct{}{}
		out = append(out, c.BookID)
	}
	return out, nil
}

func (f *fakeRepo) GetBooksByIDs(_ context.Context, ids []int) ([]model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Book
	for _, id := range ids {
		if b, ok := f.books[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSink records emitted reminder events.
type fakeSink struct {
	mu     sync.Mutex
	events []kafka.ReminderEvent
}

func (s *fakeSink) Emit(_ context.Context, e kafka.ReminderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) Events() []kafka.ReminderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]kafka.ReminderEvent(nil), s.events...)
}
