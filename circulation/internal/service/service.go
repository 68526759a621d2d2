package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bookwise/circulation-service/circulation/internal/errs"
	"github.com/bookwise/circulation-service/circulation/internal/model"
	"github.com/bookwise/circulation-service/circulation/internal/notify"
	"github.com/bookwise/circulation-service/circulation/internal/repository"
	"github.com/bookwise/circulation-service/pkg/kafka"
)

// Clock supplies current time. Injected so due-date and fee math
// is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func NewClock() Clock { return realClock{} }

type Config struct {
	// LoanTerm is the fixed checkout term.
	LoanTerm time.Duration
	// StageRequiresOptIn keeps the observed rule that staging a copy for
	// pickup is a no-op when the holder disabled notifications.
	StageRequiresOptIn bool
	// SweepInterval is the scheduling period of the billing sweep; it
	// bounds the payment-reminder and dedup windows.
	SweepInterval time.Duration
	// ReturnDueWindow is how far ahead return reminders look.
	ReturnDueWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		LoanTerm:           90 * 24 * time.Hour,
		StageRequiresOptIn: true,
		SweepInterval:      24 * time.Hour,
		ReturnDueWindow:    5 * 24 * time.Hour,
	}
}

// Service is the copy state machine: the only legal mutation path for
// copy, reservation, loan and fee state.
type Service struct {
	log   *zap.Logger
	repo  repository.Repository
	sink  notify.Sink
	clock Clock
	cfg   Config

	sweepGroup singleflight.Group
}

func NewService(repo repository.Repository, sink notify.Sink, clock Clock, cfg Config, log *zap.Logger) *Service {
	return &Service{
		log:   log,
		repo:  repo,
		sink:  sink,
		clock: clock,
		cfg:   cfg,
	}
}

func (s *Service) PlaceHold(ctx context.Context, req model.PlaceHoldRequest) (model.Reservation, error) {
	uid := uuid.New().String()
	now := s.clock.Now()
	if req.CopyID != 0 {
		return s.repo.PlaceHoldCopy(ctx, req.CopyID, req.UserID, uid, now)
	}
	if req.BookID != 0 {
		return s.repo.PlaceHoldBook(ctx, req.BookID, req.UserID, uid, now)
	}
	return model.Reservation{}, errs.ErrNotFound
}

func (s *Service) ReleaseHold(ctx context.Context, copyID int) (model.Reservation, error) {
	return s.repo.ReleaseHold(ctx, copyID)
}

func (s *Service) StageForPickup(ctx context.Context, copyID int) (model.StageResult, error) {
	now := s.clock.Now()
	res, staged, err := s.repo.StageForPickup(ctx, copyID, s.cfg.StageRequiresOptIn, now)
	if err != nil {
		return model.StageResult{}, err
	}
	if !staged {
		return model.StageResult{Staged: false}, nil
	}
	s.emit(ctx, res.UserID, copyID, model.ReminderPickupReady, now)
	return model.StageResult{Staged: true, Reservation: res.ReservationUid}, nil
}

func (s *Service) CheckOut(ctx context.Context, copyID int) (model.CheckOutResponse, error) {
	now := s.clock.Now()
	loan, err := s.repo.CheckOut(ctx, copyID, uuid.New().String(), now, now.Add(s.cfg.LoanTerm))
	if err != nil {
		return model.CheckOutResponse{}, err
	}
	return model.CheckOutResponse{LoanUid: loan.LoanUid, DueDate: loan.DueDate}, nil
}

func (s *Service) ReturnCopy(ctx context.Context, copyID int) (model.Loan, error) {
	return s.repo.ReturnCopy(ctx, copyID, s.clock.Now())
}

func (s *Service) DeleteCopy(ctx context.Context, copyID int) (model.DeleteCopyResult, error) {
	bookDeleted, err := s.repo.DeleteCopy(ctx, copyID)
	if err != nil {
		return model.DeleteCopyResult{}, err
	}
	return model.DeleteCopyResult{CopyDeleted: true, BookDeleted: bookDeleted}, nil
}

// emit publishes a reminder event; delivery failures are logged only,
// the reminder record itself is already committed.
func (s *Service) emit(ctx context.Context, userID, copyID int, typ model.ReminderType, at time.Time) {
	event := kafka.ReminderEvent{
		UserID: userID,
		CopyID: copyID,
		Type:   string(typ),
		SentAt: at,
	}
	if err := s.sink.Emit(ctx, event); err != nil {
		s.log.Warn("reminder publish failed",
			zap.Int("userId", userID), zap.Int("copyId", copyID),
			zap.String("type", string(typ)), zap.Error(err))
	}
}

func (s *Service) CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error) {
	book := model.Book{
		ISBN:        req.ISBN,
		Title:       req.Title,
		Author:      req.Author,
		Genre:       req.Genre,
		Year:        req.Year,
		Description: req.Description,
	}
	return s.repo.CreateBook(ctx, book, req.Copies)
}

func (s *Service) UpdateBook(ctx context.Context, bookID int, upd model.UpdateBookRequest) (model.Book, error) {
	return s.repo.UpdateBook(ctx, bookID, upd)
}

func (s *Service) CreateCopy(ctx context.Context, bookID int) (model.Copy, error) {
	return s.repo.CreateCopy(ctx, bookID)
}

func (s *Service) ListBooks(ctx context.Context, filter model.ListBooksFilter) (model.ListBooks, error) {
	return s.repo.ListBooks(ctx, filter)
}

func (s *Service) ListCopies(ctx context.Context, bookID int) ([]model.Copy, error) {
	return s.repo.ListCopies(ctx, bookID)
}

func (s *Service) UserDebt(ctx context.Context, userID int) (int64, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return 0, err
	}
	return s.repo.UserDebt(ctx, userID)
}

func (s *Service) PayFees(ctx context.Context, userID int, feeIDs []int) (int, error) {
	return s.repo.PayFees(ctx, userID, feeIDs)
}

func (s *Service) SetNotificationPref(ctx context.Context, userID int, enabled bool) error {
	return s.repo.SetNotificationPref(ctx, userID, enabled)
}
