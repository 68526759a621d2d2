package handler

import (
	"context"

	"github.com/bookwise/circulation-service/circulation/internal/model"
	"github.com/bookwise/circulation-service/circulation/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type CirculationService interface {
	PlaceHold(ctx context.Context, req model.PlaceHoldRequest) (model.Reservation, error)
	ReleaseHold(ctx context.Context, copyID int) (model.Reservation, error)
	StageForPickup(ctx context.Context, copyID int) (model.StageResult, error)
	CheckOut(ctx context.Context, copyID int) (model.CheckOutResponse, error)
	ReturnCopy(ctx context.Context, copyID int) (model.Loan, error)
	DeleteCopy(ctx context.Context, copyID int) (model.DeleteCopyResult, error)
	RunSweep(ctx context.Context) (model.SweepResult, error)

	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	UpdateBook(ctx context.Context, bookID int, upd model.UpdateBookRequest) (model.Book, error)
	CreateCopy(ctx context.Context, bookID int) (model.Copy, error)

	ListBooks(ctx context.Context, filter model.ListBooksFilter) (model.ListBooks, error)
	ListCopies(ctx context.Context, bookID int) ([]model.Copy, error)
	UserDebt(ctx context.Context, userID int) (int64, error)
	PayFees(ctx context.Context, userID int, feeIDs []int) (int, error)
	SetNotificationPref(ctx context.Context, userID int, enabled bool) error
}

var _ CirculationService = (*service.Service)(nil)

type RecommendService interface {
	ForUser(ctx context.Context, userID, limit int) ([]model.Book, error)
}
