package model

import (
	"time"

	"github.com/pkg/errors"
)

// Status values are stable storage constants: the catalog and notifier
// collaborators pattern-match on them, so they never change spelling.

type CopyStatus string

const (
	CopyAvailable      CopyStatus = "available"
	CopyReserved       CopyStatus = "reserved"
	CopyReadyForPickup CopyStatus = "ready_for_pickup"
	CopyOnLoan         CopyStatus = "on_loan"
)

func ParseCopyStatus(s string) (CopyStatus, error) {
	switch st := CopyStatus(s); st {
	case CopyAvailable, CopyReserved, CopyReadyForPickup, CopyOnLoan:
		return st, nil
	}
	return "", errors.Errorf("unknown copy status %q", s)
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch st := ReservationStatus(s); st {
	case ReservationActive, ReservationCompleted, ReservationCancelled:
		return st, nil
	}
	return "", errors.Errorf("unknown reservation status %q", s)
}

type LoanStatus string

const (
	LoanActive  LoanStatus = "active"
	LoanOverdue LoanStatus = "overdue"
	LoanClosed  LoanStatus = "closed"
)

func ParseLoanStatus(s string) (LoanStatus, error) {
	switch st := LoanStatus(s); st {
	case LoanActive, LoanOverdue, LoanClosed:
		return st, nil
	}
	return "", errors.Errorf("unknown loan status %q", s)
}

type FeeStatus string

const (
	FeePending   FeeStatus = "pending"
	FeePaid      FeeStatus = "paid"
	FeeCancelled FeeStatus = "cancelled"
)

func ParseFeeStatus(s string) (FeeStatus, error) {
	switch st := FeeStatus(s); st {
	case FeePending, FeePaid, FeeCancelled:
		return st, nil
	}
	return "", errors.Errorf("unknown fee status %q", s)
}

type ReminderType string

const (
	ReminderPickupReady ReminderType = "pickup_ready"
	ReminderPaymentDue  ReminderType = "payment_due"
	ReminderReturnDue   ReminderType = "return_due"
)

func ParseReminderType(s string) (ReminderType, error) {
	switch t := ReminderType(s); t {
	case ReminderPickupReady, ReminderPaymentDue, ReminderReturnDue:
		return t, nil
	}
	return "", errors.Errorf("unknown reminder type %q", s)
}

type User struct {
	ID                 int       `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	Surname            string    `json:"surname" db:"surname"`
	Email              string    `json:"email" db:"email"`
	WantsNotifications bool      `json:"wantsNotifications" db:"wants_notifications"`
	RegisteredAt       time.Time `json:"registeredAt" db:"registered_at"`
}

type Book struct {
	ID          int    `json:"id" db:"id"`
	ISBN        string `json:"isbn" db:"isbn"`
	Title       string `json:"title" db:"title"`
	Author      string `json:"author" db:"author"`
	Genre       string `json:"genre" db:"genre"`
	Year        int    `json:"year" db:"publication_year"`
	Description string `json:"description" db:"description"`
}

type Copy struct {
	ID     int        `json:"id" db:"id"`
	BookID int        `json:"bookId" db:"book_id"`
	Status CopyStatus `json:"status" db:"status"`
}

type Reservation struct {
	ID             int               `json:"-" db:"id"`
	ReservationUid string            `json:"reservationUid" db:"reservation_uid"`
	UserID         int               `json:"userId" db:"user_id"`
	CopyID         int               `json:"copyId" db:"copy_id"`
	Status         ReservationStatus `json:"status" db:"status"`
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
}

type Loan struct {
	ID         int        `json:"-" db:"id"`
	LoanUid    string     `json:"loanUid" db:"loan_uid"`
	UserID     int        `json:"userId" db:"user_id"`
	CopyID     int        `json:"copyId" db:"copy_id"`
	Status     LoanStatus `json:"status" db:"status"`
	LoanDate   time.Time  `json:"loanDate" db:"loan_date"`
	DueDate    time.Time  `json:"dueDate" db:"due_date"`
	ReturnDate *time.Time `json:"returnDate,omitempty" db:"return_date"`
}

type Fee struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"userId" db:"user_id"`
	CopyID    int       `json:"copyId" db:"copy_id"`
	Amount    int64     `json:"amount" db:"amount"`
	Status    FeeStatus `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type Reminder struct {
	ID     int          `json:"id" db:"id"`
	UserID int          `json:"userId" db:"user_id"`
	CopyID int          `json:"copyId" db:"copy_id"`
	Type   ReminderType `json:"type" db:"type"`
	SentAt time.Time    `json:"sentAt" db:"sent_at"`
}

type Review struct {
	ID        int       `json:"id" db:"id"`
	BookID    int       `json:"bookId" db:"book_id"`
	UserID    int       `json:"userId" db:"user_id"`
	Rating    int       `json:"rating" db:"rating"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// LoanWithUser carries the borrower's notification preference alongside
// the loan, so the sweep can gate fees and reminders without extra lookups.
type LoanWithUser struct {
	Loan
	WantsNotifications bool `db:"wants_notifications"`
}

type FeeWithUser struct {
	Fee
	WantsNotifications bool `db:"wants_notifications"`
}

type CreateBookRequest struct {
	ISBN        string `json:"isbn" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author" validate:"required"`
	Genre       string `json:"genre" validate:"required"`
	Year        int    `json:"year" validate:"required"`
	Description string `json:"description"`
	// Copies is the number of copies registered with the book.
	Copies int `json:"copies" validate:"gte=0"`
}

// UpdateBookRequest is a partial update; nil fields stay unchanged.
type UpdateBookRequest struct {
	ISBN        *string `json:"isbn"`
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Genre       *string `json:"genre"`
	Year        *int    `json:"year"`
	Description *string `json:"description"`
}

type PlaceHoldRequest struct {
	CopyID int `json:"copyId"`
	BookID int `json:"bookId"`
	UserID int `json:"userId" validate:"required"`
}

type CheckOutResponse struct {
	LoanUid string    `json:"loanUid"`
	DueDate time.Time `json:"dueDate"`
}

type DeleteCopyResult struct {
	CopyDeleted bool `json:"copyDeleted"`
	BookDeleted bool `json:"bookDeleted"`
}

type StageResult struct {
	Staged      bool   `json:"staged"`
	Reservation string `json:"reservationUid,omitempty"`
}

type SweepResult struct {
	LoansPromoted    int `json:"loansPromoted"`
	FeesCreated      int `json:"feesCreated"`
	RemindersCreated int `json:"remindersCreated"`
}

type ListBooksFilter struct {
	Genre  string
	Search string
	Page   int
	Size   int
}

type Paging struct {
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
}

type ListBooks struct {
	Paging `json:",inline"`
	Items  []Book `json:"items"`
}
