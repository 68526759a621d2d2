package errs

import (
	"errors"
)

// Precondition sentinels: the caller supplied a copy in the wrong state.
// Each one is distinguishable so the request layer can render an accurate
// message; none of them is retried automatically.
var (
	ErrNotAvailable        = errors.New("copy is not available")
	ErrNotReserved         = errors.New("copy is not reserved")
	ErrNotReadyForPickup   = errors.New("copy is not ready for pickup")
	ErrNoActiveReservation = errors.New("no active reservation for copy")
	ErrNoActiveLoan        = errors.New("no active loan for copy")
	ErrCopyNotAvailable    = errors.New("only available copies may be deleted")

	ErrNotFound = errors.New("not found")
	// ErrConflict surfaces after bounded retries on row-lock contention.
	ErrConflict = errors.New("copy is being modified concurrently")
)
