package appointments

import (
	"context"
	"time"
)

// Repository is the Appointment Store.
//
// CreateIfFree is the only write path. It must check for an overlapping
// scheduled row and insert atomically, returning ErrConflict instead of
// inserting when the slot is taken.
type Repository interface {
	HasConflict(ctx context.Context, userID int64, date time.Time, slot Slot) (bool, error)
	CreateIfFree(ctx context.Context, in NewAppointment) (int64, error)
	ListByUser(ctx context.Context, userID int64, from time.Time) ([]Appointment, error)
	BookedSlots(ctx context.Context, userID int64, date time.Time) ([]Slot, error)
}
