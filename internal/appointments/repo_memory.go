package appointments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-process Repository. The mutex makes CreateIfFree's
// check and insert a single step.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []Appointment
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{now: time.Now}
}

func (r *MemoryRepo) HasConflict(_ context.Context, userID int64, date time.Time, slot Slot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conflictLocked(userID, formatDate(date), slot), nil
}

func (r *MemoryRepo) conflictLocked(userID int64, day string, slot Slot) bool {
	for _, a := range r.rows {
		if a.UserID == userID && a.Date == day && a.Status == StatusScheduled && Overlaps(a.Slot(), slot) {
			return true
		}
	}
	return false
}

func (r *MemoryRepo) CreateIfFree(_ context.Context, in NewAppointment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := formatDate(in.Date)
	if r.conflictLocked(in.UserID, day, in.Slot) {
		return 0, ErrConflict
	}
	r.nextID++
	r.rows = append(r.rows, Appointment{
		ID:            r.nextID,
		UserID:        in.UserID,
		Date:          day,
		StartTime:     in.Slot.Start,
		EndTime:       in.Slot.End,
		AttendeeName:  in.AttendeeName,
		AttendeeEmail: in.AttendeeEmail,
		Title:         in.Title,
		Description:   in.Description,
		Notes:         in.Notes,
		Status:        StatusScheduled,
		CreatedAt:     r.now().UTC(),
	})
	return r.nextID, nil
}

func (r *MemoryRepo) ListByUser(_ context.Context, userID int64, from time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fromDay := formatDate(from)
	out := []Appointment{}
	for _, a := range r.rows {
		// YYYY-MM-DD compares correctly as a string
		if a.UserID == userID && a.Date >= fromDay {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *MemoryRepo) BookedSlots(ctx context.Context, userID int64, date time.Time) ([]Slot, error) {
	list, _ := r.ListByUser(ctx, userID, date)
	day := formatDate(date)
	out := []Slot{}
	for _, a := range list {
		if a.Date == day && a.Status == StatusScheduled {
			out = append(out, a.Slot())
		}
	}
	return out, nil
}

// Len reports the number of stored rows.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}
