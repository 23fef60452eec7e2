package appointments

import (
	"errors"
	"fmt"
	"time"
)

const (
	StatusScheduled = "scheduled"
	dateLayout      = "2006-01-02"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("time slot already booked")
)

// Appointment is one scheduled meeting owned by UserID.
type Appointment struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Date          string    `json:"appointment_date"`
	StartTime     TimeOfDay `json:"start_time"`
	EndTime       TimeOfDay `json:"end_time"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Notes         string    `json:"notes"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func (a Appointment) Slot() Slot { return Slot{Start: a.StartTime, End: a.EndTime} }

// NewAppointment is the insert payload; Date is a calendar day in UTC.
type NewAppointment struct {
	UserID        int64
	Date          time.Time
	Slot          Slot
	AttendeeName  string
	AttendeeEmail string
	Title         string
	Description   string
	Notes         string
}

// TimeOfDay is minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay accepts HH:MM or HH:MM:SS. Seconds are truncated.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay(t.Hour()*60 + t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidArgument, s)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// sqlTime renders the value for a Postgres TIME parameter.
func (t TimeOfDay) sqlTime() string { return t.String() + ":00" }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Slot is the half-open interval [Start, End) on one day.
type Slot struct {
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

func (s Slot) Valid() bool { return s.Start >= 0 && s.End <= 24*60 && s.Start < s.End }

// Overlaps reports whether two half-open intervals share any instant.
// Back-to-back slots (a.End == b.Start) do not overlap.
func Overlaps(a, b Slot) bool {
	return a.Start < b.End && b.Start < a.End
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidArgument, s)
	}
	return d, nil
}

func formatDate(d time.Time) string { return d.Format(dateLayout) }
