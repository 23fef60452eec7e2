package appointments

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"calling-assistant/pkg/utils"
)

//go:embed schema.sql
var Schema string

// conflictQuery matches any scheduled row overlapping [$3, $4). The three
// arms cover a row containing the start, a row containing the end, and a
// row inside the candidate; together they equal start < $4 AND end > $3.
const conflictQuery = `
SELECT EXISTS (
  SELECT 1
  FROM appointments
  WHERE user_id = $1
    AND appointment_date = $2::date
    AND status = 'scheduled'
    AND (
         (start_time <= $3::time AND end_time >  $3::time)
      OR (start_time <  $4::time AND end_time >= $4::time)
      OR (start_time >= $3::time AND end_time <= $4::time)
    )
)
`

const appointmentColumns = `id, user_id, to_char(appointment_date, 'YYYY-MM-DD'),
       to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
       COALESCE(attendee_name, ''), attendee_email, title,
       COALESCE(description, ''), COALESCE(notes, ''), status, created_at`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepo stores appointments through database/sql (pgx driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) HasConflict(ctx context.Context, userID int64, date time.Time, slot Slot) (bool, error) {
	return hasConflict(ctx, r.db, userID, date, slot)
}

func hasConflict(ctx context.Context, q queryRower, userID int64, date time.Time, slot Slot) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, conflictQuery,
		userID, formatDate(date), slot.Start.sqlTime(), slot.End.sqlTime(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("conflict check: %w", err)
	}
	return exists, nil
}

// CreateIfFree serializes bookings per user and day with a transaction-scoped
// advisory lock, re-checks for overlap and inserts. The exclusion constraint
// in schema.sql backs this up if a writer bypasses the lock.
func (r *PostgresRepo) CreateIfFree(ctx context.Context, in NewAppointment) (int64, error) {
	var id int64
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey(in.UserID, in.Date)); err != nil {
			return fmt.Errorf("booking lock: %w", err)
		}

		taken, err := hasConflict(ctx, tx, in.UserID, in.Date, in.Slot)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}

		const q = `
INSERT INTO appointments (
  user_id, appointment_date, start_time, end_time,
  attendee_name, attendee_email, title, description, notes, status
) VALUES (
  $1, $2::date, $3::time, $4::time, $5, $6, $7, $8, $9, 'scheduled'
)
RETURNING id
`
		return tx.QueryRowContext(ctx, q,
			in.UserID,
			formatDate(in.Date),
			in.Slot.Start.sqlTime(),
			in.Slot.End.sqlTime(),
			in.AttendeeName,
			in.AttendeeEmail,
			in.Title,
			in.Description,
			in.Notes,
		).Scan(&id)
	})
	if err != nil {
		if utils.SQLState(err) == utils.SQLStateExclusionViolation {
			return 0, ErrConflict
		}
		return 0, err
	}
	return id, nil
}

func lockKey(userID int64, date time.Time) string {
	return fmt.Sprintf("appointments:%d:%s", userID, formatDate(date))
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID int64, from time.Time) ([]Appointment, error) {
	q := `SELECT ` + appointmentColumns + `
FROM appointments
WHERE user_id = $1 AND appointment_date >= $2::date
ORDER BY appointment_date, start_time
`
	rows, err := r.db.QueryContext(ctx, q, userID, formatDate(from))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	out := []Appointment{}
	for rows.Next() {
		var (
			a          Appointment
			start, end string
		)
		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.Date,
			&start,
			&end,
			&a.AttendeeName,
			&a.AttendeeEmail,
			&a.Title,
			&a.Description,
			&a.Notes,
			&a.Status,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		if a.StartTime, err = ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if a.EndTime, err = ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) BookedSlots(ctx context.Context, userID int64, date time.Time) ([]Slot, error) {
	const q = `
SELECT to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
FROM appointments
WHERE user_id = $1 AND appointment_date = $2::date AND status = 'scheduled'
ORDER BY start_time
`
	rows, err := r.db.QueryContext(ctx, q, userID, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("booked slots: %w", err)
	}
	defer rows.Close()

	out := []Slot{}
	for rows.Next() {
		var start, end string
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		s, err := ParseTimeOfDay(start)
		if err != nil {
			return nil, err
		}
		e, err := ParseTimeOfDay(end)
		if err != nil {
			return nil, err
		}
		out = append(out, Slot{Start: s, End: e})
	}
	return out, rows.Err()
}
