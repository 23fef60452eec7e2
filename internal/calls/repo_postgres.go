package calls

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"calling-assistant/pkg/utils"
)

//go:embed schema.sql
var Schema string

const callColumns = `id, call_id, user_id, status, duration, started_at, ended_at,
       recording_url, recording_blob, transcript_url, transcript_blob, transcript,
       voice_id, voice_name, from_number, to_number, created_at`

// PostgresRepo stores call_history rows through database/sql (pgx driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, in NewCall) (int64, error) {
	const q = `
INSERT INTO call_history (user_id, call_id, status, voice_id, voice_name, to_number, from_number)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		in.UserID,
		in.CallID,
		string(in.Status),
		nullString(in.VoiceID),
		nullString(in.VoiceName),
		nullString(in.ToNumber),
		nullString(in.FromNumber),
	).Scan(&id)
	if err != nil {
		if utils.SQLState(err) == utils.SQLStateUniqueViolation {
			return 0, ErrAlreadyExists
		}
		return 0, fmt.Errorf("insert call: %w", err)
	}
	return id, nil
}

// Update applies only the non-nil fields of u in a single statement. The
// status assignment is guarded by the lifecycle rank so that a stale event
// cannot move a record backward; the other fields still apply.
func (r *PostgresRepo) Update(ctx context.Context, callID string, u Update) (int64, bool, error) {
	q, args := buildUpdate(callID, u)

	var id int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("update call %s: %w", callID, err)
	}
	return id, true, nil
}

func buildUpdate(callID string, u Update) (string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Status != nil {
		args = append(args, string(*u.Status), u.Status.Rank())
		sets = append(sets, fmt.Sprintf(
			"status = CASE WHEN %s <= $%d THEN $%d ELSE status END",
			statusRankSQL("status"), len(args), len(args)-1,
		))
	}
	if u.Duration != nil {
		set("duration", *u.Duration)
	}
	if u.StartedAt != nil {
		set("started_at", u.StartedAt.UTC())
	}
	if u.EndedAt != nil {
		set("ended_at", u.EndedAt.UTC())
	}
	if u.RecordingURL != nil {
		set("recording_url", *u.RecordingURL)
	}
	if u.RecordingBlob != nil {
		set("recording_blob", *u.RecordingBlob)
	}
	if u.TranscriptURL != nil {
		set("transcript_url", *u.TranscriptURL)
	}
	if u.TranscriptBlob != nil {
		set("transcript_blob", *u.TranscriptBlob)
	}
	if len(u.Transcript) > 0 {
		args = append(args, string(u.Transcript))
		sets = append(sets, fmt.Sprintf("transcript = $%d::jsonb", len(args)))
	}

	args = append(args, callID)
	q := fmt.Sprintf(
		"UPDATE call_history SET %s WHERE call_id = $%d RETURNING id",
		strings.Join(sets, ", "), len(args),
	)
	return q, args
}

func (r *PostgresRepo) Get(ctx context.Context, callID string, userID int64) (Call, error) {
	q := `SELECT ` + callColumns + `
FROM call_history
WHERE call_id = $1 AND user_id = $2
`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, callID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, fmt.Errorf("get call %s: %w", callID, err)
	}
	return c, nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID int64, page, pageSize int) (Page, error) {
	const countQ = `
SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
FROM call_history
WHERE user_id = $1
`
	var out Page
	if err := r.db.QueryRowContext(ctx, countQ, userID).Scan(&out.Total, &out.Completed); err != nil {
		return Page{}, fmt.Errorf("count calls: %w", err)
	}
	out.NotCompleted = out.Total - out.Completed

	q := `SELECT ` + callColumns + `
FROM call_history
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`
	rows, err := r.db.QueryContext(ctx, q, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	out.Calls = []Call{}
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan call: %w", err)
		}
		out.Calls = append(out.Calls, c)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("list calls: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c          Call
		status     string
		duration   sql.NullFloat64
		startedAt  sql.NullTime
		endedAt    sql.NullTime
		recURL     sql.NullString
		recBlob    sql.NullString
		trURL      sql.NullString
		trBlob     sql.NullString
		transcript []byte
		voiceID    sql.NullString
		voiceName  sql.NullString
		fromNumber sql.NullString
		toNumber   sql.NullString
	)
	if err := row.Scan(
		&c.ID,
		&c.CallID,
		&c.UserID,
		&status,
		&duration,
		&startedAt,
		&endedAt,
		&recURL,
		&recBlob,
		&trURL,
		&trBlob,
		&transcript,
		&voiceID,
		&voiceName,
		&fromNumber,
		&toNumber,
		&c.CreatedAt,
	); err != nil {
		return Call{}, err
	}

	c.Status = Status(status)
	if duration.Valid {
		d := duration.Float64
		c.Duration = &d
	}
	c.StartedAt = timePtr(startedAt)
	c.EndedAt = timePtr(endedAt)
	c.RecordingURL = stringPtr(recURL)
	c.RecordingBlob = stringPtr(recBlob)
	c.TranscriptURL = stringPtr(trURL)
	c.TranscriptBlob = stringPtr(trBlob)
	if len(transcript) > 0 {
		c.Transcript = append([]byte(nil), transcript...)
	}
	c.VoiceID = stringPtr(voiceID)
	c.VoiceName = stringPtr(voiceName)
	c.FromNumber = stringPtr(fromNumber)
	c.ToNumber = stringPtr(toNumber)
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
