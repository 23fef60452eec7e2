package calls

import (
	"encoding/json"
	"time"
)

// Call is one outbound call's lifecycle row in call_history.
//
// CallID is assigned at initiation and is the correlation key for every
// webhook and post-call update. UserID is set once and never changes.
type Call struct {
	ID     int64  `json:"id"`
	CallID string `json:"call_id"`
	UserID int64  `json:"user_id"`

	Status Status `json:"status"`

	// Duration is seconds, set when the room finishes.
	Duration *float64 `json:"duration"`

	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`

	RecordingURL   *string `json:"recording_url"`
	RecordingBlob  *string `json:"recording_blob"`
	TranscriptURL  *string `json:"transcript_url"`
	TranscriptBlob *string `json:"transcript_blob"`

	Transcript json.RawMessage `json:"transcript"`

	VoiceID    *string `json:"voice_id"`
	VoiceName  *string `json:"voice_name"`
	FromNumber *string `json:"from_number"`
	ToNumber   *string `json:"to_number"`

	CreatedAt time.Time `json:"created_at"`
}

// NewCall is the creation payload. Descriptive fields are optional.
type NewCall struct {
	UserID     int64
	CallID     string
	Status     Status
	VoiceID    string
	VoiceName  string
	ToNumber   string
	FromNumber string
}

// Update is the closed set of fields a caller may change after creation.
// Nil fields are left untouched.
type Update struct {
	Status    *Status
	Duration  *float64
	StartedAt *time.Time
	EndedAt   *time.Time

	RecordingURL   *string
	RecordingBlob  *string
	TranscriptURL  *string
	TranscriptBlob *string

	Transcript json.RawMessage
}

func (u Update) IsEmpty() bool {
	return u.Status == nil &&
		u.Duration == nil &&
		u.StartedAt == nil &&
		u.EndedAt == nil &&
		u.RecordingURL == nil &&
		u.RecordingBlob == nil &&
		u.TranscriptURL == nil &&
		u.TranscriptBlob == nil &&
		len(u.Transcript) == 0
}

// Page is one page of a user's history plus whole-history counts.
type Page struct {
	Calls        []Call `json:"calls"`
	Total        int    `json:"total"`
	Completed    int    `json:"completed_calls"`
	NotCompleted int    `json:"not_completed_calls"`
}
