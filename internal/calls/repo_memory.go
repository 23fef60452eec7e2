package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-process Repository for tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	byCall map[string]*Call
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byCall: map[string]*Call{}, now: time.Now}
}

func (r *MemoryRepo) Create(_ context.Context, in NewCall) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byCall[in.CallID]; ok {
		return 0, ErrAlreadyExists
	}
	r.nextID++
	c := &Call{
		ID:         r.nextID,
		CallID:     in.CallID,
		UserID:     in.UserID,
		Status:     in.Status,
		VoiceID:    optional(in.VoiceID),
		VoiceName:  optional(in.VoiceName),
		ToNumber:   optional(in.ToNumber),
		FromNumber: optional(in.FromNumber),
		CreatedAt:  r.now().UTC(),
	}
	r.byCall[in.CallID] = c
	return c.ID, nil
}

func (r *MemoryRepo) Update(_ context.Context, callID string, u Update) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byCall[callID]
	if !ok {
		return 0, false, nil
	}
	if u.Status != nil {
		c.Status = Advance(c.Status, *u.Status)
	}
	if u.Duration != nil {
		d := *u.Duration
		c.Duration = &d
	}
	if u.StartedAt != nil {
		t := u.StartedAt.UTC()
		c.StartedAt = &t
	}
	if u.EndedAt != nil {
		t := u.EndedAt.UTC()
		c.EndedAt = &t
	}
	if u.RecordingURL != nil {
		c.RecordingURL = copyString(u.RecordingURL)
	}
	if u.RecordingBlob != nil {
		c.RecordingBlob = copyString(u.RecordingBlob)
	}
	if u.TranscriptURL != nil {
		c.TranscriptURL = copyString(u.TranscriptURL)
	}
	if u.TranscriptBlob != nil {
		c.TranscriptBlob = copyString(u.TranscriptBlob)
	}
	if len(u.Transcript) > 0 {
		c.Transcript = append([]byte(nil), u.Transcript...)
	}
	return c.ID, true, nil
}

func (r *MemoryRepo) Get(_ context.Context, callID string, userID int64) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byCall[callID]
	if !ok || c.UserID != userID {
		return Call{}, ErrNotFound
	}
	return *c, nil
}

func (r *MemoryRepo) ListByUser(_ context.Context, userID int64, page, pageSize int) (Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var mine []Call
	out := Page{Calls: []Call{}}
	for _, c := range r.byCall {
		if c.UserID != userID {
			continue
		}
		mine = append(mine, *c)
		out.Total++
		if c.Status == StatusCompleted {
			out.Completed++
		}
	}
	out.NotCompleted = out.Total - out.Completed

	sort.Slice(mine, func(i, j int) bool {
		if mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].ID > mine[j].ID
		}
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})

	start := (page - 1) * pageSize
	if start < len(mine) {
		end := start + pageSize
		if end > len(mine) {
			end = len(mine)
		}
		out.Calls = append(out.Calls, mine[start:end]...)
	}
	return out, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func copyString(s *string) *string {
	v := *s
	return &v
}
