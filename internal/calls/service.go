package calls

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Service validates input in front of a Repository.
type Service struct {
	repo Repository
	log  *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log}
}

func (s *Service) Create(ctx context.Context, in NewCall) (int64, error) {
	in.CallID = strings.TrimSpace(in.CallID)
	if in.CallID == "" || in.UserID <= 0 {
		return 0, fmt.Errorf("%w: user_id and call_id are required", ErrInvalidArgument)
	}
	if in.Status == "" {
		in.Status = StatusQueued
	}
	if !in.Status.Valid() {
		return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, in.Status)
	}

	id, err := s.repo.Create(ctx, in)
	if err != nil {
		return 0, err
	}
	s.log.Info("call record created", "call_id", in.CallID, "user_id", in.UserID, "id", id)
	return id, nil
}

// Update applies u to the record with callID. ok is false when no record
// matched; that is not an error.
func (s *Service) Update(ctx context.Context, callID string, u Update) (int64, bool, error) {
	if strings.TrimSpace(callID) == "" {
		return 0, false, fmt.Errorf("%w: call_id is required", ErrInvalidArgument)
	}
	if u.IsEmpty() {
		return 0, false, fmt.Errorf("%w: empty update", ErrInvalidArgument)
	}
	if u.Status != nil && !u.Status.Valid() {
		return 0, false, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, *u.Status)
	}
	if len(u.Transcript) > 0 && !json.Valid(u.Transcript) {
		return 0, false, fmt.Errorf("%w: transcript is not valid json", ErrInvalidArgument)
	}

	id, ok, err := s.repo.Update(ctx, callID, u)
	if err != nil {
		s.log.Error("call record update failed", "call_id", callID, "err", err)
		return 0, false, err
	}
	if !ok {
		s.log.Warn("call record update matched no row", "call_id", callID)
	}
	return id, ok, nil
}

func (s *Service) Get(ctx context.Context, callID string, userID int64) (Call, error) {
	if strings.TrimSpace(callID) == "" || userID <= 0 {
		return Call{}, fmt.Errorf("%w: call_id and user_id are required", ErrInvalidArgument)
	}
	return s.repo.Get(ctx, callID, userID)
}

// List returns one page of the user's calls, newest first. page starts at 1.
func (s *Service) List(ctx context.Context, userID int64, page, pageSize int) (Page, error) {
	if userID <= 0 {
		return Page{}, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	if page < 1 {
		return Page{}, fmt.Errorf("%w: page must be >= 1", ErrInvalidArgument)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return Page{}, fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidArgument, MaxPageSize)
	}
	return s.repo.ListByUser(ctx, userID, page, pageSize)
}
