package calls

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("call not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("call_id already exists")
)

// Repository is the Call Record Store.
//
// Update targets a row by call_id alone: webhooks carry no user context.
// It reports ok=false, not an error, when no row matches.
type Repository interface {
	Create(ctx context.Context, in NewCall) (int64, error)
	Update(ctx context.Context, callID string, u Update) (id int64, ok bool, err error)
	Get(ctx context.Context, callID string, userID int64) (Call, error)
	ListByUser(ctx context.Context, userID int64, page, pageSize int) (Page, error)
}
