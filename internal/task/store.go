package task

import (
	"context"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
)

// Store persists task state.
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Claim(ctx context.Context, id string) (*Task, error)
	MarkSucceeded(ctx context.Context, id string, result any) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string) error
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
}
