package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
	"github.com/gil0mendes/Stellar/pkg/logger"
)

// DefaultMaxRetries is the attempt budget of a task.
const DefaultMaxRetries = 3

// Service creates and queries tasks.
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService builds a Service. maxRetries <= 0 uses DefaultMaxRetries.
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Enqueue is a shorthand for Submit with a generated id.
func (s *Service) Enqueue(ctx context.Context, actionName string, params map[string]any) (*Task, error) {
	return s.Submit(ctx, Request{Action: actionName, Params: params})
}

// Submit stores a new task and publishes it. Submitting an id that already
// exists returns the stored task.
func (s *Service) Submit(ctx context.Context, req Request) (*Task, error) {
	if strings.TrimSpace(req.Action) == "" {
		return nil, xerrors.New(CodeTaskValidation, "task action is required")
	}

	taskID := strings.TrimSpace(req.ID)
	if taskID != "" {
		task, err := s.store.Get(ctx, taskID)
		if err == nil {
			return task, nil
		}
		if !stdErrors.Is(err, ErrTaskNotFound) {
			return nil, err
		}
	} else {
		taskID = uuid.NewString()
	}

	task := &Task{
		ID:         taskID,
		Action:     req.Action,
		Params:     cloneParams(req.Params),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, task); err != nil {
		if stdErrors.Is(err, ErrTaskConflict) {
			if existing, getErr := s.store.Get(ctx, taskID); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, taskID); err != nil {
		logger.Named("tasks").Error("publish task failed", slog.Any("error", err), slog.String("task_id", taskID))
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "")
		_ = s.store.MarkFailed(ctx, taskID, CodeTaskPublish, wrapped.Error())
		return nil, wrapped
	}
	logger.Audit().Info("task enqueued",
		slog.String("task_id", taskID),
		slog.String("action", task.Action),
		slog.Int("max_retries", task.MaxRetries),
	)
	return task, nil
}

// Get returns the task with id.
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.store.Get(ctx, id)
}

// List returns tasks matching opts.
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	return s.store.List(ctx, buildListOptions(opts))
}

// Close closes the producer.
func (s *Service) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted polls the task until it succeeds, fails for good or
// ctx is done.
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Status == StatusSucceeded || (task.Status == StatusFailed && !canRetry(task)) {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func canRetry(task *Task) bool {
	return task.Attempts < task.MaxRetries && IsRetryable(xerrors.Code(task.ErrorCode))
}
