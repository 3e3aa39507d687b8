package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strconv"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
	"github.com/gil0mendes/Stellar/internal/observability/alerting"
	"github.com/gil0mendes/Stellar/pkg/action"
	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/logger"
	"github.com/gil0mendes/Stellar/pkg/pipeline"
)

// Processor consumes task ids and runs each task through the action
// pipeline on an internal connection.
type Processor struct {
	api         *api.API
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
}

// ProcessorOption customises a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the logger used for debug output.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount sets the number of consuming goroutines.
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// NewProcessor builds a Processor.
func NewProcessor(a *api.API, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		api:         a,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("tasks"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start consumes the queue until ctx is done.
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(CodeTaskProcessing, "no task consumer configured")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) || stdErrors.Is(err, ErrTaskExhausted) {
			p.logger.Debug("skipping task", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("claim task failed", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, xerrors.CodeOf(err), err, "claim")
		return err
	}

	conn := action.NewInternalConnection()
	conn.Params = cloneParams(task.Params)
	if conn.Params == nil {
		conn.Params = map[string]any{}
	}
	conn.Params[pipeline.ParamAction] = task.Action

	proc := pipeline.Run(ctx, p.api, conn)
	if proc.Err != nil {
		return p.handleFailure(ctx, task, proc)
	}

	if err := p.store.MarkSucceeded(ctx, task.ID, proc.Response); err != nil {
		p.logger.Error("record task success failed", slog.Any("error", err), slog.String("task_id", task.ID))
		if storeErr := p.store.MarkFailed(ctx, task.ID, CodeTaskStorage, err.Error()); storeErr != nil {
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
			return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("requeue task %s", task.ID))
		}
		return nil
	}
	logger.Audit().Info("task succeeded",
		slog.String("task_id", task.ID),
		slog.String("action", task.Action),
		slog.Int("attempts", task.Attempts),
	)
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, task *Task, proc *pipeline.Processor) error {
	code := proc.Status
	if code == "" {
		code = xerrors.CodeOf(proc.Err)
	}
	retry := IsRetryable(code)
	terminal := task.Attempts >= task.MaxRetries || !retry

	if err := p.store.MarkFailed(ctx, task.ID, code, proc.Err.Error()); err != nil {
		p.logger.Error("record task failure failed", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	logger.Audit().Warn("task failed",
		slog.String("task_id", task.ID),
		slog.String("action", task.Action),
		slog.Bool("terminal", terminal),
		slog.String("error", proc.Err.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	stage := "retry"
	switch {
	case !retry:
		stage = "non_retryable"
	case terminal:
		stage = "terminal"
	}
	p.emitAlert(ctx, task, code, proc.Err, stage)

	if retry && !terminal {
		if err := p.producer.Publish(ctx, task.ID); err != nil {
			return xerrors.Wrap(CodeTaskPublish, err, fmt.Sprintf("requeue task %s", task.ID))
		}
		p.logger.Debug("task requeued", slog.String("task_id", task.ID), slog.Int("attempts", task.Attempts))
	}
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	event := alerting.NewEvent("tasks", cause)
	event.Code = code
	event.Action = task.Action
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}
	event.Metadata["task_id"] = task.ID
	event.Metadata["stage"] = stage
	event.Metadata["attempts"] = strconv.Itoa(task.Attempts)
	event.Metadata["max_retries"] = strconv.Itoa(task.MaxRetries)
	p.api.ReportException(context.WithoutCancel(ctx), event)
}
