package task

import (
	stdErrors "errors"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Task is an action invocation queued for background execution.
type Task struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Params     map[string]any `json:"params,omitempty"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     any            `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Request describes a task to enqueue. An empty ID gets a generated one.
type Request struct {
	ID     string
	Action string
	Params map[string]any
}

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskExhausted  xerrors.Code = "TASK_RETRIES_EXHAUSTED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
	CodeTaskStorage    xerrors.Code = "TASK_STORAGE_FAILED"
)

var (
	// ErrTaskNotFound reports an unknown task id.
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrTaskConflict reports a task that cannot move to the requested state.
	ErrTaskConflict = xerrors.New(CodeTaskConflict, "task conflict")
	// ErrTaskCompleted reports a task that already succeeded.
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "task already completed")
	// ErrTaskExhausted reports a task without retries left.
	ErrTaskExhausted = xerrors.New(CodeTaskExhausted, "task retries exhausted")
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "task not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskConflict, xerrors.Attributes{
		Message:  "task conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeTaskCompleted, xerrors.Attributes{
		Message:  "task already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskExhausted, xerrors.Attributes{
		Message:  "task retries exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:  "task validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskPublish, xerrors.Attributes{
		Message:  "failed to publish task",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeTaskProcessing, xerrors.Attributes{
		Message:  "task execution failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeTaskStorage, xerrors.Attributes{
		Message:  "task storage failure",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// retryable lists the pipeline outcomes worth another attempt.
var retryable = map[xerrors.Code]bool{
	xerrors.CodeServerError:        true,
	xerrors.CodeResponseTimeout:    true,
	xerrors.CodeTooManyRequests:    true,
	xerrors.CodeServerShuttingDown: true,
	CodeTaskProcessing:             true,
}

// IsRetryable reports whether a task failing with code may run again.
func IsRetryable(code xerrors.Code) bool {
	return retryable[code]
}

// IsTaskError reports whether err carries the task code target.
func IsTaskError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	return stdErrors.Is(err, xerrors.New(target, ""))
}

// IsValidStatus reports whether status is a known value.
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	cloned := make(map[string]any, len(params))
	for key, value := range params {
		cloned[key] = value
	}
	return cloned
}

func cloneTask(task *Task) *Task {
	clone := *task
	clone.Params = cloneParams(task.Params)
	return &clone
}
