package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Pipeline status tags. Each one maps to a message template in the registry.
const (
	CodeServerError           Code = "SERVER_ERROR"
	CodeServerShuttingDown    Code = "SERVER_SHUTTING_DOWN"
	CodeTooManyRequests       Code = "TOO_MANY_REQUESTS"
	CodeUnknownAction         Code = "UNKNOWN_ACTION"
	CodeUnsupportedServerType Code = "UNSUPPORTED_SERVER_TYPE"
	CodeValidatorErrors       Code = "VALIDATOR_ERRORS"
	CodeResponseTimeout       Code = "RESPONSE_TIMEOUT"
	CodeOther                 Code = "OTHER"

	CodePrivateAction Code = "PRIVATE_ACTION"
	CodeInvalidState  Code = "INVALID_STATE"
	CodeFatal         Code = "FATAL"
)

func init() {
	Register(CodeServerError, Attributes{
		Message:  "the server experienced an internal error",
		Severity: SeverityCritical,
		Alert:    true,
	})
	Register(CodeServerShuttingDown, Attributes{
		Message:  "the server is shutting down",
		Severity: SeverityInfo,
	})
	Register(CodeTooManyRequests, Attributes{
		Message:  "you have too many pending requests",
		Severity: SeverityWarning,
	})
	Register(CodeUnknownAction, Attributes{
		Message:  "unknown action or invalid apiVersion",
		Severity: SeverityInfo,
	})
	Register(CodeUnsupportedServerType, Attributes{
		Message:  "this action does not support the %s connection type",
		Severity: SeverityInfo,
	})
	Register(CodeValidatorErrors, Attributes{
		Message:  "invalid parameters: %s",
		Severity: SeverityInfo,
	})
	Register(CodeResponseTimeout, Attributes{
		Message:  "response timeout for action '%s'",
		Severity: SeverityWarning,
		Alert:    true,
	})
	Register(CodeOther, Attributes{
		Message:  "%v",
		Severity: SeverityWarning,
	})
	Register(CodePrivateAction, Attributes{
		Message:  "this action is private and can only be called internally",
		Severity: SeverityInfo,
	})
	Register(CodeInvalidState, Attributes{
		Message:  "operation not allowed while the engine is %s",
		Severity: SeverityWarning,
	})
	Register(CodeFatal, Attributes{
		Message:  "fatal error during %s",
		Severity: SeverityCritical,
		Alert:    true,
	})
}

// Render formats the message template registered for code. Templates without
// verbs are returned unchanged regardless of args.
func Render(code Code, args ...any) string {
	tpl := AttributesOf(code).Message
	if len(args) == 0 || !strings.Contains(tpl, "%") {
		return tpl
	}
	return fmt.Sprintf(tpl, args...)
}

// ValidationError carries per-field messages produced by input validation.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError wraps a field mapping in a VALIDATOR_ERRORS *Error.
func NewValidationError(fields map[string]string) *Error {
	verr := &ValidationError{Fields: fields}
	return Wrap(CodeValidatorErrors, verr, Render(CodeValidatorErrors, strings.Join(verr.keys(), ", ")))
}

func (v *ValidationError) keys() []string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Error implements error with a deterministic field order.
func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, k := range v.keys() {
		parts = append(parts, fmt.Sprintf("%s: %s", k, v.Fields[k]))
	}
	return strings.Join(parts, "; ")
}
