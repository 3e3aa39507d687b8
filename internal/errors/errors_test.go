package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderFillsTemplate(t *testing.T) {
	assert.Equal(t, "response timeout for action 'echo'", Render(CodeResponseTimeout, "echo"))
	assert.Equal(t, "the server is shutting down", Render(CodeServerShuttingDown, "ignored"))
}

func TestUnknownCodeFallsBackToServerError(t *testing.T) {
	attr := AttributesOf(Code("NOPE"))
	assert.Equal(t, AttributesOf(CodeServerError), attr)
}

func TestErrorMatchesByCode(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := fmt.Errorf("outer: %w", Wrap(CodeServerError, cause, ""))

	assert.True(t, stdErrors.Is(wrapped, New(CodeServerError, "")))
	assert.False(t, stdErrors.Is(wrapped, New(CodeOther, "")))
	assert.True(t, stdErrors.Is(wrapped, cause))
	assert.Equal(t, CodeServerError, CodeOf(wrapped))
	assert.Equal(t, CodeOther, CodeOf(cause))
}

func TestValidationErrorCarriesFields(t *testing.T) {
	err := NewValidationError(map[string]string{"b": "bad", "a": "missing"})

	var verr *ValidationError
	require.True(t, stdErrors.As(err, &verr))
	assert.Equal(t, "a: missing; b: bad", verr.Error())
	assert.Equal(t, "invalid parameters: a, b", err.Message())
	assert.Equal(t, CodeValidatorErrors, err.Code())
}

func TestOverrideReplacesMessage(t *testing.T) {
	code := Code("TEST_OVERRIDE")
	Register(code, Attributes{Message: "before", Severity: SeverityCritical})
	Override(code, "after %s")

	assert.Equal(t, "after x", Render(code, "x"))
	assert.Equal(t, SeverityCritical, AttributesOf(code).Severity)
}
