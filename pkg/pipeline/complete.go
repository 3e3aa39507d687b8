package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/logger"
)

// FilteredValue replaces redacted parameters in the completion log line.
const FilteredValue = "[FILTERED]"

// complete finishes the invocation. Only the first call has any effect.
func (p *Processor) complete(ctx context.Context, status xerrors.Code, err error) {
	if !p.rendered.CompareAndSwap(false, true) {
		return
	}
	p.state.Store(StateCompleted)
	p.Status = status
	if status != "" && status != xerrors.CodeOther {
		err = p.statusError(status, err)
	}
	p.Err = err

	if err != nil {
		p.attachError(err)
	} else if p.Response == nil {
		p.Response = map[string]any{}
	}

	p.conn.EndAction()
	p.Duration = time.Since(p.Started)

	if p.callback != nil {
		p.callback(p)
	}
	p.working.Store(false)
	p.logCompletion(ctx)
	p.finishSpan()
	p.api.NotifyCompletion(api.Completion{
		Action:         p.ActionName,
		Version:        p.Version,
		ConnectionType: p.conn.Type,
		Status:         string(p.statusTag()),
		Err:            err,
		Duration:       p.Duration,
	})
	if p.cancel != nil {
		p.cancel()
	}
	close(p.done)
}

func (p *Processor) statusError(status xerrors.Code, cause error) error {
	switch status {
	case xerrors.CodeUnsupportedServerType:
		return xerrors.New(status, xerrors.Render(status, p.conn.Type))
	case xerrors.CodeValidatorErrors:
		return xerrors.NewValidationError(p.ValidatorErrors)
	case xerrors.CodeResponseTimeout:
		return xerrors.New(status, xerrors.Render(status, p.ActionName))
	default:
		if cause != nil {
			return xerrors.Wrap(status, cause, "")
		}
		return xerrors.New(status, "")
	}
}

// attachError decorates the response with err. An existing "error" field
// is kept; string and slice responses are replaced by the error text.
func (p *Processor) attachError(err error) {
	switch r := p.Response.(type) {
	case map[string]any:
		if _, exists := r["error"]; !exists {
			r["error"] = renderError(err)
		}
	case string, []any, []string:
		p.Response = errorText(err)
	default:
		p.Response = map[string]any{"error": renderError(err)}
	}
}

// renderError returns the value placed in response["error"]: the field map
// for validation failures, the message otherwise.
func renderError(err error) any {
	var verr *xerrors.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return errorText(err)
}

func errorText(err error) string {
	if e, ok := xerrors.From(err); ok {
		return e.Message()
	}
	return err.Error()
}

// statusTag is the tag reported to observers; bare errors report OTHER.
func (p *Processor) statusTag() xerrors.Code {
	if p.Status != "" {
		return p.Status
	}
	if p.Err != nil {
		return xerrors.CodeOf(p.Err)
	}
	return ""
}

func (p *Processor) logCompletion(ctx context.Context) {
	levelName := "info"
	if p.Definition != nil && p.Definition.LogLevel != "" {
		levelName = p.Definition.LogLevel
	}
	level := logger.ParseLevel(levelName)
	if level == logger.LevelNone {
		return
	}

	cfg := p.api.Config()
	attrs := []any{
		slog.String("to", p.conn.RemoteIP),
		slog.String("action", p.ActionName),
		slog.Any("params", filterParams(p.Params, cfg.General.FilteredParams, cfg.Logger.MaxLogStringLength)),
		slog.Float64("duration_ms", float64(p.Duration.Microseconds())/1000),
	}
	if p.Err != nil {
		attrs = append(attrs, slog.String("error", p.Err.Error()))
	}
	logger.Named("pipeline").Log(context.WithoutCancel(ctx), level, "[ action @ "+p.conn.Type+" ]", attrs...)
}

// filterParams redacts the filtered keys and truncates long strings.
func filterParams(params map[string]any, filtered []string, maxLen int) map[string]any {
	redact := make(map[string]bool, len(filtered))
	for _, k := range filtered {
		redact[k] = true
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch {
		case redact[k]:
			out[k] = FilteredValue
		case maxLen > 0:
			if s, ok := v.(string); ok && len(s) > maxLen {
				out[k] = s[:maxLen] + "..."
				continue
			}
			out[k] = v
		default:
			out[k] = v
		}
	}
	return out
}

func (p *Processor) finishSpan() {
	if p.span == nil {
		return
	}
	p.span.SetAttributes(attribute.Int64("stellar.duration_ms", p.Duration.Milliseconds()))
	if p.Err != nil {
		p.span.RecordError(p.Err)
		p.span.SetStatus(codes.Error, string(p.statusTag()))
	} else {
		p.span.SetStatus(codes.Ok, "")
	}
	p.span.End()
}
