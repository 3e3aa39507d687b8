package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
	"github.com/gil0mendes/Stellar/pkg/logger"
)

// Channel identifies an exception reporter.
type Channel string

// Builtin channels.
const (
	ChannelLog  Channel = "log"
	ChannelFunc Channel = "func"
)

// Event describes an exception raised while running the runtime.
type Event struct {
	Code         xerrors.Code
	Message      string
	Severity     xerrors.Severity
	Source       string
	Action       string
	ConnectionID string
	Metadata     map[string]string
	Err          error
	OccurredAt   time.Time
}

// NewEvent builds an event from err. Source names the component that caught
// it, e.g. "pipeline" or "tasks".
func NewEvent(source string, err error) Event {
	event := Event{
		Code:       xerrors.CodeOf(err),
		Severity:   xerrors.SeverityOf(err),
		Source:     source,
		Err:        err,
		OccurredAt: time.Now(),
	}
	if err != nil {
		event.Message = err.Error()
	}
	if e, ok := xerrors.From(err); ok {
		event.Message = e.Message()
		event.Metadata = e.Metadata()
	}
	return event
}

// Notifier delivers events to one channel.
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher broadcasts events to the registered notifiers.
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher delivers each event to every notifier.
type FanoutDispatcher struct {
	mu        sync.RWMutex
	notifiers map[Channel]Notifier
}

// NewFanout creates a dispatcher over the given notifiers.
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Add registers a notifier, replacing any notifier on the same channel.
func (d *FanoutDispatcher) Add(n Notifier) {
	if d == nil || n == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Channel()] = n
}

// Channels lists the registered channels.
func (d *FanoutDispatcher) Channels() []Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Channel, 0, len(d.notifiers))
	for c := range d.notifiers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Notify broadcasts the event to every registered channel.
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	notifiers := make([]Notifier, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		notifiers = append(notifiers, n)
	}
	d.mu.RUnlock()

	var errs []error
	for _, notifier := range notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LogNotifier writes events to the application logger.
type LogNotifier struct{}

// Channel returns the log channel.
func (LogNotifier) Channel() Channel { return ChannelLog }

// Notify logs the event at a level matching its severity.
func (LogNotifier) Notify(ctx context.Context, event Event) error {
	level := slog.LevelWarn
	switch event.Severity {
	case xerrors.SeverityCritical:
		level = slog.LevelError
	case xerrors.SeverityInfo:
		level = slog.LevelInfo
	}
	attrs := []any{
		slog.String("code", string(event.Code)),
		slog.String("source", event.Source),
	}
	if event.Action != "" {
		attrs = append(attrs, slog.String("action", event.Action))
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("connection", event.ConnectionID))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String(k, v))
	}
	logger.Named("exceptions").Log(ctx, level, event.Message, attrs...)
	return nil
}

// FuncNotifier adapts a function to Notifier. Satellites use it to plug in
// their own reporters.
type FuncNotifier struct {
	Name Channel
	Fn   func(ctx context.Context, event Event) error
}

// Channel returns the configured channel name.
func (n FuncNotifier) Channel() Channel {
	if n.Name == "" {
		return ChannelFunc
	}
	return n.Name
}

// Notify calls the wrapped function.
func (n FuncNotifier) Notify(ctx context.Context, event Event) error {
	if n.Fn == nil {
		return nil
	}
	return n.Fn(ctx, event)
}
