package engine

import (
	"context"
	"os"

	"github.com/gil0mendes/Stellar/internal/observability/alerting"
)

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o644)
}

func alertingFunc(fn func(stage string)) alerting.Notifier {
	return alerting.FuncNotifier{Name: "test", Fn: func(_ context.Context, e alerting.Event) error {
		fn(e.Metadata["stage"])
		return nil
	}}
}
