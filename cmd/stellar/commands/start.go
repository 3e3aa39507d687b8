package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gil0mendes/Stellar/internal/satellites"
	"github.com/gil0mendes/Stellar/pkg/engine"
	"github.com/gil0mendes/Stellar/pkg/logger"
	"github.com/gil0mendes/Stellar/pkg/satellite"
)

var shutdownTimeout time.Duration

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a Stellar node",
	Long: `Start a Stellar node in the foreground. The node runs until it receives
SIGINT or SIGTERM, then stops every satellite.

Examples:
  # Start with the default config
  stellar start

  # Start with a custom config and environment overrides
  STELLAR_WEB_ADDRESS=:9000 stellar start --config /etc/stellar/stellar.yaml`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for satellites to stop")
}

func runStart(cmd *cobra.Command, _ []string) error {
	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := engine.New(
		engine.WithConfigPath(configPath()),
		engine.WithDiscoverer(satellite.NewDiscovery(satellites.Builtins())),
	)
	return runNode(cmd.Context(), sigCtx, e, shutdownTimeout)
}

type node interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// runNode starts n with ctx and stops it once signals is done. Satellites
// keep ctx for their lifetime, so it must outlive the signal.
func runNode(ctx, signals context.Context, n node, timeout time.Duration) error {
	if err := n.Start(ctx); err != nil {
		return err
	}

	<-signals.Done()
	logger.Named("cli").Info("shutdown signal received", slog.Any("cause", context.Cause(signals)))

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return n.Stop(stopCtx)
}
