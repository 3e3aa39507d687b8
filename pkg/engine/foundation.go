package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gil0mendes/Stellar/internal/config"
	xerrors "github.com/gil0mendes/Stellar/internal/errors"
	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/logger"
)

// utilsSatellite prepares process-wide helpers before configuration exists.
type utilsSatellite struct{}

func (utilsSatellite) Name() string { return "utils" }

func (utilsSatellite) Load(_ context.Context, a *api.API) error {
	// Until the config satellite runs, log to stderr at info.
	if err := logger.Init(logger.Config{Level: "info", OutputPaths: []string{"stderr"}}); err != nil {
		return err
	}
	a.Set("hostname", hostname())
	return nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return name
}

// configSatellite loads the configuration tree and applies it.
type configSatellite struct {
	path string
}

func (configSatellite) Name() string { return "config" }

func (c configSatellite) Load(_ context.Context, a *api.API) error {
	cfg, err := config.Load(c.path)
	if err != nil {
		return err
	}
	a.SetConfig(cfg)

	if err := logger.Init(logger.Config{
		Level:       cfg.Logger.Level,
		Format:      cfg.Logger.Format,
		OutputPaths: cfg.Logger.Outputs,
		Rotation: logger.RotationConfig{
			MaxSizeMB:  cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAgeDays: cfg.Logger.MaxAgeDays,
		},
		Audit: logger.AuditConfig{Enabled: cfg.Logger.AuditPath != "", Path: cfg.Logger.AuditPath},
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// viper lowercases map keys.
	for code, message := range cfg.Errors {
		xerrors.Override(xerrors.Code(strings.ToUpper(code)), message)
	}
	return nil
}
