package satellites

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/satellite"
)

// PidFile is the file holding the process id of a running node. The engine
// removes it when the node stops.
type PidFile struct {
	Path string
}

// Remove deletes the file. A missing file is not an error.
func (p *PidFile) Remove() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Pid writes the pid file before anything else starts.
type Pid struct{}

func (*Pid) Name() string { return "pid" }

func (*Pid) Priorities() satellite.Priorities {
	return satellite.Priorities{Start: 10}
}

func (*Pid) Start(_ context.Context, a *api.API) error {
	dir := a.Config().General.Paths.Pid
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	file := &PidFile{Path: filepath.Join(dir, "stellar-"+a.ID+".pid")}
	if err := os.WriteFile(file.Path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	a.Set(ResourcePid, file)
	return nil
}
