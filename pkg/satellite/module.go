package satellite

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the descriptor at the root of every feature module.
const ManifestFile = "module.yaml"

// Manifest describes a feature module.
type Manifest struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
}

// IsEnabled reports whether the module should be loaded. Modules are
// enabled unless the manifest says otherwise.
func (m Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ReadManifest reads dir/module.yaml. A missing manifest yields a manifest
// named after the directory.
func ReadManifest(dir string) (Manifest, error) {
	m := Manifest{Name: filepath.Base(dir)}
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("read module manifest: %w", err)
	}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("unmarshal module manifest %s: %w", dir, err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(dir)
	}
	return m, nil
}
