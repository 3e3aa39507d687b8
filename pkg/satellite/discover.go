package satellite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/logger"
)

// PluginExt is the extension of satellite plugins inside a module.
const PluginExt = ".so"

// Discovery finds the satellites of one boot pass: the builtin factories,
// then the plugins of every enabled feature module.
type Discovery struct {
	builtins []Factory
	loader   PluginLoader
}

// DiscoveryOption customises a Discovery.
type DiscoveryOption func(*Discovery)

// WithPluginLoader replaces the Go plugin loader.
func WithPluginLoader(l PluginLoader) DiscoveryOption {
	return func(d *Discovery) {
		if l != nil {
			d.loader = l
		}
	}
}

// NewDiscovery builds a discovery over the given builtin satellites.
func NewDiscovery(builtins []Factory, opts ...DiscoveryOption) *Discovery {
	d := &Discovery{builtins: builtins, loader: GoPluginLoader{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover instantiates every satellite. Builtins come first, ordered by
// name, then module satellites in module order and file name order. A
// later satellite with an existing name replaces the earlier one.
func (d *Discovery) Discover(ctx context.Context, a *api.API) ([]Satellite, error) {
	log := logger.Named("discovery")
	set := newOrderedSet()

	builtins := make([]Satellite, 0, len(d.builtins))
	for _, f := range d.builtins {
		if s := f(); s != nil {
			builtins = append(builtins, s)
		}
	}
	sort.SliceStable(builtins, func(i, j int) bool { return builtins[i].Name() < builtins[j].Name() })
	for _, s := range builtins {
		set.put(s)
	}

	cfg := a.Config()
	modules, err := d.modules(cfg.General.ModulesDir, cfg.General.Modules)
	if err != nil {
		return nil, err
	}
	for _, dir := range modules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		manifest, err := ReadManifest(dir)
		if err != nil {
			return nil, err
		}
		if !manifest.IsEnabled() {
			log.Debug("module disabled", slog.String("module", manifest.Name))
			continue
		}
		paths, err := pluginFiles(filepath.Join(dir, "satellites"))
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			s, err := d.loader.Open(path)
			if err != nil {
				return nil, fmt.Errorf("load satellite %s: %w", path, err)
			}
			if set.put(s) {
				log.Warn("satellite replaced", slog.String("name", s.Name()), slog.String("module", manifest.Name))
			}
		}
	}
	return set.items, nil
}

// modules returns the module directories to visit. Named modules keep the
// configured order; without names every subdirectory is used, sorted.
func (d *Discovery) modules(root string, names []string) ([]string, error) {
	if root == "" {
		return nil, nil
	}
	if len(names) > 0 {
		dirs := make([]string, 0, len(names))
		for _, name := range names {
			dir := filepath.Join(root, name)
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				dirs = append(dirs, dir)
			}
		}
		return dirs, nil
	}
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read modules dir: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}

func pluginFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read satellites dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), PluginExt) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	// os.ReadDir sorts by file name.
	return files, nil
}

type orderedSet struct {
	items []Satellite
	index map[string]int
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]int)}
}

// put appends s, or replaces the entry with the same name in place.
func (o *orderedSet) put(s Satellite) (replaced bool) {
	if i, ok := o.index[s.Name()]; ok {
		o.items[i] = s
		return true
	}
	o.index[s.Name()] = len(o.items)
	o.items = append(o.items, s)
	return false
}
