package satellite

import (
	"errors"
	"fmt"
	goplugin "plugin"
)

// Symbol is the exported name looked up in satellite plugins.
const Symbol = "Satellite"

// PluginLoader turns a binary on disk into a Satellite.
type PluginLoader interface {
	Open(path string) (Satellite, error)
}

// GoPluginLoader loads satellites built with -buildmode=plugin. The plugin
// must export a Satellite symbol holding a Satellite, a pointer to one or a
// func() Satellite.
type GoPluginLoader struct{}

// Open implements PluginLoader.
func (GoPluginLoader) Open(path string) (Satellite, error) {
	if path == "" {
		return nil, errors.New("satellite path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	symbol, err := so.Lookup(Symbol)
	if err != nil {
		return nil, err
	}
	return fromSymbol(symbol)
}

func fromSymbol(symbol any) (Satellite, error) {
	switch s := symbol.(type) {
	case func() Satellite:
		return s(), nil
	case *func() Satellite:
		if s == nil || *s == nil {
			return nil, errors.New("satellite symbol is nil")
		}
		return (*s)(), nil
	case *Satellite:
		if s == nil || *s == nil {
			return nil, errors.New("satellite symbol is nil")
		}
		return *s, nil
	case Satellite:
		return s, nil
	default:
		return nil, fmt.Errorf("symbol %s has unsupported type %T", Symbol, symbol)
	}
}
