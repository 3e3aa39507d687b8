// Package config loads the runtime configuration tree from a YAML file and
// STELLAR_* environment overrides, fills defaults and validates it. It also
// provides the file watcher used in development mode to restart the engine
// when the file changes.
package config
