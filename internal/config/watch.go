package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gil0mendes/Stellar/pkg/logger"
)

// Watcher calls a function whenever the watched config file changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Watch starts watching path. The parent directory is watched so editors
// that replace the file through a rename are still noticed.
func Watch(path string, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	w := &Watcher{watcher: fw, done: make(chan struct{})}
	target := filepath.Clean(path)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				logger.Named("config").Info("config file changed", "path", target, "op", event.Op.String())
				onChange()
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logger.Named("config").Warn("config watcher error", "error", err)
			}
		}
	}()
	return w, nil
}

// Stop halts the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	if w == nil {
		return nil
	}
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
