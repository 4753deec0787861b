package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"cybertrainer/internal/observability"
)

// FileSource serves the [settings] table of a TOML file, for example:
//
//	[settings]
//	maxLoginAttempts = 3
//	sessionTimeoutDays = 14
type FileSource struct {
	path   string
	logger *observability.Logger

	mu     sync.RWMutex
	values map[string]string
}

var _ Source = (*FileSource)(nil)

type fileDocument struct {
	Settings map[string]any `toml:"settings"`
}

func NewFileSource(path string, logger *observability.Logger) (*FileSource, error) {
	source := &FileSource{path: filepath.Clean(path), logger: logger}
	if err := source.Reload(); err != nil {
		return nil, err
	}
	return source, nil
}

func (f *FileSource) Lookup(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	value, ok := f.values[key]
	return value, ok, nil
}

// Reload re-reads the file. On error the previously loaded values stay in effect.
func (f *FileSource) Reload() error {
	var doc fileDocument
	if _, err := toml.DecodeFile(f.path, &doc); err != nil {
		return fmt.Errorf("load settings file %s: %w", f.path, err)
	}

	values := make(map[string]string, len(doc.Settings))
	for key, raw := range doc.Settings {
		switch v := raw.(type) {
		case string, int64, float64, bool:
			values[key] = fmt.Sprint(v)
		default:
			return fmt.Errorf("load settings file %s: %q must be a scalar", f.path, key)
		}
	}

	f.mu.Lock()
	f.values = values
	f.mu.Unlock()
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so that editors replacing the file are picked up.
func (f *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != f.path || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := f.Reload(); err != nil {
					f.logger.Warn("settings_reload_failed", map[string]any{"error": err.Error()})
					continue
				}
				f.logger.Info("settings_reloaded", map[string]any{"path": f.path})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn("settings_watch_error", map[string]any{"error": err.Error()})
			}
		}
	}()

	return nil
}
