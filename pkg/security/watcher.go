package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// LoadSettingsFile reads per-user permission settings from a JSON file
// and applies them to the manager.
func LoadSettingsFile(manager *Manager, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings []*UserPermissionSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}

	for _, s := range settings {
		if s.UserID == "" {
			continue
		}
		if len(s.AllowedCategories) == 0 {
			s.AllowedCategories = CategoriesForLevel(s.PermissionLevel)
		}
		manager.SetUserSettings(s)
	}

	log.Info().Str("path", path).Int("users", len(settings)).Msg("Permission settings loaded")
	return nil
}

// SettingsWatcher hot-reloads the permission settings file when it
// changes on disk.
type SettingsWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchSettingsFile starts watching path and reloading the manager's
// settings on every write.
func WatchSettingsFile(manager *Manager, path string) (*SettingsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: editors replace files, which drops the
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch settings directory: %w", err)
	}

	sw := &SettingsWatcher{
		watcher: watcher,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(sw.done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := LoadSettingsFile(manager, path); err != nil {
					log.Warn().Err(err).Str("path", path).Msg("Settings reload failed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("Settings watcher error")
			}
		}
	}()

	log.Info().Str("path", path).Msg("Watching permission settings")
	return sw, nil
}

// Stop closes the watcher.
func (w *SettingsWatcher) Stop() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
