package server

import (
	"path/filepath"
	"sync"
	"time"

	"trackdrop/internal/config"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const configReloadDelay = 500 * time.Millisecond

// startConfigWatcher reloads access codes whenever the config file changes.
// The parent directory is watched so editors that replace the file are seen.
func (ms *MusicServer) startConfigWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(ms.configPath)
	if err != nil {
		watcher.Close()
		return err
	}

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return err
	}
	ms.watcher = watcher

	go ms.watchConfig(watcher, absPath)

	ms.logger.WithField("config_path", absPath).Info("Config watcher started")
	return nil
}

// watchConfig selects on watcher channels and debounces reloads.
func (ms *MusicServer) watchConfig(watcher *fsnotify.Watcher, path string) {
	var (
		mu    sync.Mutex
		timer *time.Timer
	)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(configReloadDelay, ms.reloadConfig)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ms.logger.WithError(err).Error("Config watcher error")
		}
	}
}

// reloadConfig re-reads the config file and applies the settings that can
// change at runtime: access codes and log level.
func (ms *MusicServer) reloadConfig() {
	cfg, err := config.LoadConfig(ms.configPath)
	if err != nil {
		ms.logger.WithError(err).Warn("Ignoring invalid config change")
		return
	}

	ms.codes.Reload(&cfg.Access)

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil && level != ms.logger.GetLevel() {
		ms.logger.SetLevel(level)
	}

	ms.logger.WithField("config_path", ms.configPath).Info("Configuration reloaded")
}

// stopConfigWatcher closes the watcher (idempotent).
func (ms *MusicServer) stopConfigWatcher() {
	if ms.watcher != nil {
		ms.watcher.Close()
		ms.watcher = nil
	}
}
