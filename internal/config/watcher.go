package config

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// debounce window for editors that write config files in multiple events.
const reloadDebounce = 500 * time.Millisecond

// Watch reloads the config file on change and hands the parsed result to
// onChange. Reload failures keep the previous configuration active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = strings.TrimSpace(path)
	if path == "" || onChange == nil {
		return nil
	}
	watcher, errWatch := fsnotify.NewWatcher()
	if errWatch != nil {
		return errWatch
	}
	dir := filepath.Dir(path)
	if errAdd := watcher.Add(dir); errAdd != nil {
		_ = watcher.Close()
		return errAdd
	}

	go func() {
		defer func() {
			if errClose := watcher.Close(); errClose != nil {
				log.WithError(errClose).Warn("config watcher: close failed")
			}
		}()
		var pending *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(reloadDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				cfg, errLoad := Load(path)
				if errLoad != nil {
					log.WithError(errLoad).Warnf("config watcher: reload failed (path=%s)", path)
					continue
				}
				log.Infof("config watcher: reloaded %s", path)
				onChange(cfg)
			case errEvent, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(errEvent).Warn("config watcher: watch error")
			}
		}
	}()
	log.Infof("config watcher: watching %s", path)
	return nil
}
