package cluster

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kagent-dev/kube-mcp/internal/logger"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the registry whenever its configuration file changes, until ctx
// is done. The parent directory is watched so that editors which replace the
// file by rename are picked up.
func (r *Registry) Watch(ctx context.Context) error {
	source := r.ConfigSource()
	if source == "" {
		return errors.New("cluster configuration was not loaded from a file, nothing to watch")
	}
	target, err := filepath.Abs(source)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	log := logger.WithContext(ctx).With("file", target)
	log.Info("watching cluster configuration for changes")

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := r.Reload(); err == nil {
					log.Info("cluster configuration reloaded")
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("cluster configuration watcher error", "error", err)
		}
	}
}
