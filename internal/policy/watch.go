package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDelay batches the burst of events an editor produces on save
const reloadDelay = 250 * time.Millisecond

// Watch reloads the overrides file whenever it changes and passes each
// successfully loaded and validated version to apply. It blocks until
// ctx is cancelled. Invalid versions are logged and skipped, leaving
// the previous overrides in force.
func Watch(ctx context.Context, path string, schemas map[string]Schema, log *zap.Logger, apply func(Overrides)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory, editors replace the file by renaming over it.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	log.Info("watching policy overrides", zap.String("path", abs))

	timer := time.NewTimer(reloadDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDelay)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("policy watcher error", zap.Error(err))
		case <-timer.C:
			overrides, err := LoadOverrides(abs)
			if err == nil {
				err = overrides.Validate(schemas)
			}
			if err != nil {
				log.Error("policy overrides rejected", zap.String("path", abs), zap.Error(err))
				continue
			}
			log.Info("policy overrides reloaded", zap.String("path", abs), zap.Int("backends", len(overrides)))
			apply(overrides)
		}
	}
}
