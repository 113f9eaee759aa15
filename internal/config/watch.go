// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// HOT RELOAD
// =============================================================================

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 150 * time.Millisecond

// Watch reloads path whenever it changes and passes each valid result to
// onChange. A file that fails to load or validate is logged and skipped;
// the previous configuration stays in effect.
//
// The parent directory is watched rather than the file, so atomic saves
// (write temp, rename over) are seen. Watch returns once the watcher is
// running; it stops when ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return WatchWithDebounce(ctx, path, DefaultDebounce, onChange)
}

// WatchWithDebounce is Watch with an explicit debounce interval.
func WatchWithDebounce(ctx context.Context, path string, debounce time.Duration, onChange func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	go watchLoop(ctx, watcher, absPath, debounce, onChange)
	log.Printf("CONFIG_WATCH_STARTED | path=%s", absPath)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, debounce time.Duration, onChange func(*Config)) {
	defer watcher.Close()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG_WATCH_ERROR | path=%s error=%v", path, err)

		case <-timer.C:
			cfg, err := LoadFromPath(path)
			if err != nil {
				log.Printf("CONFIG_RELOAD_FAILED | path=%s error=%v", path, err)
				continue
			}
			log.Printf("CONFIG_RELOADED | path=%s model=%s", path, cfg.Generation.Model)
			onChange(cfg)
		}
	}
}
