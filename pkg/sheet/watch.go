package sheet

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange after path is written, created or renamed into
// place. Bursts of events within debounce collapse into one call. The
// parent directory is watched so editors that replace the file are seen.
// Watch returns once the watcher is set up; it stops when ctx ends.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(), logf func(string, ...any)) error {
	if logf == nil {
		logf = log.Printf
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("sheet watch: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sheet watch: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("sheet watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()
		timer := time.NewTimer(debounce)
		if !timer.Stop() {
			<-timer.C
		}
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				timer.Reset(debounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logf("sheet watch error: %v", err)
			case <-timer.C:
				onChange()
			}
		}
	}()
	return nil
}
