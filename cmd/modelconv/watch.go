package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watch re-converts a job when its input is written. Directories are
// watched so that editors replacing files by rename are noticed.
func (c *converter) watch(ctx context.Context, jobs []job) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	byPath := map[string]job{}
	dirs := map[string]bool{}
	for _, j := range jobs {
		p, err := filepath.Abs(j.input)
		if err != nil {
			return err
		}
		byPath[p] = j
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}
	c.log.Info("watching", zap.Int("files", len(byPath)))

	debounce := time.Duration(c.cfg.Batch.DebounceMS) * time.Millisecond
	ready := make(chan job)
	timers := map[string]*time.Timer{}
	for {
		select {
		case <-ctx.Done():
			for _, t := range timers {
				t.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			p, _ := filepath.Abs(event.Name)
			j, ok := byPath[p]
			if !ok {
				continue
			}
			if t, ok := timers[p]; ok {
				t.Reset(debounce)
				continue
			}
			timers[p] = time.AfterFunc(debounce, func() {
				select {
				case ready <- j:
				case <-ctx.Done():
				}
			})
		case j := <-ready:
			p, _ := filepath.Abs(j.input)
			delete(timers, p)
			if err := c.convert(j); err != nil {
				c.log.Error("conversion failed", zap.String("input", j.input), zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("watch error", zap.Error(err))
		}
	}
}
