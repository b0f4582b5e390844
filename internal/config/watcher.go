package config

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/scrypster/recall/internal/logger"
)

// RankingWatcher reloads a ranking profile when its file changes and hands
// every valid profile to a callback. Invalid profiles are logged and skipped;
// the last applied profile stays in effect.
//
// Reloaded profiles are overlaid on DefaultRanking, so environment overrides
// applied at startup do not survive a reload.
type RankingWatcher struct {
	path     string
	apply    func(RankingConfig) error
	log      *logger.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewRankingWatcher creates a watcher for the profile at path.
func NewRankingWatcher(path string, apply func(RankingConfig) error, log *logger.Logger) (*RankingWatcher, error) {
	if path == "" {
		return nil, errors.New("config: ranking profile path is required")
	}
	if apply == nil {
		return nil, errors.New("config: ranking callback is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RankingWatcher{
		path:  filepath.Clean(path),
		apply: apply,
		log:   log,
		done:  make(chan struct{}),
	}, nil
}

// Start begins watching. The containing directory is watched rather than the
// file so that editors which replace the file on save are still seen.
func (rw *RankingWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(rw.path)); err != nil {
		_ = w.Close()
		return err
	}
	rw.watcher = w

	go rw.loop()
	rw.log.Info("watching ranking profile", "path", rw.path)
	return nil
}

// Stop shuts down the watcher and waits for the event loop to exit.
func (rw *RankingWatcher) Stop() {
	if rw.watcher == nil {
		return
	}
	rw.stopOnce.Do(func() {
		_ = rw.watcher.Close()
		<-rw.done
	})
}

// Reload loads, validates and applies the profile once.
func (rw *RankingWatcher) Reload() error {
	rc := DefaultRanking()
	if err := rc.LoadFile(rw.path); err != nil {
		return err
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	return rw.apply(rc)
}

func (rw *RankingWatcher) loop() {
	defer close(rw.done)
	for {
		select {
		case evt, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != rw.path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			if err := rw.Reload(); err != nil {
				rw.log.Warn("ranking profile not applied", "path", rw.path, "error", err)
				continue
			}
			rw.log.Info("ranking profile reloaded", "path", rw.path)
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.log.Warn("ranking watcher error", "error", err)
		}
	}
}
