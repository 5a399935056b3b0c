package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultReloadDebounce is how long the watcher waits for writes to settle.
const DefaultReloadDebounce = 500 * time.Millisecond

// Watcher reloads the config file whenever it changes on disk and hands
// every valid result to a callback. Invalid files are logged and skipped,
// so the last good configuration stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// Watch starts watching path. The directory is watched rather than the
// file so editors that replace the file by renaming are still seen.
func Watch(path string, debounce time.Duration, onChange func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config: no file to watch")
	}
	if onChange == nil {
		return nil, errors.New("config: nil change callback")
	}
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		watcher:  fw,
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	log.Debug().Str("path", w.path).Msg("Watching config file")
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")

		case <-w.done:
			return
		}
	}
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.reload)
		return
	}
	w.timer.Reset(w.debounce)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Config reload failed, keeping previous configuration")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Reloaded config is invalid, keeping previous configuration")
		return
	}

	log.Info().Str("path", w.path).Msg("Config reloaded")
	w.onChange(cfg)
}

// Close stops watching. A pending reload is cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
