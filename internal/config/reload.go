package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadableConfig watches a configuration file and swaps in every valid
// revision. Callbacks run on the watcher goroutine, one at a time, in
// registration order.
type ReloadableConfig struct {
	path      string
	current   atomic.Pointer[Config]
	mu        sync.RWMutex
	watchers  []func(old, new *Config)
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stopOnce  sync.Once
	reloading atomic.Bool
	debounce  time.Duration
}

// NewReloadable loads path and starts watching it.
func NewReloadable(path string) (*ReloadableConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("initial config load: %w", err)
	}

	r := &ReloadableConfig{
		path:     path,
		stopCh:   make(chan struct{}),
		debounce: 200 * time.Millisecond,
	}
	r.current.Store(cfg)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file on save are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	r.watcher = watcher
	go r.watchLoop()

	return r, nil
}

// Get returns the current configuration.
func (r *ReloadableConfig) Get() *Config {
	return r.current.Load()
}

// Watch registers fn to run after every successful reload.
func (r *ReloadableConfig) Watch(fn func(old, new *Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers = append(r.watchers, fn)
}

// Reload re-reads the file. An invalid revision leaves the current
// configuration in place.
func (r *ReloadableConfig) Reload() error {
	if !r.reloading.CompareAndSwap(false, true) {
		return fmt.Errorf("reload already in progress")
	}
	defer r.reloading.Store(false)

	newCfg, err := Load(r.path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	oldCfg := r.Get()
	if err := validateTransition(oldCfg, newCfg); err != nil {
		return fmt.Errorf("validate transition: %w", err)
	}
	r.current.Store(newCfg)

	r.mu.RLock()
	watchers := make([]func(old, new *Config), len(r.watchers))
	copy(watchers, r.watchers)
	r.mu.RUnlock()

	for _, fn := range watchers {
		fn(oldCfg, newCfg)
	}
	return nil
}

// validateTransition rejects changes a running watch session cannot apply.
func validateTransition(old, new *Config) error {
	if old.OutputDir != new.OutputDir {
		return fmt.Errorf("output_dir change requires restart: %s -> %s", old.OutputDir, new.OutputDir)
	}
	return nil
}

func (r *ReloadableConfig) watchLoop() {
	target := filepath.Clean(r.path)
	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				pending = time.After(r.debounce)
			}
		case <-pending:
			pending = nil
			if err := r.Reload(); err != nil {
				log.Printf("[config] reload failed: %v", err)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the file watcher.
func (r *ReloadableConfig) Close() error {
	var err error
	r.stopOnce.Do(func() {
		close(r.stopCh)
		err = r.watcher.Close()
	})
	return err
}
