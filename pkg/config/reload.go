package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/types"
)

// ReloadCallback is called with the reloaded plan, or with the error that stopped it loading
type ReloadCallback func(*types.Plan, error)

// ReloadManager watches a plan file and reloads it after edits settle
type ReloadManager struct {
	planPath       string
	logger         logger.Logger
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	lastModTime    time.Time
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	isWatching     bool
}

// NewReloadManager creates a reload manager for planPath
func NewReloadManager(planPath string, log logger.Logger) *ReloadManager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ReloadManager{
		planPath:       planPath,
		logger:         log.WithComponent("reload"),
		debouncePeriod: 500 * time.Millisecond,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// AddCallback adds a reload callback
func (rm *ReloadManager) AddCallback(callback ReloadCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = append(rm.callbacks, callback)
}

// StartWatching begins watching the plan file's directory
func (rm *ReloadManager) StartWatching() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isWatching {
		return fmt.Errorf("already watching plan file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Editors replace files on save, so watch the directory rather than the file
	if err := watcher.Add(filepath.Dir(rm.planPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch plan directory: %w", err)
	}
	rm.watcher = watcher

	if stat, err := os.Stat(rm.planPath); err == nil {
		rm.lastModTime = stat.ModTime()
	}
	rm.isWatching = true

	go rm.watchLoop(watcher)

	rm.logger.Debug("Started watching plan file", logger.WithField("path", rm.planPath))
	return nil
}

// StopWatching stops watching the plan file
func (rm *ReloadManager) StopWatching() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !rm.isWatching {
		return nil
	}

	rm.cancel()

	if rm.debounceTimer != nil {
		rm.debounceTimer.Stop()
		rm.debounceTimer = nil
	}

	if rm.watcher != nil {
		if err := rm.watcher.Close(); err != nil {
			rm.logger.Warn("Error closing file watcher", logger.WithError(err))
		}
		rm.watcher = nil
	}
	rm.isWatching = false

	rm.logger.Debug("Stopped watching plan file")
	return nil
}

// IsWatching returns whether the manager is currently watching
func (rm *ReloadManager) IsWatching() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.isWatching
}

// TriggerReload reloads the plan now, even if its modification time is unchanged
func (rm *ReloadManager) TriggerReload() {
	rm.mu.Lock()
	rm.lastModTime = time.Time{}
	rm.mu.Unlock()
	rm.handlePlanChange(false)
}

// SetDebouncePeriod sets the settle time for file change events
func (rm *ReloadManager) SetDebouncePeriod(period time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debouncePeriod = period
}

// LastReloadTime returns the modification time of the last plan that was loaded
func (rm *ReloadManager) LastReloadTime() time.Time {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.lastModTime
}

// PlanPath returns the watched plan path
func (rm *ReloadManager) PlanPath() string {
	return rm.planPath
}

func (rm *ReloadManager) watchLoop(watcher *fsnotify.Watcher) {
	defer func() {
		if r := recover(); r != nil {
			rm.logger.Error("Plan watcher panic recovered", logger.WithField("panic", r))
		}
	}()

	for {
		select {
		case <-rm.ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !rm.isPlanFileEvent(event.Name) {
				continue
			}

			rm.logger.Debug("Plan file event received", logger.WithField("event", event.String()))
			rm.debounceReload(event.Op&fsnotify.Remove == fsnotify.Remove)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			rm.logger.Error("Plan file watcher error", logger.WithError(err))
			rm.notifyCallbacks(nil, err)
		}
	}
}

func (rm *ReloadManager) isPlanFileEvent(eventPath string) bool {
	planFile := filepath.Base(rm.planPath)
	eventFile := filepath.Base(eventPath)

	if eventFile == planFile {
		return true
	}
	// editor swap and temp files
	return strings.HasPrefix(eventFile, planFile) ||
		strings.HasSuffix(eventFile, ".tmp") && strings.Contains(eventFile, planFile)
}

func (rm *ReloadManager) debounceReload(removed bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.debounceTimer != nil {
		rm.debounceTimer.Stop()
	}
	rm.debounceTimer = time.AfterFunc(rm.debouncePeriod, func() {
		rm.handlePlanChange(removed)
	})
}

func (rm *ReloadManager) handlePlanChange(removed bool) {
	stat, err := os.Stat(rm.planPath)
	if err != nil {
		if removed || os.IsNotExist(err) {
			err = fmt.Errorf("plan file was removed: %s", rm.planPath)
		}
		rm.logger.Error("Failed to stat plan file", logger.WithError(err))
		rm.notifyCallbacks(nil, err)
		return
	}

	rm.mu.Lock()
	if !stat.ModTime().After(rm.lastModTime) {
		rm.mu.Unlock()
		rm.logger.Debug("Plan file not modified, skipping reload")
		return
	}
	rm.lastModTime = stat.ModTime()
	rm.mu.Unlock()

	plan, err := NewManager().LoadPlan(rm.planPath)
	if err != nil {
		rm.logger.Error("Failed to reload plan", logger.WithError(err))
		rm.notifyCallbacks(nil, err)
		return
	}

	rm.logger.Info("Plan reloaded",
		logger.WithField("items", len(plan.Items)),
		logger.WithField("teams", len(plan.Teams)))
	rm.notifyCallbacks(plan, nil)
}

func (rm *ReloadManager) notifyCallbacks(plan *types.Plan, err error) {
	rm.mu.RLock()
	callbacks := make([]ReloadCallback, len(rm.callbacks))
	copy(callbacks, rm.callbacks)
	rm.mu.RUnlock()

	for _, callback := range callbacks {
		go func(cb ReloadCallback) {
			defer func() {
				if r := recover(); r != nil {
					rm.logger.Error("Reload callback panic recovered", logger.WithField("panic", r))
				}
			}()
			cb(plan, err)
		}(callback)
	}
}
