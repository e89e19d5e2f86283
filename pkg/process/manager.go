// Package process handles signals and shutdown for long-running commands
package process

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lanecast/lanecast/pkg/logger"
)

// Manager turns OS signals into context cancellation and runs shutdown handlers
type Manager struct {
	logger           logger.Logger
	shutdownHandlers []func()
	heartbeatFunc    func()
	heartbeatEvery   time.Duration
	heartbeatStop    chan struct{}
	signals          []os.Signal
	cancel           context.CancelFunc

	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	shutdown bool
}

// NewManager creates a new process manager
func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{
		logger:         log,
		heartbeatEvery: 10 * time.Second,
		signals:        []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP},
	}
}

// RegisterShutdownHandler adds a handler; handlers run once, newest first
func (m *Manager) RegisterShutdownHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHandlers = append(m.shutdownHandlers, handler)
}

// SetHeartbeat sets a function called every interval while the manager runs
func (m *Manager) SetHeartbeat(interval time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval > 0 {
		m.heartbeatEvery = interval
	}
	m.heartbeatFunc = fn
}

// Start watches for termination signals. The returned context is cancelled
// after the shutdown handlers have run, on a signal or when ctx ends.
func (m *Manager) Start(ctx context.Context) context.Context {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ctx
	}
	m.running = true
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, m.signals...)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer signal.Stop(sigChan)
		defer cancel()

		select {
		case <-runCtx.Done():
			m.handleShutdown()
		case sig := <-sigChan:
			m.logger.Info("Received signal", logger.WithField("signal", sig))
			m.handleShutdown()
		}
	}()

	if m.heartbeatFunc != nil {
		m.startHeartbeat(runCtx)
	}
	return runCtx
}

// Shutdown runs the shutdown handlers as if a signal had arrived
func (m *Manager) Shutdown() {
	m.handleShutdown()
}

// Stop stops the manager and waits for its goroutines
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop := m.heartbeatStop
	m.heartbeatStop = nil
	cancel := m.cancel
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	m.handleShutdown()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// IsRunning reports whether the manager is watching signals
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) handleShutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	handlers := make([]func(), len(m.shutdownHandlers))
	copy(handlers, m.shutdownHandlers)
	m.mu.Unlock()

	m.logger.Info("Initiating graceful shutdown...")
	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
}

func (m *Manager) startHeartbeat(ctx context.Context) {
	m.mu.Lock()
	stop := make(chan struct{})
	m.heartbeatStop = stop
	interval, fn := m.heartbeatEvery, m.heartbeatFunc
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// IsAlive reports whether a process with pid exists and accepts signals
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Terminate asks pid to stop with SIGTERM and kills it if it is still alive after grace
func Terminate(pid int, grace time.Duration) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return proc.Kill()
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !IsAlive(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	if IsAlive(pid) {
		return proc.Kill()
	}
	return nil
}
