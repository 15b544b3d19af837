// Package task runs long AI jobs in the background behind cancellable handles.
package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"fintrack/internal/logger"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("task: not found")

type Status string

const (
	Running  Status = "running"
	Done     Status = "done"
	Failed   Status = "failed"
	Canceled Status = "canceled"
)

// Func is the work of a task. It must return when ctx is canceled.
type Func func(ctx context.Context) (any, error)

// Handle tracks one started task.
type Handle struct {
	ID      string
	Owner   string
	Kind    string
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	status   Status
	result   any
	err      error
	finished time.Time
}

// Cancel asks the task to stop. It is a no-op once the task finished.
func (h *Handle) Cancel() { h.cancel() }

// Wait blocks until the task finished or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the task finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Result returns the value and error of a finished task.
func (h *Handle) Result() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// View is the JSON shape of a handle.
type View struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Status  Status    `json:"status"`
	Started time.Time `json:"started"`
	Result  any       `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func (h *Handle) View() View {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := View{ID: h.ID, Kind: h.Kind, Status: h.status, Started: h.Started, Result: h.result}
	if h.err != nil && h.status == Failed {
		v.Error = h.err.Error()
	}
	return v
}

func (h *Handle) finish(res any, err error, ctxErr error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = time.Now()
	switch {
	case ctxErr != nil:
		h.status = Canceled
		h.err = ctxErr
	case err != nil:
		h.status = Failed
		h.err = err
	default:
		h.status = Done
		h.result = res
	}
}

func (h *Handle) finishedBefore(t time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status != Running && h.finished.Before(t)
}

// Manager keeps the handles of started tasks until they are pruned.
type Manager struct {
	mu     sync.Mutex
	tasks  map[string]*Handle
	wg     sync.WaitGroup
	closed bool
}

func NewManager() *Manager {
	return &Manager{tasks: make(map[string]*Handle)}
}

var ErrClosed = errors.New("task: manager closed")

// Start runs fn in a new goroutine. The task context derives from parent,
// so canceling parent cancels the task too.
func (m *Manager) Start(parent context.Context, owner, kind string, fn Func) (*Handle, error) {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		ID:      uuid.NewString(),
		Owner:   owner,
		Kind:    kind,
		Started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  Running,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	m.tasks[h.ID] = h
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer close(h.done)
		defer cancel()
		res, err := fn(ctx)
		h.finish(res, err, ctx.Err())
		l := logger.L()
		ev := l.Info()
		if err != nil {
			ev = l.Warn().Err(err)
		}
		ev.Str("task_id", h.ID).Str("kind", kind).Str("status", string(h.Status())).
			Dur("elapsed", time.Since(h.Started)).Msg("task_finished")
	}()
	return h, nil
}

// Get returns the handle with id if it belongs to owner.
func (m *Manager) Get(owner, id string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.tasks[id]
	if !ok || h.Owner != owner {
		return nil, ErrNotFound
	}
	return h, nil
}

// Cancel stops the task with id if it belongs to owner.
func (m *Manager) Cancel(owner, id string) (*Handle, error) {
	h, err := m.Get(owner, id)
	if err != nil {
		return nil, err
	}
	h.Cancel()
	return h, nil
}

// Prune forgets tasks that finished more than retention ago and returns
// how many were dropped.
func (m *Manager) Prune(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, h := range m.tasks {
		if h.finishedBefore(cutoff) {
			delete(m.tasks, id)
			n++
		}
	}
	return n
}

// Run prunes on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Prune(retention); n > 0 {
				logger.L().Debug().Int("count", n).Msg("tasks_pruned")
			}
		}
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Shutdown cancels every running task and waits for them to return.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, h := range m.tasks {
		h.Cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
