package storage

import (
	"context"
	"fmt"
	"sync"

	"anchorsync/pkg"
)

// MemoryTaskRepository keeps tasks in process; used for development, scripted runs and tests
type MemoryTaskRepository struct {
	mu     sync.Mutex
	tasks  map[string]pkg.Task
	bus    *broadcaster
	closed bool
}

// NewMemoryTaskRepository creates a repository seeded with tasks
func NewMemoryTaskRepository(seed ...pkg.Task) (*MemoryTaskRepository, error) {
	m := &MemoryTaskRepository{
		tasks: make(map[string]pkg.Task),
		bus:   newBroadcaster(),
	}
	for _, t := range seed {
		prepared, err := prepareCreate(t)
		if err != nil {
			return nil, fmt.Errorf("invalid seed task %q: %w", t.Title, err)
		}
		m.tasks[prepared.ID] = prepared
	}
	return m, nil
}

func (m *MemoryTaskRepository) Subscribe(ctx context.Context) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.bus.subscribe(ctx, m.snapshotLocked()), nil
}

func (m *MemoryTaskRepository) List(ctx context.Context) ([]pkg.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.snapshotLocked(), nil
}

func (m *MemoryTaskRepository) Create(ctx context.Context, task pkg.Task) (pkg.Task, error) {
	task, err := prepareCreate(task)
	if err != nil {
		return pkg.Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return pkg.Task{}, ErrClosed
	}
	if _, exists := m.tasks[task.ID]; exists {
		return pkg.Task{}, fmt.Errorf("task %s already exists", task.ID)
	}
	m.tasks[task.ID] = task
	m.bus.publish(m.snapshotLocked())
	return task, nil
}

func (m *MemoryTaskRepository) Update(ctx context.Context, task pkg.Task) error {
	if task.ID == "" {
		return nil
	}
	if err := task.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.tasks[task.ID]; !ok {
		return fmt.Errorf("task %s not found", task.ID)
	}
	m.tasks[task.ID] = task
	m.bus.publish(m.snapshotLocked())
	return nil
}

func (m *MemoryTaskRepository) Delete(ctx context.Context, task pkg.Task) error {
	if task.ID == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.tasks[task.ID]; !ok {
		return nil
	}
	delete(m.tasks, task.ID)
	m.bus.publish(m.snapshotLocked())
	return nil
}

func (m *MemoryTaskRepository) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.bus.closeAll()
	return nil
}

// snapshotLocked returns a fresh ordered slice; callers hold m.mu
func (m *MemoryTaskRepository) snapshotLocked() []pkg.Task {
	tasks := make([]pkg.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	sortTasks(tasks)
	return tasks
}
