package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"

	"anchorsync/pkg"
	"anchorsync/src/logger"
)

// FileTaskRepository keeps the task list as a JSON array in one file.
// Changes are pushed to subscribers of this process only.
type FileTaskRepository struct {
	mu     sync.Mutex
	path   string
	bus    *broadcaster
	closed bool
}

// NewFileTaskRepository uses path, creating its directory on first write
func NewFileTaskRepository(path string) *FileTaskRepository {
	return &FileTaskRepository{path: path, bus: newBroadcaster()}
}

func (f *FileTaskRepository) Subscribe(ctx context.Context) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	tasks, err := f.loadLocked()
	if err != nil {
		return nil, err
	}
	return f.bus.subscribe(ctx, tasks), nil
}

func (f *FileTaskRepository) List(ctx context.Context) ([]pkg.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	return f.loadLocked()
}

func (f *FileTaskRepository) Create(ctx context.Context, task pkg.Task) (pkg.Task, error) {
	task, err := prepareCreate(task)
	if err != nil {
		return pkg.Task{}, err
	}
	err = f.mutate(func(tasks []pkg.Task) ([]pkg.Task, error) {
		for _, t := range tasks {
			if t.ID == task.ID {
				return nil, fmt.Errorf("task %s already exists", task.ID)
			}
		}
		return append(tasks, task), nil
	})
	if err != nil {
		return pkg.Task{}, err
	}
	return task, nil
}

func (f *FileTaskRepository) Update(ctx context.Context, task pkg.Task) error {
	if task.ID == "" {
		return nil
	}
	if err := task.Validate(); err != nil {
		return err
	}
	return f.mutate(func(tasks []pkg.Task) ([]pkg.Task, error) {
		for i := range tasks {
			if tasks[i].ID == task.ID {
				tasks[i] = task
				return tasks, nil
			}
		}
		return nil, fmt.Errorf("task %s not found", task.ID)
	})
}

func (f *FileTaskRepository) Delete(ctx context.Context, task pkg.Task) error {
	if task.ID == "" {
		return nil
	}
	return f.mutate(func(tasks []pkg.Task) ([]pkg.Task, error) {
		kept := tasks[:0]
		for _, t := range tasks {
			if t.ID != task.ID {
				kept = append(kept, t)
			}
		}
		return kept, nil
	})
}

func (f *FileTaskRepository) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.bus.closeAll()
	return nil
}

// mutate loads, edits, writes back and publishes under the lock
func (f *FileTaskRepository) mutate(edit func([]pkg.Task) ([]pkg.Task, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	tasks, err := f.loadLocked()
	if err != nil {
		return err
	}
	tasks, err = edit(tasks)
	if err != nil {
		return err
	}
	sortTasks(tasks)
	if err := f.writeLocked(tasks); err != nil {
		return err
	}

	published := make([]pkg.Task, len(tasks))
	copy(published, tasks)
	f.bus.publish(published)
	return nil
}

func (f *FileTaskRepository) loadLocked() ([]pkg.Task, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return []pkg.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	if len(data) == 0 {
		return []pkg.Task{}, nil
	}

	// decode per element so one bad record does not hide the rest
	var elems []json.RawMessage
	if err := sonic.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", f.path, err)
	}
	raws := make([]rawRecord, len(elems))
	for i, e := range elems {
		raws[i] = rawRecord{data: e}
	}
	return decodeTasks("file", raws), nil
}

func (f *FileTaskRepository) writeLocked(tasks []pkg.Task) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}

	data, err := sonic.ConfigStd.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write task file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace task file: %w", err)
	}

	logger.Debug().Str("path", f.path).Int("tasks", len(tasks)).Msg("task file saved")
	return nil
}
