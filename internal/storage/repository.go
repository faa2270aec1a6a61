package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"anchorsync/pkg"
	"anchorsync/src/logger"
)

// ErrClosed is returned by a repository after Close
var ErrClosed = errors.New("repository closed")

// Snapshot is one complete, immutable task list pushed by a repository.
// Tasks are ordered by creation time, newest first.
type Snapshot struct {
	Seq        uint64
	Tasks      []pkg.Task
	ReceivedAt time.Time
}

// Subscription is a cancellable handle on a repository's push channel.
// Updates holds at most one pending snapshot; a newer one replaces an unread older one.
type Subscription interface {
	Updates() <-chan Snapshot
	Cancel()
}

// TaskRepository is the remote task store: a push channel plus a write API
type TaskRepository interface {
	// Subscribe delivers the current task list, then a new one after every change
	Subscribe(ctx context.Context) (Subscription, error)
	List(ctx context.Context) ([]pkg.Task, error)
	// Create assigns an identity when the task has none
	Create(ctx context.Context, task pkg.Task) (pkg.Task, error)
	// Update and Delete are no-ops for tasks without identity
	Update(ctx context.Context, task pkg.Task) error
	Delete(ctx context.Context, task pkg.Task) error
	Close() error
}

// mailbox is a latest-wins Subscription
type mailbox struct {
	mu       sync.Mutex
	ch       chan Snapshot
	seq      uint64
	closed   bool
	once     sync.Once
	onCancel func()
}

func newMailbox(onCancel func()) *mailbox {
	return &mailbox{ch: make(chan Snapshot, 1), onCancel: onCancel}
}

func (m *mailbox) Updates() <-chan Snapshot {
	return m.ch
}

// offer replaces any unread snapshot with tasks; it never blocks
func (m *mailbox) offer(tasks []pkg.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case <-m.ch:
	default:
	}
	m.seq++
	m.ch <- Snapshot{Seq: m.seq, Tasks: tasks, ReceivedAt: time.Now()}
}

func (m *mailbox) Cancel() {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.ch)
		m.mu.Unlock()
		if m.onCancel != nil {
			m.onCancel()
		}
	})
}

// broadcaster fans snapshots out to in-process subscribers
type broadcaster struct {
	mu   sync.Mutex
	subs map[*mailbox]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[*mailbox]struct{})}
}

// subscribe registers a mailbox primed with initial; it is cancelled with ctx
func (b *broadcaster) subscribe(ctx context.Context, initial []pkg.Task) *mailbox {
	var m *mailbox
	m = newMailbox(func() {
		b.mu.Lock()
		delete(b.subs, m)
		b.mu.Unlock()
	})

	b.mu.Lock()
	b.subs[m] = struct{}{}
	m.offer(initial)
	b.mu.Unlock()

	context.AfterFunc(ctx, m.Cancel)
	return m
}

func (b *broadcaster) publish(tasks []pkg.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for m := range b.subs {
		m.offer(tasks)
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	subs := make([]*mailbox, 0, len(b.subs))
	for m := range b.subs {
		subs = append(subs, m)
	}
	b.mu.Unlock()
	for _, m := range subs {
		m.Cancel()
	}
}

// sortTasks orders newest first, ties broken by identity
func sortTasks(tasks []pkg.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// prepareCreate fills identity, creation time and priority for a new record
func prepareCreate(task pkg.Task) (pkg.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.Priority == "" {
		task.Priority = pkg.PriorityMedium
	}
	if err := task.Validate(); err != nil {
		return pkg.Task{}, err
	}
	return task, nil
}

func encodeTask(task pkg.Task) ([]byte, error) {
	data, err := sonic.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}
	return data, nil
}

// decodeTask parses one stored record, rejecting anything a consumer could not render
func decodeTask(id string, raw []byte) (pkg.Task, error) {
	var task pkg.Task
	if err := sonic.Unmarshal(raw, &task); err != nil {
		return pkg.Task{}, fmt.Errorf("%w: %v", pkg.ErrInvalidTask, err)
	}
	if task.ID == "" {
		task.ID = id
	}
	if task.ID == "" {
		return pkg.Task{}, fmt.Errorf("%w: missing id", pkg.ErrInvalidTask)
	}
	if task.Priority == "" {
		task.Priority = pkg.PriorityMedium
	}
	if err := task.Validate(); err != nil {
		return pkg.Task{}, err
	}
	return task, nil
}

// rawRecord is one stored task encoding; key is the storage-level identity, if any
type rawRecord struct {
	key  string
	data []byte
}

// decodeTasks builds a snapshot from raw records, dropping malformed ones
func decodeTasks(backend string, raws []rawRecord) []pkg.Task {
	tasks := make([]pkg.Task, 0, len(raws))
	for i, raw := range raws {
		task, err := decodeTask(raw.key, raw.data)
		if err != nil {
			logger.Warn().Err(err).Str("backend", backend).Str("task_id", raw.key).Int("record", i).
				Msg("dropping malformed task record")
			continue
		}
		tasks = append(tasks, task)
	}
	sortTasks(tasks)
	return tasks
}
