package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorsync/pkg"
)

type backendFactory func(t *testing.T) TaskRepository

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T) TaskRepository {
			repo, err := NewMemoryTaskRepository()
			require.NoError(t, err)
			return repo
		},
		"file": func(t *testing.T) TaskRepository {
			return NewFileTaskRepository(filepath.Join(t.TempDir(), "data", "tasks.json"))
		},
		"sqlite": func(t *testing.T) TaskRepository {
			db, err := OpenSQLite(":memory:")
			require.NoError(t, err)
			return NewSQLiteTaskRepository(db)
		},
		"redis": func(t *testing.T) TaskRepository {
			mr := miniredis.RunT(t)
			client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
			require.NoError(t, err)
			return NewRedisTaskRepository(client, "", "")
		},
	}
}

func nextSnapshot(t *testing.T, sub Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

// waitFor reads snapshots until cond holds; pushes may coalesce
func waitFor(t *testing.T, sub Subscription, cond func([]pkg.Task) bool) []pkg.Task {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-sub.Updates():
			require.True(t, ok, "subscription closed")
			if cond(snap.Tasks) {
				return snap.Tasks
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			return nil
		}
	}
}

func TestRepositoryContract(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			defer repo.Close()

			sub, err := repo.Subscribe(ctx)
			require.NoError(t, err)
			defer sub.Cancel()

			initial := nextSnapshot(t, sub)
			assert.Empty(t, initial.Tasks)

			base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
			older, err := repo.Create(ctx, pkg.Task{Title: "Buy milk", Priority: pkg.PriorityHigh, CreatedAt: base})
			require.NoError(t, err)
			assert.NotEmpty(t, older.ID, "repository assigns identity")

			newer, err := repo.Create(ctx, pkg.Task{Title: "Call mom", CreatedAt: base.Add(time.Minute)})
			require.NoError(t, err)
			assert.Equal(t, pkg.PriorityMedium, newer.Priority)

			tasks := waitFor(t, sub, func(ts []pkg.Task) bool { return len(ts) == 2 })
			assert.Equal(t, newer.ID, tasks[0].ID, "newest first")
			assert.Equal(t, older.ID, tasks[1].ID)

			pos := pkg.Vec3{X: 0.25, Y: -1, Z: -1.5}
			require.NoError(t, repo.Update(ctx, older.WithPosition(pos)))
			tasks = waitFor(t, sub, func(ts []pkg.Task) bool {
				for _, tk := range ts {
					if tk.ID == older.ID && tk.Placed() {
						return true
					}
				}
				return false
			})
			for _, tk := range tasks {
				if tk.ID == older.ID {
					assert.Equal(t, pos, *tk.Position)
					assert.Equal(t, "Buy milk", tk.Title)
					assert.True(t, tk.CreatedAt.Equal(base))
				}
			}

			require.NoError(t, repo.Delete(ctx, newer))
			tasks = waitFor(t, sub, func(ts []pkg.Task) bool { return len(ts) == 1 })
			assert.Equal(t, older.ID, tasks[0].ID)

			listed, err := repo.List(ctx)
			require.NoError(t, err)
			assert.Len(t, listed, 1)
		})
	}
}

func TestRepositoryIdentityRequired(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			defer repo.Close()

			anonymous := pkg.Task{Title: "No id", Priority: pkg.PriorityLow}
			assert.NoError(t, repo.Update(ctx, anonymous))
			assert.NoError(t, repo.Delete(ctx, anonymous))

			listed, err := repo.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, listed)
		})
	}
}

func TestRepositoryRejectsInvalidTask(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			defer repo.Close()

			_, err := repo.Create(context.Background(), pkg.Task{Title: "   "})
			assert.ErrorIs(t, err, pkg.ErrInvalidTask)
		})
	}
}

func TestSubscriptionCancelledWithContext(t *testing.T) {
	repo, err := NewMemoryTaskRepository()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := repo.Subscribe(ctx)
	require.NoError(t, err)
	nextSnapshot(t, sub)

	cancel()
	select {
	case _, ok := <-sub.Updates():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after context cancel")
	}

	// writes after cancellation must not panic on the closed mailbox
	_, err = repo.Create(context.Background(), pkg.Task{Title: "late"})
	require.NoError(t, err)
}

func TestMailboxKeepsOnlyLatest(t *testing.T) {
	m := newMailbox(nil)
	m.offer([]pkg.Task{{ID: "1"}})
	m.offer([]pkg.Task{{ID: "2"}})
	m.offer([]pkg.Task{{ID: "3"}})

	snap := <-m.Updates()
	assert.Equal(t, uint64(3), snap.Seq)
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "3", snap.Tasks[0].ID)

	select {
	case <-m.Updates():
		t.Fatal("older snapshots must be superseded, not queued")
	default:
	}
	m.Cancel()
	m.Cancel()
}

func TestRedisDropsMalformedRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := NewRedisClient(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	repo := NewRedisTaskRepository(client, "", "")
	defer repo.Close()

	good, err := repo.Create(ctx, pkg.Task{Title: "Valid"})
	require.NoError(t, err)

	mr.HSet(DefaultRedisKey, "broken", "{not json")
	mr.HSet(DefaultRedisKey, "untitled", `{"title":"","priority":"low"}`)
	mr.HSet(DefaultRedisKey, "weird", `{"title":"x","priority":"urgent"}`)

	tasks, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, good.ID, tasks[0].ID)
}

func TestRedisPushSeesOtherWriters(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	readerClient, err := NewRedisClient(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	reader := NewRedisTaskRepository(readerClient, "", "")
	defer reader.Close()

	writer := NewRedisTaskRepository(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", "")
	defer writer.Close()

	sub, err := reader.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Cancel()
	nextSnapshot(t, sub)

	created, err := writer.Create(ctx, pkg.Task{Title: "From another device"})
	require.NoError(t, err)

	tasks := waitFor(t, sub, func(ts []pkg.Task) bool { return len(ts) == 1 })
	assert.Equal(t, created.ID, tasks[0].ID)
}

func TestNewRedisClientErrors(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "")
	assert.Error(t, err)

	_, err = NewRedisClient(context.Background(), "::not a url")
	assert.Error(t, err)
}

func TestFileRepositoryDropsMalformedElements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	content := `[
		{"id":"a","title":"Keep me","priority":"low","created_at":"2025-01-01T00:00:00Z"},
		{"id":"b","title":"","priority":"low"},
		{"title":"no id","priority":"high"},
		42
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	repo := NewFileTaskRepository(path)
	tasks, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "a", tasks[0].ID)
}

type failingRepo struct {
	TaskRepository
}

func (failingRepo) Update(context.Context, pkg.Task) error {
	return errors.New("network unreachable")
}

func TestAsyncWriterAbsorbsFailures(t *testing.T) {
	mem, err := NewMemoryTaskRepository()
	require.NoError(t, err)

	w := NewAsyncWriter(context.Background(), failingRepo{TaskRepository: mem}, time.Second)
	w.Update(pkg.Task{ID: "x", Title: "X", Priority: pkg.PriorityLow})
	w.Update(pkg.Task{Title: "no identity"})
	w.Wait()

	assert.Equal(t, int64(1), w.Failed())
}

func TestAsyncWriterWrites(t *testing.T) {
	ctx := context.Background()
	mem, err := NewMemoryTaskRepository(pkg.Task{ID: "t1", Title: "Seeded", Priority: pkg.PriorityLow})
	require.NoError(t, err)

	w := NewAsyncWriter(ctx, mem, 0)
	w.Update(pkg.Task{ID: "t1", Title: "Seeded", Priority: pkg.PriorityLow}.WithPosition(pkg.Vec3{Z: -1}))
	w.Wait()

	tasks, err := mem.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Placed())
	assert.Zero(t, w.Failed())
}
