package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorsync/internal/storage"
	"anchorsync/pkg"
)

func newService(t *testing.T, seed ...pkg.Task) (*TaskService, *storage.MemoryTaskRepository) {
	t.Helper()
	repo, err := storage.NewMemoryTaskRepository(seed...)
	require.NoError(t, err)
	return NewTaskService(repo), repo
}

func TestAddTask(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	task, err := svc.Add(ctx, "  Buy milk ", "2 liters", "")
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "Buy milk", task.Title)
	assert.Equal(t, pkg.PriorityMedium, task.Priority)
	assert.False(t, task.Completed)
	assert.False(t, task.Placed())
	assert.False(t, task.CreatedAt.IsZero())

	_, err = svc.Add(ctx, "   ", "", pkg.PriorityHigh)
	assert.ErrorIs(t, err, ErrEmptyTitle)

	_, err = svc.Add(ctx, "Odd", "", pkg.Priority("urgent"))
	assert.ErrorIs(t, err, pkg.ErrInvalidTask)
}

func TestToggleCompleted(t *testing.T) {
	placed := pkg.Task{ID: "abc123", Title: "Water plants", Priority: pkg.PriorityLow}.WithPosition(pkg.Vec3{Z: -1})
	svc, repo := newService(t, placed)
	ctx := context.Background()

	task, err := svc.ToggleCompleted(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.True(t, task.Placed(), "toggling keeps the anchor")

	stored, err := repo.List(ctx)
	require.NoError(t, err)
	assert.True(t, stored[0].Completed)

	task, err = svc.ToggleCompleted(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, task.Completed)
}

func TestDeleteAndProgress(t *testing.T) {
	svc, _ := newService(t,
		pkg.Task{ID: "a1", Title: "A", Priority: pkg.PriorityLow, Completed: true},
		pkg.Task{ID: "b1", Title: "B", Priority: pkg.PriorityHigh},
		pkg.Task{ID: "b2", Title: "C", Priority: pkg.PriorityHigh},
	)
	ctx := context.Background()

	p, err := svc.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, pkg.Progress{Completed: 1, Total: 3}, p)

	_, err = svc.Delete(ctx, "b")
	assert.Error(t, err, "ambiguous prefix")

	_, err = svc.Delete(ctx, "b2")
	require.NoError(t, err)

	_, err = svc.Delete(ctx, "zz")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	p, err = svc.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)
	assert.InDelta(t, 0.5, p.Fraction(), 1e-12)
}

func TestSearch(t *testing.T) {
	svc, _ := newService(t,
		pkg.Task{ID: "1", Title: "Buy milk", Priority: pkg.PriorityLow},
		pkg.Task{ID: "2", Title: "Call mom", Description: "about the MILK delivery", Priority: pkg.PriorityLow},
		pkg.Task{ID: "3", Title: "Fix bike", Priority: pkg.PriorityLow},
	)

	found, err := svc.Search(context.Background(), "milk")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	all, err := svc.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
