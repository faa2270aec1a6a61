package scene

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorsync/pkg"
)

type recordingWriter struct {
	updates []pkg.Task
}

func (w *recordingWriter) Update(task pkg.Task) {
	w.updates = append(w.updates, task)
}

type manualScheduler struct {
	delays  []time.Duration
	pending []func()
}

func (s *manualScheduler) After(d time.Duration, fn func()) {
	s.delays = append(s.delays, d)
	s.pending = append(s.pending, fn)
}

func (s *manualScheduler) RunAll() {
	fns := s.pending
	s.pending = nil
	for _, fn := range fns {
		fn()
	}
}

func placedTask(id, title string, prio pkg.Priority, pos pkg.Vec3) pkg.Task {
	return pkg.Task{ID: id, Title: title, Priority: prio}.WithPosition(pos)
}

func newTestSync() (*Synchronizer, *Scene, *recordingWriter, *manualScheduler) {
	sc := NewScene(nil)
	w := &recordingWriter{}
	sched := &manualScheduler{}
	return NewSynchronizer(sc, NewFactory(0, 0), w, sched, 0), sc, w, sched
}

// every placed task has exactly one entity and nothing else does
func assertMirrors(t *testing.T, sc *Scene, tasks []pkg.Task) {
	t.Helper()
	var want []string
	for _, task := range tasks {
		if task.Placed() {
			want = append(want, task.ID)
			e, ok := sc.Get(task.ID)
			require.True(t, ok, "missing entity for %s", task.ID)
			assert.Equal(t, *task.Position, e.Position)
			assert.Equal(t, task.Title, e.Appearance.Label.Text)
			assert.Equal(t, ColorFor(task), e.Appearance.Base.Color)
		}
	}
	assert.ElementsMatch(t, want, sc.Keys())
}

func TestReconcileCreatesUpdatesRemoves(t *testing.T) {
	s, sc, _, _ := newTestSync()

	first := []pkg.Task{
		placedTask("a", "Buy milk", pkg.PriorityHigh, pkg.Vec3{X: 1}),
		placedTask("b", "Call mom", pkg.PriorityLow, pkg.Vec3{Z: -1}),
		{ID: "c", Title: "Unplaced", Priority: pkg.PriorityMedium},
	}
	diff, applied := s.Reconcile(first)
	require.True(t, applied)
	assert.ElementsMatch(t, []string{"a", "b"}, diff.Created)
	assert.Empty(t, diff.Updated)
	assert.Empty(t, diff.Removed)
	assertMirrors(t, sc, first)

	moved := first[0].WithPosition(pkg.Vec3{X: 2})
	moved.Completed = true
	second := []pkg.Task{moved, first[2]}
	diff, applied = s.Reconcile(second)
	require.True(t, applied)
	assert.Empty(t, diff.Created)
	assert.Equal(t, []string{"a"}, diff.Updated)
	assert.Equal(t, []string{"b"}, diff.Removed)
	assertMirrors(t, sc, second)

	e, _ := sc.Get("a")
	assert.Equal(t, ColorGreen, e.Appearance.Base.Color)
}

func TestReconcileIsIdempotent(t *testing.T) {
	s, sc, _, _ := newTestSync()
	tasks := []pkg.Task{
		placedTask("a", "One", pkg.PriorityMedium, pkg.Vec3{X: 1}),
		placedTask("b", "Two", pkg.PriorityHigh, pkg.Vec3{Y: 1}),
	}

	_, _ = s.Reconcile(tasks)
	before := sc.Views()

	diff, applied := s.Reconcile(tasks)
	require.True(t, applied)
	assert.True(t, diff.Empty())
	assert.Equal(t, before, sc.Views())
}

func TestReconcileTitleChangeRelabels(t *testing.T) {
	s, sc, _, _ := newTestSync()
	task := placedTask("a", "Old", pkg.PriorityLow, pkg.Vec3{})
	s.Reconcile([]pkg.Task{task})

	task.Title = "New"
	diff, _ := s.Reconcile([]pkg.Task{task})
	assert.Equal(t, []string{"a"}, diff.Updated)

	e, _ := sc.Get("a")
	assert.Equal(t, "New", e.Appearance.Label.Text)
}

func TestReconcileSkippedWhilePlacementPending(t *testing.T) {
	s, sc, _, _ := newTestSync()
	s.Reconcile([]pkg.Task{placedTask("a", "One", pkg.PriorityLow, pkg.Vec3{})})

	s.Select(pkg.Task{ID: "b", Title: "Two", Priority: pkg.PriorityHigh})
	_, applied := s.Reconcile(nil)
	assert.False(t, applied)
	assert.Equal(t, 1, sc.Len(), "scene must not change while placing")

	s.Cancel()
	assert.Equal(t, 1, sc.Len(), "cancel has no effect besides clearing the selection")

	diff, applied := s.Flush()
	require.True(t, applied)
	assert.Equal(t, []string{"a"}, diff.Removed)
	assert.Zero(t, sc.Len())
}

// select, tap, placement write, delayed rebuild
func TestPlaceSelectedFlow(t *testing.T) {
	s, sc, w, sched := newTestSync()
	t1 := pkg.Task{ID: "t1", Title: "Buy milk", Priority: pkg.PriorityHigh}
	s.Reconcile([]pkg.Task{t1})
	require.Zero(t, sc.Len())

	s.Select(t1)
	pos := pkg.Vec3{X: 0.2, Y: 0, Z: -1.5}
	placed, err := s.PlaceSelected(pos)
	require.NoError(t, err)

	require.Len(t, w.updates, 1)
	assert.Equal(t, "t1", w.updates[0].ID)
	assert.Equal(t, pos, *w.updates[0].Position)
	assert.Equal(t, placed, w.updates[0])

	_, selected := s.Selected()
	assert.False(t, selected)

	require.Len(t, sched.delays, 1)
	assert.Equal(t, DefaultPlacementDelay, sched.delays[0])

	sched.RunAll()
	e, ok := sc.Get("t1")
	require.True(t, ok, "rebuild uses the optimistically patched snapshot")
	assert.Equal(t, pos, e.Position)
	assert.Equal(t, ColorRed, e.Appearance.Base.Color)
	assert.Equal(t, "Buy milk", e.Appearance.Label.Text)

	// the push arrives later with the same content; nothing changes
	diff, _ := s.Reconcile([]pkg.Task{placed})
	assert.True(t, diff.Empty())
}

func TestPlaceSelectedWithoutSelection(t *testing.T) {
	s, _, w, sched := newTestSync()

	_, err := s.PlaceSelected(pkg.Vec3{})
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Empty(t, w.updates)
	assert.Empty(t, sched.pending)
}

func TestSelectReplacesPreviousSelection(t *testing.T) {
	s, _, w, _ := newTestSync()
	s.Select(pkg.Task{ID: "a", Title: "A", Priority: pkg.PriorityLow})
	s.Select(pkg.Task{ID: "b", Title: "B", Priority: pkg.PriorityLow})

	_, err := s.PlaceSelected(pkg.Vec3{X: 1})
	require.NoError(t, err)
	require.Len(t, w.updates, 1)
	assert.Equal(t, "b", w.updates[0].ID)
}

func TestPlaceSelectedUsesFreshestTaskContent(t *testing.T) {
	s, _, w, _ := newTestSync()
	stale := pkg.Task{ID: "a", Title: "Before", Priority: pkg.PriorityLow}
	s.Reconcile([]pkg.Task{stale})
	s.Select(stale)

	renamed := stale
	renamed.Title = "After"
	s.Reconcile([]pkg.Task{renamed})

	_, err := s.PlaceSelected(pkg.Vec3{})
	require.NoError(t, err)
	assert.Equal(t, "After", w.updates[0].Title)
}

func TestNewEntitiesInheritDisplayTransform(t *testing.T) {
	s, sc, _, _ := newTestSync()
	sc.SetScale(2)

	s.Reconcile([]pkg.Task{placedTask("a", "A", pkg.PriorityLow, pkg.Vec3{})})
	e, _ := sc.Get("a")
	assert.Equal(t, 2.0, e.Scale)
}

func TestFactoryAppearance(t *testing.T) {
	f := NewFactory(0.2, 0.1)

	tests := []struct {
		name string
		task pkg.Task
		want Color
	}{
		{"high", pkg.Task{Priority: pkg.PriorityHigh}, ColorRed},
		{"medium", pkg.Task{Priority: pkg.PriorityMedium}, ColorOrange},
		{"low", pkg.Task{Priority: pkg.PriorityLow}, ColorBlue},
		{"completed overrides priority", pkg.Task{Priority: pkg.PriorityHigh, Completed: true}, ColorGreen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := f.Appearance(tt.task)
			assert.Equal(t, tt.want, app.Base.Color)
			assert.Equal(t, 0.2, app.Base.Size)
			assert.InDelta(t, 0.2, app.Label.Offset.Y, 1e-12)
		})
	}
}
