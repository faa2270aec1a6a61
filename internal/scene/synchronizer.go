package scene

import (
	"errors"
	"time"

	"anchorsync/internal/metrics"
	"anchorsync/pkg"
	"anchorsync/src/logger"
)

// DefaultPlacementDelay is how long after a placement the scene is rebuilt
const DefaultPlacementDelay = 100 * time.Millisecond

// ErrNoSelection is returned when placing with no task selected
var ErrNoSelection = errors.New("no task selected for placement")

// TaskWriter issues fire-and-forget repository updates
type TaskWriter interface {
	Update(task pkg.Task)
}

// Scheduler runs fn on the scene's event context after d
type Scheduler interface {
	After(d time.Duration, fn func())
}

// Diff lists the entity keys touched by one reconciliation
type Diff struct {
	Created []string
	Updated []string
	Removed []string
}

// Empty reports whether the reconciliation changed nothing
func (d Diff) Empty() bool {
	return len(d.Created) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Synchronizer keeps the scene consistent with the latest task snapshot and
// commits placement intents back to the repository.
//
// All methods must be called from the single event context that owns the scene.
type Synchronizer struct {
	scene     *Scene
	factory   *Factory
	writer    TaskWriter
	scheduler Scheduler
	delay     time.Duration

	session PlacementSession

	latest    []pkg.Task
	hasLatest bool
	stale     bool // a snapshot arrived while a placement was pending
}

// NewSynchronizer wires the synchronizer; a non-positive delay uses DefaultPlacementDelay
func NewSynchronizer(scene *Scene, factory *Factory, writer TaskWriter, scheduler Scheduler, delay time.Duration) *Synchronizer {
	if delay <= 0 {
		delay = DefaultPlacementDelay
	}
	return &Synchronizer{
		scene:     scene,
		factory:   factory,
		writer:    writer,
		scheduler: scheduler,
		delay:     delay,
	}
}

// Reconcile records tasks as the latest snapshot and brings the scene in line
// with it. While a placement session is active the scene is left untouched so
// an in-flight placement is not reverted; the snapshot is applied later.
func (s *Synchronizer) Reconcile(tasks []pkg.Task) (Diff, bool) {
	s.latest = tasks
	s.hasLatest = true

	if s.session.Active() {
		s.stale = true
		metrics.ReconcileSkipped.Inc()
		logger.Debug().Int("tasks", len(tasks)).Msg("reconcile deferred: placement pending")
		return Diff{}, false
	}
	return s.apply(tasks), true
}

// ReconcileLatest re-applies the most recent snapshot
func (s *Synchronizer) ReconcileLatest() (Diff, bool) {
	if !s.hasLatest {
		return Diff{}, false
	}
	return s.Reconcile(s.latest)
}

// Flush applies a snapshot that was held back during a placement session
func (s *Synchronizer) Flush() (Diff, bool) {
	if !s.stale || s.session.Active() {
		return Diff{}, false
	}
	return s.apply(s.latest), true
}

func (s *Synchronizer) apply(tasks []pkg.Task) Diff {
	s.stale = false

	want := make(map[string]pkg.Task, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.ID == "" || t.Position == nil {
			continue
		}
		if _, dup := want[t.ID]; dup {
			logger.Warn().Str("task_id", t.ID).Msg("duplicate task id in snapshot, keeping newest")
			continue
		}
		want[t.ID] = t
		order = append(order, t.ID)
	}

	var diff Diff
	for _, key := range s.scene.Keys() {
		if _, ok := want[key]; !ok {
			s.scene.Remove(key)
			diff.Removed = append(diff.Removed, key)
		}
	}

	for _, key := range order {
		task := want[key]
		e, ok := s.scene.Get(key)
		if !ok {
			s.scene.Add(s.factory.Build(task))
			diff.Created = append(diff.Created, key)
			continue
		}

		changed := false
		if app := s.factory.Appearance(task); app != e.Appearance {
			e.Appearance = app
			changed = true
		}
		if *task.Position != e.Position {
			e.Position = *task.Position
			changed = true
		}
		if changed {
			s.scene.Refresh(e)
			diff.Updated = append(diff.Updated, key)
		}
	}

	metrics.ObserveReconcile(len(diff.Created), len(diff.Updated), len(diff.Removed))
	if !diff.Empty() {
		logger.Debug().
			Int("created", len(diff.Created)).
			Int("updated", len(diff.Updated)).
			Int("removed", len(diff.Removed)).
			Int("entities", s.scene.Len()).
			Msg("scene reconciled")
	}
	return diff
}

// Select starts (or replaces) the placement session
func (s *Synchronizer) Select(task pkg.Task) {
	if prev, ok := s.session.Task(); ok && prev.ID != task.ID {
		logger.Debug().Str("previous", prev.ID).Str("task_id", task.ID).Msg("placement selection replaced")
	}
	s.session.Select(task)
}

// Cancel clears the placement session without any other effect
func (s *Synchronizer) Cancel() {
	s.session.Clear()
}

// Selected returns the task awaiting placement
func (s *Synchronizer) Selected() (pkg.Task, bool) {
	return s.session.Task()
}

// PlaceSelected anchors the selected task at pos.
//
// It issues exactly one repository update, clears the session whatever the
// write's eventual outcome, patches the cached snapshot optimistically and
// schedules one reconciliation after the placement delay.
func (s *Synchronizer) PlaceSelected(pos pkg.Vec3) (pkg.Task, error) {
	selected, ok := s.session.Task()
	if !ok {
		metrics.PlacementOutcomes.WithLabelValues("no_selection").Inc()
		return pkg.Task{}, ErrNoSelection
	}
	if fresh, found := s.find(selected.ID); found {
		selected = fresh
	}

	placed := selected.WithPosition(pos)
	s.writer.Update(placed)
	s.session.Clear()
	s.patchLatest(placed)
	s.scheduler.After(s.delay, func() { s.ReconcileLatest() })

	metrics.PlacementOutcomes.WithLabelValues("placed").Inc()
	logger.Info().Str("task_id", placed.ID).Str("position", pos.String()).Msg("task placed")
	return placed, nil
}

// Latest returns the most recent snapshot seen, including optimistic patches
func (s *Synchronizer) Latest() []pkg.Task {
	return s.latest
}

func (s *Synchronizer) find(id string) (pkg.Task, bool) {
	if id == "" {
		return pkg.Task{}, false
	}
	for _, t := range s.latest {
		if t.ID == id {
			return t, true
		}
	}
	return pkg.Task{}, false
}

// patchLatest replaces task in a copy of the cached snapshot; snapshots are shared and never mutated
func (s *Synchronizer) patchLatest(task pkg.Task) {
	if task.ID == "" || !s.hasLatest {
		return
	}
	patched := make([]pkg.Task, len(s.latest))
	copy(patched, s.latest)
	for i := range patched {
		if patched[i].ID == task.ID {
			patched[i] = task
		}
	}
	s.latest = patched
}
