package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"anchorsync/internal/gesture"
	"anchorsync/internal/metrics"
	"anchorsync/internal/placement"
	"anchorsync/internal/scene"
	"anchorsync/internal/storage"
	"anchorsync/pkg"
	"anchorsync/src/logger"
)

// Engine wires the repository push channel, the placement resolver and the
// gesture controller to one scene, all driven from a single event loop.
type Engine struct {
	repo    storage.TaskRepository
	tracker placement.Tracker
	opts    Options

	loop   *EventLoop
	writer *storage.AsyncWriter
	sub    storage.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// owned by the loop
	scene      *scene.Scene
	syncer     *scene.Synchronizer
	resolver   *placement.Resolver
	gestures   *gesture.Controller
	appliedSeq uint64

	latest   atomic.Pointer[storage.Snapshot]
	enabled  atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once
}

// NewEngine builds an engine; call Start to attach it to the repository
func NewEngine(repo storage.TaskRepository, tracker placement.Tracker, camera placement.Camera, opts Options) *Engine {
	sc := scene.NewScene(opts.Renderer)
	return &Engine{
		repo:     repo,
		tracker:  tracker,
		opts:     opts,
		loop:     NewEventLoop(opts.QueueSize),
		scene:    sc,
		resolver: placement.NewResolver(tracker, camera),
		gestures: gesture.NewController(sc, gesture.Options{
			MinScale: opts.MinScale,
			MaxScale: opts.MaxScale,
			ZoomStep: opts.ZoomStep,
		}),
	}
}

// Start subscribes to the repository and runs the event loop until ctx ends or Stop is called.
// Without tracking support nothing is started and ErrSpatialUnsupported is returned.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already started")
	}
	if !e.tracker.Supported() {
		metrics.PlacementOutcomes.WithLabelValues("unsupported").Inc()
		logger.Warn().Msg("spatial tracking unsupported, spatial features disabled")
		return ErrSpatialUnsupported
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.writer = storage.NewAsyncWriter(ctx, e.repo, e.opts.WriteTimeout)
	e.syncer = scene.NewSynchronizer(
		e.scene,
		scene.NewFactory(e.opts.BoxSize, e.opts.LabelMargin),
		e.writer,
		e.loop,
		e.opts.PlacementDelay,
	)

	sub, err := e.repo.Subscribe(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to tasks: %w", err)
	}
	e.sub = sub
	e.enabled.Store(true)

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		if err := e.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("event loop stopped")
		}
	}()
	go func() {
		defer e.wg.Done()
		e.pump(sub)
	}()

	logger.Info().Msg("engine started")
	return nil
}

// pump hands every snapshot to the loop; a newer snapshot supersedes an unapplied older one
func (e *Engine) pump(sub storage.Subscription) {
	for snap := range sub.Updates() {
		s := snap
		e.latest.Store(&s)
		metrics.Snapshots.Inc()
		if !e.loop.Post(e.applyLatest) {
			return
		}
	}
	logger.Debug().Msg("task subscription closed")
}

func (e *Engine) applyLatest() {
	snap := e.latest.Load()
	if snap == nil || snap.Seq <= e.appliedSeq {
		return
	}
	e.appliedSeq = snap.Seq
	e.syncer.Reconcile(snap.Tasks)
}

// Stop cancels the subscription, stops the loop and waits for in-flight writes
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel == nil {
			return
		}
		e.cancel()
		if e.sub != nil {
			e.sub.Cancel()
		}
		e.wg.Wait()
		e.writer.Wait()
		e.enabled.Store(false)
		logger.Info().Msg("engine stopped")
	})
}

// Enabled reports whether spatial features are running
func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// Notice returns the static message shown when spatial features are unavailable
func (e *Engine) Notice() string {
	if e.tracker.Supported() {
		return ""
	}
	return UnsupportedNotice
}

// do runs fn on the loop after checking the engine can serve spatial requests
func (e *Engine) do(ctx context.Context, fn func()) error {
	if !e.tracker.Supported() {
		return ErrSpatialUnsupported
	}
	if !e.enabled.Load() {
		return ErrEngineStopped
	}
	return e.loop.Do(ctx, fn)
}

// Select makes the task with id the pending placement
func (e *Engine) Select(ctx context.Context, id string) error {
	var found bool
	err := e.do(ctx, func() {
		for _, t := range e.syncer.Latest() {
			if t.ID == id {
				e.syncer.Select(t)
				found = true
				return
			}
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return nil
}

// Cancel clears the pending placement and applies any snapshot held back meanwhile
func (e *Engine) Cancel(ctx context.Context) error {
	return e.do(ctx, func() {
		e.syncer.Cancel()
		e.syncer.Flush()
	})
}

// Selected returns the task awaiting placement
func (e *Engine) Selected(ctx context.Context) (pkg.Task, bool, error) {
	var (
		task pkg.Task
		ok   bool
	)
	err := e.do(ctx, func() { task, ok = e.syncer.Selected() })
	return task, ok, err
}

// Tap resolves a screen tap and places the selected task there.
// A miss leaves the selection in place for another try.
func (e *Engine) Tap(ctx context.Context, p placement.ScreenPoint) (TapResult, error) {
	var res TapResult
	err := e.do(ctx, func() {
		if _, ok := e.syncer.Selected(); !ok {
			metrics.PlacementOutcomes.WithLabelValues(string(TapNoSelection)).Inc()
			res.Outcome = TapNoSelection
			return
		}

		pos, err := e.resolver.Resolve(p)
		if err != nil {
			metrics.PlacementOutcomes.WithLabelValues(string(TapMissed)).Inc()
			res.Outcome = TapMissed
			return
		}

		placed, err := e.syncer.PlaceSelected(pos)
		if err != nil {
			res.Outcome = TapNoSelection
			return
		}
		res = TapResult{Outcome: TapPlaced, Task: placed, Position: pos}
	})
	return res, err
}

// Pinch feeds a pinch gesture event and returns the displayed scale
func (e *Engine) Pinch(ctx context.Context, phase gesture.Phase, factor float64) (float64, error) {
	var scale float64
	err := e.do(ctx, func() { scale = e.gestures.Pinch(phase, factor) })
	return scale, err
}

// Rotate feeds a rotation gesture event with an incremental angle in radians
func (e *Engine) Rotate(ctx context.Context, phase gesture.Phase, delta float64) error {
	return e.do(ctx, func() { e.gestures.Rotate(phase, delta) })
}

// Zoom applies a discrete zoom control and returns the committed scale
func (e *Engine) Zoom(ctx context.Context, z Zoom) (float64, error) {
	var scale float64
	var bad bool
	err := e.do(ctx, func() {
		switch z {
		case ZoomIn:
			scale = e.gestures.ZoomIn()
		case ZoomOut:
			scale = e.gestures.ZoomOut()
		case ZoomReset:
			scale = e.gestures.ResetScale()
		default:
			bad = true
		}
	})
	if err == nil && bad {
		return 0, fmt.Errorf("unknown zoom control %q", z)
	}
	return scale, err
}

// SetScale commits a display scale, clamped to the configured range
func (e *Engine) SetScale(ctx context.Context, s float64) (float64, error) {
	var scale float64
	err := e.do(ctx, func() { scale = e.gestures.SetScale(s) })
	return scale, err
}

// SetCamera re-poses the viewing camera used for taps
func (e *Engine) SetCamera(ctx context.Context, c placement.Camera) error {
	return e.do(ctx, func() { e.resolver.SetCamera(c) })
}

// Entities returns a copy of the placed entities
func (e *Engine) Entities(ctx context.Context) ([]scene.EntityView, error) {
	var views []scene.EntityView
	err := e.do(ctx, func() { views = e.scene.Views() })
	return views, err
}

// Tasks returns the latest snapshot as seen by the scene, including an optimistic placement
func (e *Engine) Tasks(ctx context.Context) ([]pkg.Task, error) {
	var tasks []pkg.Task
	err := e.do(ctx, func() {
		latest := e.syncer.Latest()
		tasks = make([]pkg.Task, len(latest))
		copy(tasks, latest)
	})
	return tasks, err
}

// Progress counts completed tasks in the latest snapshot
func (e *Engine) Progress(ctx context.Context) (pkg.Progress, error) {
	var p pkg.Progress
	err := e.do(ctx, func() { p = pkg.ComputeProgress(e.syncer.Latest()) })
	return p, err
}

// Scale returns the committed display scale
func (e *Engine) Scale(ctx context.Context) (float64, error) {
	var s float64
	err := e.do(ctx, func() { s = e.gestures.Scale() })
	return s, err
}
