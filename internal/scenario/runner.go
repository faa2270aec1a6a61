package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"anchorsync/internal/core"
	"anchorsync/internal/gesture"
	"anchorsync/internal/placement"
	"anchorsync/internal/scene"
	"anchorsync/internal/storage"
	"anchorsync/pkg"
	"anchorsync/src/logger"
)

const (
	defaultExpectWithin = time.Second
	pollInterval        = 10 * time.Millisecond
)

var ErrExpectation = errors.New("expectation not met")

// StepResult records what one step did
type StepResult struct {
	Index  int
	Action string
	Detail string
}

// Report summarizes a finished run
type Report struct {
	Name     string
	Steps    []StepResult
	Entities []scene.EntityView
	Tasks    []pkg.Task
	Progress pkg.Progress
	Scale    float64
}

// Runner drives an engine from scenario steps
type Runner struct {
	engine  *core.Engine
	tracker *placement.StaticTracker
	camera  placement.Camera
}

func NewRunner(engine *core.Engine, tracker *placement.StaticTracker, camera placement.Camera) *Runner {
	return &Runner{engine: engine, tracker: tracker, camera: camera}
}

// Play builds an engine over repo for the file's world, runs every step and
// stops the engine. Call Seed first to load the file's tasks.
func Play(ctx context.Context, f *File, repo storage.TaskRepository, opts core.Options) (Report, error) {
	tracker := f.Tracker()
	camera := f.InitialCamera()
	engine := core.NewEngine(repo, tracker, camera, opts)
	if err := engine.Start(ctx); err != nil {
		return Report{Name: f.Name}, err
	}
	defer engine.Stop()

	if err := waitForSnapshot(ctx, engine, repo); err != nil {
		return Report{Name: f.Name}, err
	}
	return NewRunner(engine, tracker, camera).Run(ctx, f)
}

// Seed writes the file's tasks, creating missing ones and overwriting existing ones
func Seed(ctx context.Context, repo storage.TaskRepository, f *File) error {
	seed, err := f.SeedTasks()
	if err != nil {
		return err
	}
	existing, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = true
	}

	for _, t := range seed {
		if t.ID != "" && known[t.ID] {
			err = repo.Update(ctx, t)
		} else {
			_, err = repo.Create(ctx, t)
		}
		if err != nil {
			return fmt.Errorf("failed to seed task %q: %w", t.Title, err)
		}
	}
	return nil
}

// waitForSnapshot blocks until the engine has seen the repository's current contents
func waitForSnapshot(ctx context.Context, engine *core.Engine, repo storage.TaskRepository) error {
	want, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	return poll(ctx, 2*time.Second, func() (bool, error) {
		tasks, err := engine.Tasks(ctx)
		if err != nil {
			return false, err
		}
		return len(tasks) == len(want), nil
	})
}

// Run executes the steps in order and stops at the first error
func (r *Runner) Run(ctx context.Context, f *File) (Report, error) {
	report := Report{Name: f.Name}
	for i, step := range f.Steps {
		detail, err := r.step(ctx, step)
		if err != nil {
			return report, fmt.Errorf("step %d (%s): %w", i+1, step.Action(), err)
		}
		report.Steps = append(report.Steps, StepResult{Index: i + 1, Action: step.Action(), Detail: detail})
		logger.Debug().Int("step", i+1).Str("action", step.Action()).Str("detail", detail).Msg("scenario step")
	}

	var err error
	if report.Entities, err = r.engine.Entities(ctx); err != nil {
		return report, err
	}
	if report.Tasks, err = r.engine.Tasks(ctx); err != nil {
		return report, err
	}
	if report.Progress, err = r.engine.Progress(ctx); err != nil {
		return report, err
	}
	if report.Scale, err = r.engine.Scale(ctx); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) step(ctx context.Context, s Step) (string, error) {
	switch {
	case s.Select != "":
		if err := r.engine.Select(ctx, s.Select); err != nil {
			return "", err
		}
		return "selected " + s.Select, nil

	case s.Cancel:
		return "selection cleared", r.engine.Cancel(ctx)

	case s.Tap != nil:
		p := placement.ScreenPoint{X: s.Tap.X, Y: s.Tap.Y}
		if s.Tap.Center {
			p = r.camera.Center()
		}
		res, err := r.engine.Tap(ctx, p)
		if err != nil {
			return "", err
		}
		if res.Outcome == core.TapPlaced {
			return fmt.Sprintf("placed %s at %s", res.Task.ID, res.Position), nil
		}
		return string(res.Outcome), nil

	case s.Pinch != nil:
		phase, err := gesture.ParsePhase(s.Pinch.Phase)
		if err != nil {
			return "", err
		}
		scale, err := r.engine.Pinch(ctx, phase, s.Pinch.Factor)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pinch %s scale %.2f", phase, scale), nil

	case s.Rotate != nil:
		phase, err := gesture.ParsePhase(s.Rotate.Phase)
		if err != nil {
			return "", err
		}
		delta := s.Rotate.Degrees * math.Pi / 180
		if err := r.engine.Rotate(ctx, phase, delta); err != nil {
			return "", err
		}
		return fmt.Sprintf("rotate %s %.1f°", phase, s.Rotate.Degrees), nil

	case s.Zoom != "":
		scale, err := r.engine.Zoom(ctx, core.Zoom(s.Zoom))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("zoom %s scale %.2f", s.Zoom, scale), nil

	case s.Scale != nil:
		scale, err := r.engine.SetScale(ctx, *s.Scale)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("scale %.2f", scale), nil

	case s.Camera != nil:
		r.camera = s.Camera.camera()
		return "camera moved", r.engine.SetCamera(ctx, r.camera)

	case s.Surface != nil:
		r.tracker.Upsert(s.Surface.surface())
		return "surface " + s.Surface.ID, nil

	case s.Wait > 0:
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.Wait):
		}
		return "waited " + s.Wait.String(), nil

	case s.Expect != nil:
		return r.expect(ctx, *s.Expect)
	}
	return "", errors.New("empty step")
}

func (r *Runner) expect(ctx context.Context, e ExpectSpec) (string, error) {
	within := e.Within
	if within <= 0 {
		within = defaultExpectWithin
	}

	var last string
	err := poll(ctx, within, func() (bool, error) {
		views, err := r.engine.Entities(ctx)
		if err != nil {
			return false, err
		}
		if e.Entities != nil && len(views) != *e.Entities {
			last = fmt.Sprintf("%d entities, want %d", len(views), *e.Entities)
			return false, nil
		}
		for _, id := range e.Placed {
			if !slices.ContainsFunc(views, func(v scene.EntityView) bool { return v.Key == id }) {
				last = fmt.Sprintf("task %s not placed", id)
				return false, nil
			}
		}
		if e.Scale != nil {
			scale, err := r.engine.Scale(ctx)
			if err != nil {
				return false, err
			}
			if math.Abs(scale-*e.Scale) > 1e-9 {
				last = fmt.Sprintf("scale %.3f, want %.3f", scale, *e.Scale)
				return false, nil
			}
		}
		return true, nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %s", ErrExpectation, last)
	}
	if err != nil {
		return "", err
	}
	return "ok", nil
}

// poll calls cond until it reports true, fails, or within elapses
func poll(ctx context.Context, within time.Duration, cond func() (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, within)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
