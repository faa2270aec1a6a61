// Package scenario replays scripted input sessions against the engine.
//
// A scenario file describes the tracked world (device support, camera pose,
// detected surfaces), the seed tasks and an ordered list of steps. Each step
// carries exactly one action.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"anchorsync/internal/gesture"
	"anchorsync/internal/placement"
	"anchorsync/pkg"
)

// File is the top-level scenario document
type File struct {
	Name      string        `yaml:"name"`
	Supported *bool         `yaml:"supported"` // defaults to true
	Camera    *CameraSpec   `yaml:"camera"`
	Surfaces  []SurfaceSpec `yaml:"surfaces"`
	Tasks     []TaskSpec    `yaml:"tasks"`
	Steps     []Step        `yaml:"steps"`
}

type CameraSpec struct {
	Origin  pkg.Vec3  `yaml:"origin"`
	Forward *pkg.Vec3 `yaml:"forward"`
	Up      *pkg.Vec3 `yaml:"up"`
	FovDeg  float64   `yaml:"fov_deg"`
	Width   float64   `yaml:"width"`
	Height  float64   `yaml:"height"`
}

type SurfaceSpec struct {
	ID        string   `yaml:"id"`
	Center    pkg.Vec3 `yaml:"center"`
	Normal    pkg.Vec3 `yaml:"normal"`
	Alignment string   `yaml:"alignment"`
	Extent    float64  `yaml:"extent"`
	Estimated bool     `yaml:"estimated"`
}

type TaskSpec struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Priority    string    `yaml:"priority"`
	Completed   bool      `yaml:"completed"`
	Position    *pkg.Vec3 `yaml:"position"`
}

// Step holds one action; set exactly one field
type Step struct {
	Select  string        `yaml:"select,omitempty"`
	Cancel  bool          `yaml:"cancel,omitempty"`
	Tap     *TapSpec      `yaml:"tap,omitempty"`
	Pinch   *PinchSpec    `yaml:"pinch,omitempty"`
	Rotate  *RotateSpec   `yaml:"rotate,omitempty"`
	Zoom    string        `yaml:"zoom,omitempty"`
	Scale   *float64      `yaml:"scale,omitempty"`
	Camera  *CameraSpec   `yaml:"camera,omitempty"`
	Surface *SurfaceSpec  `yaml:"surface,omitempty"`
	Wait    time.Duration `yaml:"wait,omitempty"`
	Expect  *ExpectSpec   `yaml:"expect,omitempty"`
}

// TapSpec is a screen point; Center taps the middle of the view
type TapSpec struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Center bool    `yaml:"center"`
}

type PinchSpec struct {
	Phase  string  `yaml:"phase"`
	Factor float64 `yaml:"factor"`
}

type RotateSpec struct {
	Phase   string  `yaml:"phase"`
	Degrees float64 `yaml:"degrees"`
}

// ExpectSpec is polled until it holds or Within elapses
type ExpectSpec struct {
	Entities *int          `yaml:"entities"`
	Placed   []string      `yaml:"placed"`
	Scale    *float64      `yaml:"scale"`
	Within   time.Duration `yaml:"within"`
}

// Load reads and validates a scenario file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates scenario YAML
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that every step names one action and every value parses
func (f *File) Validate() error {
	var errs []error
	if f.Camera != nil {
		if err := f.Camera.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range f.Surfaces {
		if err := s.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := f.SeedTasks(); err != nil {
		errs = append(errs, err)
	}
	for i, s := range f.Steps {
		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

// Tracker builds the static surface tracker the file describes
func (f *File) Tracker() *placement.StaticTracker {
	supported := f.Supported == nil || *f.Supported
	surfaces := make([]placement.Surface, 0, len(f.Surfaces))
	for _, s := range f.Surfaces {
		surfaces = append(surfaces, s.surface())
	}
	return placement.NewStaticTracker(supported, surfaces...)
}

// InitialCamera returns the starting camera pose, DefaultCamera when none is given
func (f *File) InitialCamera() placement.Camera {
	if f.Camera == nil {
		return placement.DefaultCamera()
	}
	return f.Camera.camera()
}

// SeedTasks converts the task list into repository records
func (f *File) SeedTasks() ([]pkg.Task, error) {
	tasks := make([]pkg.Task, 0, len(f.Tasks))
	base := time.Now().UTC()
	for i, ts := range f.Tasks {
		priority := pkg.PriorityMedium
		if ts.Priority != "" {
			p, err := pkg.ParsePriority(ts.Priority)
			if err != nil {
				return nil, fmt.Errorf("task %q: %w", ts.ID, err)
			}
			priority = p
		}
		t := pkg.Task{
			ID:          ts.ID,
			Title:       ts.Title,
			Description: ts.Description,
			Completed:   ts.Completed,
			Priority:    priority,
			// keep file order when listed newest first
			CreatedAt: base.Add(-time.Duration(i) * time.Second),
		}
		if ts.Position != nil {
			t = t.WithPosition(*ts.Position)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("task %q: %w", ts.ID, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (c CameraSpec) camera() placement.Camera {
	cam := placement.DefaultCamera()
	cam.Origin = c.Origin
	if c.Forward != nil {
		cam.Forward = *c.Forward
	}
	if c.Up != nil {
		cam.Up = *c.Up
	}
	if c.FovDeg > 0 {
		cam.FovY = c.FovDeg * math.Pi / 180
	}
	if c.Width > 0 {
		cam.Width = c.Width
	}
	if c.Height > 0 {
		cam.Height = c.Height
	}
	return cam
}

func (c CameraSpec) validate() error {
	if c.Forward != nil && c.Forward.Len() == 0 {
		return errors.New("camera: forward must be non-zero")
	}
	if c.Up != nil && c.Up.Len() == 0 {
		return errors.New("camera: up must be non-zero")
	}
	return nil
}

func (s SurfaceSpec) validate() error {
	if s.ID == "" {
		return errors.New("surface id is required")
	}
	if s.Normal.Len() == 0 {
		return fmt.Errorf("surface %q: normal must be non-zero", s.ID)
	}
	if _, err := placement.ParseAlignment(s.Alignment); err != nil {
		return fmt.Errorf("surface %q: %w", s.ID, err)
	}
	return nil
}

func (s SurfaceSpec) surface() placement.Surface {
	// validated before use
	alignment, _ := placement.ParseAlignment(s.Alignment)
	return placement.Surface{
		ID:        s.ID,
		Center:    s.Center,
		Normal:    s.Normal.Normalize(),
		Alignment: alignment,
		Extent:    s.Extent,
		Estimated: s.Estimated,
	}
}

// Action names the step's action
func (s Step) Action() string {
	switch {
	case s.Select != "":
		return "select"
	case s.Cancel:
		return "cancel"
	case s.Tap != nil:
		return "tap"
	case s.Pinch != nil:
		return "pinch"
	case s.Rotate != nil:
		return "rotate"
	case s.Zoom != "":
		return "zoom"
	case s.Scale != nil:
		return "scale"
	case s.Camera != nil:
		return "camera"
	case s.Surface != nil:
		return "surface"
	case s.Wait > 0:
		return "wait"
	case s.Expect != nil:
		return "expect"
	}
	return ""
}

func (s Step) validate() error {
	n := 0
	for _, set := range []bool{
		s.Select != "", s.Cancel, s.Tap != nil, s.Pinch != nil, s.Rotate != nil,
		s.Zoom != "", s.Scale != nil, s.Camera != nil, s.Surface != nil, s.Wait > 0, s.Expect != nil,
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("expected exactly one action, got %d", n)
	}

	switch {
	case s.Pinch != nil:
		if _, err := gesture.ParsePhase(s.Pinch.Phase); err != nil {
			return err
		}
		if s.Pinch.Factor <= 0 {
			return fmt.Errorf("pinch factor must be positive, got %v", s.Pinch.Factor)
		}
	case s.Rotate != nil:
		if _, err := gesture.ParsePhase(s.Rotate.Phase); err != nil {
			return err
		}
	case s.Zoom != "":
		switch s.Zoom {
		case "in", "out", "reset":
		default:
			return fmt.Errorf("unknown zoom control %q", s.Zoom)
		}
	case s.Surface != nil:
		return s.Surface.validate()
	}
	return nil
}
