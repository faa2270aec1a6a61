package core

import (
	"errors"
	"time"

	"anchorsync/internal/scene"
	"anchorsync/pkg"
)

var (
	// ErrSpatialUnsupported is returned by every spatial operation on a device without tracking
	ErrSpatialUnsupported = errors.New("spatial tracking not supported")
	ErrEngineStopped      = errors.New("engine stopped")
	ErrTaskNotFound       = errors.New("task not found in latest snapshot")
)

// UnsupportedNotice is shown instead of 3D content when tracking is unavailable
const UnsupportedNotice = "Spatial task anchors need a device with world tracking. Your tasks are still available in the list."

// Options tunes the engine; zero values fall back to package defaults
type Options struct {
	MinScale       float64
	MaxScale       float64
	ZoomStep       float64
	BoxSize        float64
	LabelMargin    float64
	PlacementDelay time.Duration
	WriteTimeout   time.Duration
	QueueSize      int
	Renderer       scene.Renderer
}

// TapOutcome classifies a placement tap
type TapOutcome string

const (
	TapPlaced      TapOutcome = "placed"
	TapMissed      TapOutcome = "missed"
	TapNoSelection TapOutcome = "no_selection"
)

// TapResult reports what a tap did
type TapResult struct {
	Outcome  TapOutcome
	Task     pkg.Task // the written task when placed
	Position pkg.Vec3
}

// Zoom is a discrete zoom control
type Zoom string

const (
	ZoomIn    Zoom = "in"
	ZoomOut   Zoom = "out"
	ZoomReset Zoom = "reset"
)
