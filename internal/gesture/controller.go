package gesture

import (
	"fmt"
	"math"

	"anchorsync/internal/geom"
	"anchorsync/src/logger"
)

const (
	DefaultMinScale = 0.5
	DefaultMaxScale = 3.0
	DefaultZoomStep = 1.2
	zoomOutFactor   = 0.8
)

// Phase is the platform gesture recognizer phase
type Phase int

const (
	Began Phase = iota
	Changed
	Ended
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Began:
		return "began"
	case Changed:
		return "changed"
	case Ended:
		return "ended"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ParsePhase maps a phase name to a Phase
func ParsePhase(s string) (Phase, error) {
	for p := Began; p <= Cancelled; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown gesture phase %q", s)
}

// State is where a gesture session is in its lifecycle
type State int

const (
	Idle State = iota
	Active
	Committed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Committed:
		return "committed"
	}
	return "unknown"
}

// Target receives the display transform; the scene implements it
type Target interface {
	SetScale(scale float64)
	Rotate(delta geom.Quat)
}

// Options bounds the scale range
type Options struct {
	MinScale float64
	MaxScale float64
	ZoomStep float64
}

func (o Options) withDefaults() Options {
	if o.MinScale <= 0 {
		o.MinScale = DefaultMinScale
	}
	if o.MaxScale < o.MinScale {
		o.MaxScale = math.Max(DefaultMaxScale, o.MinScale)
	}
	if o.ZoomStep <= 1 {
		o.ZoomStep = DefaultZoomStep
	}
	return o
}

type pinchSession struct {
	state     State
	base      float64 // committed scale at gesture begin
	candidate float64
}

type rotationSession struct {
	state State
	delta float64 // radians not yet applied
	total float64 // radians applied during this gesture
}

// Controller turns pinch and rotate gestures into scene transform updates.
// Scale is session-local and never written to the repository.
type Controller struct {
	target Target
	opts   Options

	committed float64
	pinch     pinchSession
	rotation  rotationSession
}

// NewController creates a controller with committed scale 1.0 (clamped into range)
func NewController(target Target, opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{target: target, opts: opts}
	c.committed = c.Clamp(1)
	return c
}

// Clamp bounds a candidate scale to [MinScale, MaxScale]
func (c *Controller) Clamp(candidate float64) float64 {
	return math.Max(c.opts.MinScale, math.Min(c.opts.MaxScale, candidate))
}

// Pinch feeds one pinch event; factor is cumulative since the gesture began.
// It returns the scale now displayed.
func (c *Controller) Pinch(phase Phase, factor float64) float64 {
	p := &c.pinch
	if p.state != Active && (phase == Began || phase == Changed) {
		// a changed event without a began starts the session implicitly
		p.state = Active
		p.base = c.committed
		p.candidate = c.committed
	}

	switch phase {
	case Began:
		if factor > 0 {
			p.candidate = c.Clamp(p.base * factor)
			c.target.SetScale(p.candidate)
		}
	case Changed:
		if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
			logger.Debug().Float64("factor", factor).Msg("pinch factor ignored")
			return p.candidate
		}
		p.candidate = c.Clamp(p.base * factor)
		c.target.SetScale(p.candidate)
	case Ended, Cancelled:
		if p.state != Active {
			return c.committed
		}
		p.state = Committed
		c.committed = p.candidate
		c.target.SetScale(c.committed)
		logger.Debug().Float64("scale", c.committed).Str("phase", phase.String()).Msg("pinch committed")
		p.state = Idle
	}
	if p.state == Active {
		return p.candidate
	}
	return c.committed
}

// Rotate feeds one rotation event; delta is the increment in radians since the previous event.
// Each delta is applied once and then discarded so successive events compose additively.
func (c *Controller) Rotate(phase Phase, delta float64) {
	r := &c.rotation
	switch phase {
	case Began, Changed:
		if r.state != Active {
			r.state = Active
			r.total = 0
		}
		if delta == 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
			return
		}
		r.delta = delta
		c.target.Rotate(geom.Yaw(r.delta))
		r.total += r.delta
		r.delta = 0
	case Ended, Cancelled:
		if r.state != Active {
			return
		}
		r.state = Committed
		logger.Debug().Float64("radians", r.total).Str("phase", phase.String()).Msg("rotation committed")
		r.state = Idle
		r.total = 0
	}
}

// SetScale commits a scale directly, clamped, outside of any pinch
func (c *Controller) SetScale(scale float64) float64 {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return c.committed
	}
	c.committed = c.Clamp(scale)
	c.target.SetScale(c.committed)
	return c.committed
}

// ResetScale returns to unit scale
func (c *Controller) ResetScale() float64 {
	return c.SetScale(1)
}

// ZoomIn grows the committed scale by one zoom step
func (c *Controller) ZoomIn() float64 {
	return c.SetScale(c.committed * c.opts.ZoomStep)
}

// ZoomOut shrinks the committed scale
func (c *Controller) ZoomOut() float64 {
	return c.SetScale(c.committed * zoomOutFactor)
}

// Scale returns the committed scale
func (c *Controller) Scale() float64 {
	return c.committed
}

// PinchState and RotationState expose the session states
func (c *Controller) PinchState() State    { return c.pinch.state }
func (c *Controller) RotationState() State { return c.rotation.state }
