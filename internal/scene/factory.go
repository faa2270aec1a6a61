package scene

import (
	"anchorsync/internal/geom"
	"anchorsync/pkg"
)

const (
	DefaultBoxSize     = 0.1
	DefaultLabelMargin = 0.05
)

// priorityColors maps each priority to its marker color; completion overrides it
var priorityColors = map[pkg.Priority]Color{
	pkg.PriorityHigh:   ColorRed,
	pkg.PriorityMedium: ColorOrange,
	pkg.PriorityLow:    ColorBlue,
}

// ColorFor returns the marker color for a task
func ColorFor(task pkg.Task) Color {
	if task.Completed {
		return ColorGreen
	}
	if c, ok := priorityColors[task.Priority]; ok {
		return c
	}
	return ColorOrange
}

// Factory builds task markers: a colored box plus a title label above it
type Factory struct {
	BoxSize     float64
	LabelMargin float64
}

// NewFactory creates a factory, falling back to defaults for non-positive sizes
func NewFactory(boxSize, labelMargin float64) *Factory {
	if boxSize <= 0 {
		boxSize = DefaultBoxSize
	}
	if labelMargin <= 0 {
		labelMargin = DefaultLabelMargin
	}
	return &Factory{BoxSize: boxSize, LabelMargin: labelMargin}
}

// Appearance derives the visual attributes of a task; it ignores position
func (f *Factory) Appearance(task pkg.Task) Appearance {
	return Appearance{
		Base: Box{Size: f.BoxSize, Color: ColorFor(task)},
		Label: Label{
			Text: task.Title,
			// top of the box plus a margin keeps the label clear of the base
			Offset: pkg.Vec3{Y: f.BoxSize/2 + f.LabelMargin},
			Color:  ColorWhite,
		},
	}
}

// Build creates the entity for a placed task at unit scale and no rotation
func (f *Factory) Build(task pkg.Task) *Entity {
	e := &Entity{
		Key:        task.ID,
		Scale:      1,
		Rotation:   geom.Identity,
		Appearance: f.Appearance(task),
	}
	if task.Position != nil {
		e.Position = *task.Position
	}
	return e
}
