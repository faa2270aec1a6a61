package pkg

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Core task types shared by the repository, the scene and the CLI

// ErrInvalidTask marks a task record that cannot be rendered or stored
var ErrInvalidTask = errors.New("invalid task")

// Priority is the closed set of task priorities
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every priority in display order
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is one of the known priorities
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority parses a priority name, case-insensitively
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// Vec3 is a world-space position in meters
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Len() float64 { return math.Sqrt(v.Dot(v)) }
func (v Vec3) String() string { return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z) }
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Normalize returns the unit vector of v, or v itself when it has no length
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Task is a task record as owned by the repository
type Task struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"is_completed"`
	Priority    Priority  `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	Position    *Vec3     `json:"position,omitempty"` // nil until placed in space
}

// Placed reports whether the task has been anchored in the world
func (t Task) Placed() bool {
	return t.Position != nil
}

// WithPosition returns a copy of t anchored at p
func (t Task) WithPosition(p Vec3) Task {
	t.Position = &p
	return t
}

// Validate checks the fields every consumer relies on
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidTask)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, t.Priority)
	}
	if t.Position != nil {
		p := *t.Position
		for _, c := range []float64{p.X, p.Y, p.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("%w: non-finite position", ErrInvalidTask)
			}
		}
	}
	return nil
}

// Progress counts completed tasks
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// ComputeProgress summarizes completion over a task list
func ComputeProgress(tasks []Task) Progress {
	p := Progress{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			p.Completed++
		}
	}
	return p
}

// Fraction returns completed/total, 0 for an empty list
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}
