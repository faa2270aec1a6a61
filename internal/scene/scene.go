package scene

import (
	"sort"

	"anchorsync/internal/geom"
	"anchorsync/src/logger"
)

// Renderer receives entity lifecycle events for the rendering pipeline
type Renderer interface {
	Attach(e *Entity)
	Refresh(e *Entity)
	Detach(key string)
}

// Scene is the entity map plus the session-wide display transform.
// It has a single writer: the engine event loop.
type Scene struct {
	entities map[string]*Entity
	scale    float64
	rotation geom.Quat
	renderer Renderer
}

// NewScene creates an empty scene; renderer may be nil
func NewScene(renderer Renderer) *Scene {
	return &Scene{
		entities: make(map[string]*Entity),
		scale:    1,
		rotation: geom.Identity,
		renderer: renderer,
	}
}

// Add inserts e, giving it the current display scale and rotation
func (s *Scene) Add(e *Entity) {
	e.Scale = s.scale
	e.Rotation = s.rotation
	s.entities[e.Key] = e
	if s.renderer != nil {
		s.renderer.Attach(e)
	}
}

// Refresh notifies the renderer that e changed in place
func (s *Scene) Refresh(e *Entity) {
	if s.renderer != nil {
		s.renderer.Refresh(e)
	}
}

// Remove deletes the entity for key, reporting whether it existed
func (s *Scene) Remove(key string) bool {
	if _, ok := s.entities[key]; !ok {
		return false
	}
	delete(s.entities, key)
	if s.renderer != nil {
		s.renderer.Detach(key)
	}
	return true
}

// Get returns the entity bound to key
func (s *Scene) Get(key string) (*Entity, bool) {
	e, ok := s.entities[key]
	return e, ok
}

// Len returns the number of placed entities
func (s *Scene) Len() int {
	return len(s.entities)
}

// Keys returns entity keys in sorted order
func (s *Scene) Keys() []string {
	keys := make([]string, 0, len(s.entities))
	for k := range s.entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Views returns copies of all entities, sorted by key
func (s *Scene) Views() []EntityView {
	views := make([]EntityView, 0, len(s.entities))
	for _, k := range s.Keys() {
		views = append(views, s.entities[k].view())
	}
	return views
}

// SetScale applies a uniform scale to every placed entity
func (s *Scene) SetScale(scale float64) {
	s.scale = scale
	for _, e := range s.entities {
		e.Scale = scale
		s.Refresh(e)
	}
}

// Rotate composes delta onto every placed entity's rotation
func (s *Scene) Rotate(delta geom.Quat) {
	s.rotation = s.rotation.Mul(delta)
	for _, e := range s.entities {
		e.Rotation = e.Rotation.Mul(delta)
		s.Refresh(e)
	}
}

// DisplayScale returns the scale currently shown
func (s *Scene) DisplayScale() float64 {
	return s.scale
}

// LogRenderer writes entity lifecycle events to the debug log
type LogRenderer struct{}

func (LogRenderer) Attach(e *Entity) {
	logger.Debug().Str("task_id", e.Key).Str("position", e.Position.String()).
		Str("color", e.Appearance.Base.Color.Name).Msg("entity attached")
}

func (LogRenderer) Refresh(e *Entity) {
	logger.Debug().Str("task_id", e.Key).Float64("scale", e.Scale).
		Float64("yaw", e.Rotation.YawAngle()).Msg("entity refreshed")
}

func (LogRenderer) Detach(key string) {
	logger.Debug().Str("task_id", key).Msg("entity detached")
}
