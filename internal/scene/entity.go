package scene

import (
	"anchorsync/internal/geom"
	"anchorsync/pkg"
)

// Color is an RGB material color with a stable name
type Color struct {
	Name    string
	R, G, B uint8
}

var (
	ColorGreen  = Color{Name: "green", R: 52, G: 199, B: 89}
	ColorRed    = Color{Name: "red", R: 255, G: 59, B: 48}
	ColorOrange = Color{Name: "orange", R: 255, G: 149, B: 0}
	ColorBlue   = Color{Name: "blue", R: 0, G: 122, B: 255}
	ColorWhite  = Color{Name: "white", R: 255, G: 255, B: 255}
)

// Box is the base geometry of a task marker
type Box struct {
	Size  float64
	Color Color
}

// Label is the title text floating above the box
type Label struct {
	Text   string
	Offset pkg.Vec3 // relative to the entity origin
	Color  Color
}

// Appearance is everything about an entity derived from task content.
// Two tasks with equal appearance render identically regardless of position.
type Appearance struct {
	Base  Box
	Label Label
}

// Entity is a locally owned visual bound one-to-one to a task identity
type Entity struct {
	Key        string
	Position   pkg.Vec3
	Scale      float64
	Rotation   geom.Quat
	Appearance Appearance
}

// EntityView is a read-only copy of an entity for callers outside the event loop
type EntityView struct {
	Key      string
	Title    string
	Color    string
	Position pkg.Vec3
	Scale    float64
	Yaw      float64 // radians about the vertical axis
}

func (e *Entity) view() EntityView {
	return EntityView{
		Key:      e.Key,
		Title:    e.Appearance.Label.Text,
		Color:    e.Appearance.Base.Color.Name,
		Position: e.Position,
		Scale:    e.Scale,
		Yaw:      e.Rotation.YawAngle(),
	}
}
