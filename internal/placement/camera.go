package placement

import (
	"math"

	"anchorsync/internal/geom"
	"anchorsync/pkg"
)

// ScreenPoint is a tap location in view pixels, origin top-left
type ScreenPoint struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Camera is a pinhole viewing pose used to unproject taps into world rays
type Camera struct {
	Origin  pkg.Vec3
	Forward pkg.Vec3
	Up      pkg.Vec3
	FovY    float64 // vertical field of view, radians
	Width   float64 // view size in pixels
	Height  float64
}

// DefaultCamera looks down -Z from the world origin, portrait phone viewport
func DefaultCamera() Camera {
	return Camera{
		Forward: pkg.Vec3{Z: -1},
		Up:      pkg.Vec3{Y: 1},
		FovY:    60 * math.Pi / 180,
		Width:   1170,
		Height:  2532,
	}
}

// Center is the screen point straight down the view axis
func (c Camera) Center() ScreenPoint {
	return ScreenPoint{X: c.Width / 2, Y: c.Height / 2}
}

// Ray casts from the viewing origin through the screen point
func (c Camera) Ray(p ScreenPoint) geom.Ray {
	forward, right, up := c.basis()

	ndcX := 2*p.X/c.Width - 1
	ndcY := 1 - 2*p.Y/c.Height
	tanHalf := math.Tan(c.FovY / 2)
	aspect := c.Width / c.Height

	dir := forward.
		Add(right.Scale(ndcX * tanHalf * aspect)).
		Add(up.Scale(ndcY * tanHalf))

	return geom.Ray{Origin: c.Origin, Dir: dir.Normalize()}
}

// fallbackUps replace Up when it is parallel to Forward, e.g. a camera looking
// straight down at the floor; screen top then points away along -Z
var fallbackUps = []pkg.Vec3{{Z: -1}, {X: 1}}

// basis returns the orthonormal forward, right and up axes of the view
func (c Camera) basis() (forward, right, up pkg.Vec3) {
	forward = c.Forward.Normalize()
	right = forward.Cross(c.Up)
	for _, alt := range fallbackUps {
		if right.Len() > 1e-9 {
			break
		}
		right = forward.Cross(alt)
	}
	right = right.Normalize()
	up = right.Cross(forward)
	return forward, right, up
}
