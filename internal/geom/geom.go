package geom

import (
	"math"

	"anchorsync/pkg"
)

// Up is the world vertical axis; gesture rotation turns entities about it
var Up = pkg.Vec3{Y: 1}

// Quat is a unit rotation quaternion
type Quat struct {
	W, X, Y, Z float64
}

// Identity is the zero rotation
var Identity = Quat{W: 1}

// AxisAngle builds the rotation of angle radians about axis
func AxisAngle(axis pkg.Vec3, angle float64) Quat {
	a := axis.Normalize()
	s, c := math.Sincos(angle / 2)
	return Quat{W: c, X: a.X * s, Y: a.Y * s, Z: a.Z * s}
}

// Yaw is shorthand for a rotation about the vertical axis
func Yaw(angle float64) Quat {
	return AxisAngle(Up, angle)
}

// Mul composes q then r (Hamilton product q*r)
func (q Quat) Mul(r Quat) Quat {
	return Quat{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}.Normalize()
}

// Normalize rescales q to unit length to stop drift across many compositions
func (q Quat) Normalize() Quat {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return Identity
	}
	return Quat{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Rotate applies q to v
func (q Quat) Rotate(v pkg.Vec3) pkg.Vec3 {
	u := pkg.Vec3{X: q.X, Y: q.Y, Z: q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// YawAngle extracts the rotation about the vertical axis, in (-pi, pi]
func (q Quat) YawAngle() float64 {
	return math.Atan2(2*(q.W*q.Y+q.X*q.Z), 1-2*(q.Y*q.Y+q.X*q.X))
}

// ApproxEqual compares two rotations, treating q and -q as the same rotation
func (q Quat) ApproxEqual(r Quat, eps float64) bool {
	dot := q.W*r.W + q.X*r.X + q.Y*r.Y + q.Z*r.Z
	return 1-math.Abs(dot) <= eps
}

// Ray is a half-line from Origin along the unit vector Dir
type Ray struct {
	Origin pkg.Vec3
	Dir    pkg.Vec3
}

// At returns the point at distance t along the ray
func (r Ray) At(t float64) pkg.Vec3 {
	return r.Origin.Add(r.Dir.Scale(t))
}

const parallelEpsilon = 1e-9

// IntersectPlane returns the ray parameter where it crosses the plane through
// point with the given normal. Hits behind the origin or on a parallel ray are misses.
func (r Ray) IntersectPlane(point, normal pkg.Vec3) (float64, bool) {
	n := normal.Normalize()
	denom := r.Dir.Dot(n)
	if math.Abs(denom) < parallelEpsilon {
		return 0, false
	}
	t := point.Sub(r.Origin).Dot(n) / denom
	if t < 0 {
		return 0, false
	}
	return t, true
}
