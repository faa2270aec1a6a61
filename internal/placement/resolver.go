package placement

import (
	"errors"

	"anchorsync/pkg"
	"anchorsync/src/logger"
)

// ErrNoSurfaceHit is returned when a tap ray crosses no tracked surface
var ErrNoSurfaceHit = errors.New("no surface under tap")

// Resolver turns screen taps into world positions.
// It does no I/O and is meant to run inline on the input event.
type Resolver struct {
	tracker Tracker
	camera  Camera
	query   Query
}

// NewResolver creates a resolver accepting estimated planes of any alignment
func NewResolver(tracker Tracker, camera Camera) *Resolver {
	return &Resolver{
		tracker: tracker,
		camera:  camera,
		query:   Query{AllowEstimated: true, Alignment: AlignmentAny},
	}
}

// SetCamera re-poses the viewing camera after device motion
func (r *Resolver) SetCamera(c Camera) {
	r.camera = c
}

// Camera returns the current viewing pose
func (r *Resolver) Camera() Camera {
	return r.camera
}

// Resolve returns the nearest surface intersection under the screen point
func (r *Resolver) Resolve(p ScreenPoint) (pkg.Vec3, error) {
	hits := r.tracker.Raycast(r.camera.Ray(p), r.query)
	if len(hits) == 0 {
		logger.Debug().Float64("x", p.X).Float64("y", p.Y).Msg("tap missed every surface")
		return pkg.Vec3{}, ErrNoSurfaceHit
	}

	nearest := hits[0]
	logger.Debug().
		Str("surface", nearest.SurfaceID).
		Float64("distance", nearest.Distance).
		Str("point", nearest.Point.String()).
		Msg("tap resolved")
	return nearest.Point, nil
}
