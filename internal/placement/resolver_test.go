package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorsync/pkg"
)

var (
	wall = Surface{
		ID:        "wall",
		Center:    pkg.Vec3{Z: -2},
		Normal:    pkg.Vec3{Z: 1},
		Alignment: AlignmentVertical,
		Extent:    5,
	}
	floor = Surface{
		ID:        "floor",
		Center:    pkg.Vec3{Y: -1},
		Normal:    pkg.Vec3{Y: 1},
		Alignment: AlignmentHorizontal,
		Estimated: true,
	}
)

func TestResolveCenterHitsWall(t *testing.T) {
	r := NewResolver(NewStaticTracker(true, wall, floor), DefaultCamera())

	pos, err := r.Resolve(r.Camera().Center())
	require.NoError(t, err)
	assert.InDelta(t, 0, pos.X, 1e-9)
	assert.InDelta(t, 0, pos.Y, 1e-9)
	assert.InDelta(t, -2, pos.Z, 1e-9)
}

func TestResolvePicksNearestSurface(t *testing.T) {
	cam := DefaultCamera()
	r := NewResolver(NewStaticTracker(true, wall, floor), cam)

	// bottom edge of the screen looks steeply down; the floor is closer than the wall
	pos, err := r.Resolve(ScreenPoint{X: cam.Width / 2, Y: cam.Height})
	require.NoError(t, err)
	assert.InDelta(t, -1, pos.Y, 1e-9)
	assert.Greater(t, pos.Z, -2.0)
}

func TestResolveMiss(t *testing.T) {
	r := NewResolver(NewStaticTracker(true), DefaultCamera())
	_, err := r.Resolve(r.Camera().Center())
	assert.ErrorIs(t, err, ErrNoSurfaceHit)

	// a camera turned away from the wall sees nothing
	tracker := NewStaticTracker(true, wall)
	back := DefaultCamera()
	back.Forward = pkg.Vec3{Z: 1}
	r = NewResolver(tracker, back)
	_, err = r.Resolve(back.Center())
	assert.ErrorIs(t, err, ErrNoSurfaceHit)
}

func TestConfirmedSurfaceExtentBoundsHits(t *testing.T) {
	small := wall
	small.Extent = 0.1
	tracker := NewStaticTracker(true, small)
	cam := DefaultCamera()
	r := NewResolver(tracker, cam)

	_, err := r.Resolve(cam.Center())
	require.NoError(t, err)

	_, err = r.Resolve(ScreenPoint{X: 0, Y: 0})
	assert.ErrorIs(t, err, ErrNoSurfaceHit, "corner ray lands outside the plane boundary")
}

func TestRaycastQueryFilters(t *testing.T) {
	tracker := NewStaticTracker(true, wall, floor)
	cam := DefaultCamera()
	ray := cam.Ray(ScreenPoint{X: cam.Width / 2, Y: cam.Height})

	hits := tracker.Raycast(ray, Query{AllowEstimated: false, Alignment: AlignmentAny})
	require.Len(t, hits, 1)
	assert.Equal(t, "wall", hits[0].SurfaceID)

	hits = tracker.Raycast(ray, Query{AllowEstimated: true, Alignment: AlignmentHorizontal})
	require.Len(t, hits, 1)
	assert.Equal(t, "floor", hits[0].SurfaceID)
}

func TestCameraRepose(t *testing.T) {
	tracker := NewStaticTracker(true)
	r := NewResolver(tracker, DefaultCamera())
	_, err := r.Resolve(r.Camera().Center())
	require.ErrorIs(t, err, ErrNoSurfaceHit)

	tracker.Upsert(wall)
	moved := DefaultCamera()
	moved.Origin = pkg.Vec3{X: 1}
	r.SetCamera(moved)

	pos, err := r.Resolve(moved.Center())
	require.NoError(t, err)
	assert.InDelta(t, 1, pos.X, 1e-9)
	assert.InDelta(t, -2, pos.Z, 1e-9)
}

func TestCameraLookingStraightDown(t *testing.T) {
	down := DefaultCamera()
	down.Forward = pkg.Vec3{Y: -1}
	r := NewResolver(NewStaticTracker(true, floor), down)

	center, err := r.Resolve(down.Center())
	require.NoError(t, err)
	assert.InDelta(t, 0, center.X, 1e-9)
	assert.InDelta(t, -1, center.Y, 1e-9)
	assert.InDelta(t, 0, center.Z, 1e-9)

	// off-center taps land elsewhere on the floor
	left, err := r.Resolve(ScreenPoint{X: 0, Y: down.Height / 2})
	require.NoError(t, err)
	assert.Less(t, left.X, -0.1)

	top, err := r.Resolve(ScreenPoint{X: down.Width / 2, Y: 0})
	require.NoError(t, err)
	assert.Less(t, top.Z, -0.1, "screen top points away from the viewer")
}

func TestParseAlignment(t *testing.T) {
	a, err := ParseAlignment("Horizontal")
	require.NoError(t, err)
	assert.Equal(t, AlignmentHorizontal, a)

	a, err = ParseAlignment("")
	require.NoError(t, err)
	assert.Equal(t, AlignmentAny, a)

	_, err = ParseAlignment("diagonal")
	assert.Error(t, err)
}
