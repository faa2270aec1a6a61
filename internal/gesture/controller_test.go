package gesture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorsync/internal/geom"
	"anchorsync/internal/scene"
	"anchorsync/pkg"
)

func sceneWithTwo(t *testing.T) *scene.Scene {
	t.Helper()
	sc := scene.NewScene(nil)
	f := scene.NewFactory(0, 0)
	sc.Add(f.Build(pkg.Task{ID: "a", Title: "A", Priority: pkg.PriorityLow}.WithPosition(pkg.Vec3{X: 1})))
	sc.Add(f.Build(pkg.Task{ID: "b", Title: "B", Priority: pkg.PriorityHigh}.WithPosition(pkg.Vec3{Z: -1})))
	return sc
}

func TestPinchClampsLivePreviewAndCommits(t *testing.T) {
	sc := sceneWithTwo(t)
	c := NewController(sc, Options{MinScale: 0.5, MaxScale: 3.0})

	c.Pinch(Began, 1)
	assert.Equal(t, Active, c.PinchState())

	got := c.Pinch(Changed, 5.0)
	assert.Equal(t, 3.0, got)
	for _, v := range sc.Views() {
		assert.Equal(t, 3.0, v.Scale, "live preview on %s", v.Key)
	}
	assert.Equal(t, 1.0, c.Scale(), "not committed until the gesture ends")

	c.Pinch(Ended, 5.0)
	assert.Equal(t, 3.0, c.Scale())
	assert.Equal(t, Idle, c.PinchState())
}

func TestPinchCommittedScaleStaysInRange(t *testing.T) {
	sc := scene.NewScene(nil)
	c := NewController(sc, Options{MinScale: 0.5, MaxScale: 3.0})

	factors := []float64{0.01, 7, 1.3, 0.2, 100, 0.9, 1, 1e-6}
	for _, f := range factors {
		c.Pinch(Began, 1)
		c.Pinch(Changed, f)
		c.Pinch(Ended, f)
		assert.GreaterOrEqual(t, c.Scale(), 0.5)
		assert.LessOrEqual(t, c.Scale(), 3.0)
	}
}

func TestClampIsIdempotentAtBoundary(t *testing.T) {
	c := NewController(scene.NewScene(nil), Options{MinScale: 0.5, MaxScale: 3.0})

	c.Pinch(Began, 1)
	for i := 0; i < 50; i++ {
		assert.Equal(t, 3.0, c.Pinch(Changed, 10))
	}
	c.Pinch(Ended, 10)

	// pushing further at the bound must not drift
	for i := 0; i < 5; i++ {
		c.Pinch(Began, 1)
		c.Pinch(Changed, 1.5)
		c.Pinch(Ended, 1.5)
		assert.Equal(t, 3.0, c.Scale())
	}
	assert.Equal(t, c.Clamp(c.Clamp(42)), c.Clamp(42))
	assert.Equal(t, 0.5, c.Clamp(-1))
}

func TestPinchCancelCommitsClampedCandidate(t *testing.T) {
	c := NewController(scene.NewScene(nil), Options{MinScale: 0.5, MaxScale: 3.0})
	c.Pinch(Changed, 0.1) // implicit begin
	c.Pinch(Cancelled, 0.1)
	assert.Equal(t, 0.5, c.Scale())
	assert.Equal(t, Idle, c.PinchState())
}

func TestRotationDeltasComposeAdditively(t *testing.T) {
	d1, d2 := 0.3, 0.45

	stepwise := sceneWithTwo(t)
	c := NewController(stepwise, Options{})
	c.Rotate(Began, 0)
	c.Rotate(Changed, d1)
	c.Rotate(Changed, d2)
	c.Rotate(Ended, 0)

	single := sceneWithTwo(t)
	NewController(single, Options{}).Rotate(Changed, d1+d2)

	want := geom.Yaw(d1 + d2)
	for _, key := range stepwise.Keys() {
		a, _ := stepwise.Get(key)
		b, _ := single.Get(key)
		assert.True(t, a.Rotation.ApproxEqual(b.Rotation, 1e-9), "entity %s", key)
		assert.True(t, a.Rotation.ApproxEqual(want, 1e-9), "entity %s", key)
	}
	assert.Equal(t, Idle, c.RotationState())
}

func TestRotationAppliesOnlyTheIncrement(t *testing.T) {
	sc := sceneWithTwo(t)
	c := NewController(sc, Options{})
	for i := 0; i < 4; i++ {
		c.Rotate(Changed, math.Pi/8)
	}
	c.Rotate(Ended, 0)

	e, ok := sc.Get("a")
	require.True(t, ok)
	assert.InDelta(t, math.Pi/2, e.Rotation.YawAngle(), 1e-9)
}

func TestZoomControls(t *testing.T) {
	sc := sceneWithTwo(t)
	c := NewController(sc, Options{MinScale: 0.5, MaxScale: 3.0})

	assert.InDelta(t, 1.2, c.ZoomIn(), 1e-12)
	assert.InDelta(t, 0.96, c.ZoomOut(), 1e-12)
	assert.Equal(t, 1.0, c.ResetScale())
	assert.Equal(t, 3.0, c.SetScale(9))
	assert.Equal(t, 3.0, c.SetScale(-2), "invalid scale keeps the committed value")

	for _, v := range sc.Views() {
		assert.Equal(t, 3.0, v.Scale)
	}
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("changed")
	require.NoError(t, err)
	assert.Equal(t, Changed, p)

	_, err = ParsePhase("wiggle")
	assert.Error(t, err)
}
