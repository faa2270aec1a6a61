package placement

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"anchorsync/internal/geom"
	"anchorsync/pkg"
)

// Alignment classifies detected surfaces
type Alignment string

const (
	AlignmentAny        Alignment = "any"
	AlignmentHorizontal Alignment = "horizontal"
	AlignmentVertical   Alignment = "vertical"
)

// ParseAlignment accepts "", any, horizontal or vertical
func ParseAlignment(s string) (Alignment, error) {
	switch a := Alignment(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AlignmentAny, nil
	case AlignmentAny, AlignmentHorizontal, AlignmentVertical:
		return a, nil
	default:
		return "", fmt.Errorf("unknown surface alignment %q", s)
	}
}

// Surface is a tracked physical plane.
//
// Estimated planes come from sparse feature points early in a session; they
// have no reliable boundary and are treated as unbounded. Confirmed planes
// with a positive Extent only accept hits within Extent meters of Center.
type Surface struct {
	ID        string
	Center    pkg.Vec3
	Normal    pkg.Vec3
	Alignment Alignment
	Extent    float64
	Estimated bool
}

func (s Surface) matches(q Query) bool {
	if s.Estimated && !q.AllowEstimated {
		return false
	}
	return q.Alignment == AlignmentAny || q.Alignment == "" || s.Alignment == q.Alignment
}

// Query narrows a raycast
type Query struct {
	AllowEstimated bool
	Alignment      Alignment
}

// Hit is one ray-surface intersection
type Hit struct {
	SurfaceID string
	Distance  float64
	Point     pkg.Vec3
}

// Tracker is the surface-tracking collaborator
type Tracker interface {
	// Supported reports whether the device can track the world at all
	Supported() bool
	// Raycast returns intersections ordered nearest first
	Raycast(ray geom.Ray, q Query) []Hit
}

// StaticTracker answers raycasts against a fixed, mutable set of surfaces.
// It backs scripted sessions and tests in place of a device tracking stack.
type StaticTracker struct {
	mu        sync.RWMutex
	supported bool
	surfaces  map[string]Surface
}

// NewStaticTracker creates a tracker seeded with surfaces
func NewStaticTracker(supported bool, surfaces ...Surface) *StaticTracker {
	t := &StaticTracker{
		supported: supported,
		surfaces:  make(map[string]Surface, len(surfaces)),
	}
	for _, s := range surfaces {
		t.surfaces[s.ID] = s
	}
	return t
}

func (t *StaticTracker) Supported() bool {
	return t.supported
}

// Upsert adds or refines a surface, e.g. an estimated plane becoming confirmed
func (t *StaticTracker) Upsert(s Surface) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.surfaces[s.ID] = s
}

// Remove drops a surface the tracker lost
func (t *StaticTracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.surfaces, id)
}

func (t *StaticTracker) Raycast(ray geom.Ray, q Query) []Hit {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var hits []Hit
	for _, s := range t.surfaces {
		if !s.matches(q) {
			continue
		}
		d, ok := ray.IntersectPlane(s.Center, s.Normal)
		if !ok {
			continue
		}
		p := ray.At(d)
		if !s.Estimated && s.Extent > 0 && p.Sub(s.Center).Len() > s.Extent {
			continue
		}
		hits = append(hits, Hit{SurfaceID: s.ID, Distance: d, Point: p})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].SurfaceID < hits[j].SurfaceID
	})
	return hits
}
