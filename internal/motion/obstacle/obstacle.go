// Package obstacle implements the tagged-union obstacle model (C8): a
// single value type covering circles, axis-aligned rectangles, triangles,
// line segments and their moving (constant-velocity) counterparts, in
// place of a virtual base-class hierarchy.
package obstacle

import (
	"math"

	"github.com/robocin/framework/internal/geom"
)

// Kind discriminates which fields of an Obstacle are meaningful.
type Kind int

const (
	KindCircle Kind = iota
	KindRect
	KindTriangle
	KindLine
	KindMovingCircle
	KindMovingLine
)

// Obstacle is a tagged union over the shapes the planner and RRT fallback
// need to avoid (§9 redesign note: replaces a virtual Obstacle hierarchy).
// Only the fields relevant to Kind are populated by the constructors below.
type Obstacle struct {
	Kind     Kind
	Priority int
	Name     string

	Center geom.Vec2 // Circle, MovingCircle
	Radius float64   // Circle, MovingCircle, line thickness for Line/MovingLine

	Rect     geom.Rect     // Rect
	Triangle geom.Triangle // Triangle
	Segment  geom.Segment  // Line, MovingLine (position at t=0)

	Velocity geom.Vec2 // MovingCircle, MovingLine
}

// NewCircle constructs a static circular obstacle.
func NewCircle(center geom.Vec2, radius float64, priority int) Obstacle {
	return Obstacle{Kind: KindCircle, Center: center, Radius: radius, Priority: priority}
}

// NewRect constructs a static axis-aligned rectangular obstacle.
func NewRect(r geom.Rect, priority int) Obstacle {
	return Obstacle{Kind: KindRect, Rect: r, Priority: priority}
}

// NewTriangle constructs a static triangular obstacle.
func NewTriangle(tri geom.Triangle, priority int) Obstacle {
	return Obstacle{Kind: KindTriangle, Triangle: tri, Priority: priority}
}

// NewLine constructs a static thick line-segment obstacle.
func NewLine(seg geom.Segment, radius float64, priority int) Obstacle {
	return Obstacle{Kind: KindLine, Segment: seg, Radius: radius, Priority: priority}
}

// NewMovingCircle constructs a circular obstacle whose center advances at a
// constant velocity from center at t=0.
func NewMovingCircle(center geom.Vec2, velocity geom.Vec2, radius float64, priority int) Obstacle {
	return Obstacle{Kind: KindMovingCircle, Center: center, Velocity: velocity, Radius: radius, Priority: priority}
}

// NewMovingLine constructs a thick line-segment obstacle whose endpoints
// translate at a constant velocity from seg at t=0.
func NewMovingLine(seg geom.Segment, velocity geom.Vec2, radius float64, priority int) Obstacle {
	return Obstacle{Kind: KindMovingLine, Segment: seg, Velocity: velocity, Radius: radius, Priority: priority}
}

// IsMoving reports whether this obstacle's position depends on time.
func (o Obstacle) IsMoving() bool {
	return o.Kind == KindMovingCircle || o.Kind == KindMovingLine
}

// Distance returns the signed distance from p to the obstacle's boundary
// at t=0 (negative means p is inside). Moving obstacles are evaluated at
// t=0; use DistanceAtTime for any other instant.
func (o Obstacle) Distance(p geom.Vec2) float64 {
	return o.DistanceAtTime(p, 0)
}

// DistanceAtTime returns the signed distance from p to the obstacle's
// boundary at time t (negative means p is inside).
func (o Obstacle) DistanceAtTime(p geom.Vec2, t float64) float64 {
	switch o.Kind {
	case KindCircle:
		return p.Distance(o.Center) - o.Radius
	case KindRect:
		return o.Rect.SignedDistanceToPoint(p)
	case KindTriangle:
		return o.Triangle.SignedDistanceToPoint(p)
	case KindLine:
		return o.Segment.DistanceToPoint(p) - o.Radius
	case KindMovingCircle:
		center := o.Center.Add(o.Velocity.Scale(t))
		return p.Distance(center) - o.Radius
	case KindMovingLine:
		shift := o.Velocity.Scale(t)
		seg := geom.Segment{A: o.Segment.A.Add(shift), B: o.Segment.B.Add(shift)}
		return seg.DistanceToPoint(p) - o.Radius
	default:
		return math.Inf(1)
	}
}

// Intersects reports whether p lies inside (or on) the obstacle at time t.
func (o Obstacle) Intersects(p geom.Vec2, t float64) bool {
	return o.DistanceAtTime(p, t) <= 0
}

// DistanceToSegment returns the minimum distance between s and the
// obstacle's boundary at t=0, used by the RRT spline collision test.
func (o Obstacle) DistanceToSegment(s geom.Segment) float64 {
	switch o.Kind {
	case KindCircle:
		return s.DistanceToPoint(o.Center) - o.Radius
	case KindRect:
		min := o.Rect.SignedDistanceToPoint(s.A)
		if d := o.Rect.SignedDistanceToPoint(s.B); d < min {
			min = d
		}
		if mid := o.Rect.SignedDistanceToPoint(s.PointAt(0.5)); mid < min {
			min = mid
		}
		r := o.Rect
		corners := [4]geom.Vec2{r.Min, {X: r.Max.X, Y: r.Min.Y}, r.Max, {X: r.Min.X, Y: r.Max.Y}}
		for i := range corners {
			edge := geom.Segment{A: corners[i], B: corners[(i+1)%4]}
			if d := edge.DistanceToSegment(s); d < min {
				min = d
			}
		}
		return min
	case KindTriangle:
		min := o.Triangle.SignedDistanceToPoint(s.A)
		if d := o.Triangle.SignedDistanceToPoint(s.B); d < min {
			min = d
		}
		for _, edge := range o.Triangle.Edges() {
			if d := edge.DistanceToSegment(s); d < min {
				min = d
			}
		}
		return min
	case KindLine:
		return o.Segment.DistanceToSegment(s) - o.Radius
	case KindMovingCircle:
		return s.DistanceToPoint(o.Center) - o.Radius
	case KindMovingLine:
		return o.Segment.DistanceToSegment(s) - o.Radius
	default:
		return math.Inf(1)
	}
}

// BoundingRadius returns a conservative radius around Center/Segment's
// midpoint useful for coarse broad-phase rejection; it is not exact for
// Rect/Triangle but is only used to skip obviously-far obstacles.
func (o Obstacle) BoundingRadius() float64 {
	switch o.Kind {
	case KindCircle, KindMovingCircle:
		return o.Radius
	case KindLine, KindMovingLine:
		return o.Segment.Length()/2 + o.Radius
	case KindRect:
		return o.Rect.Center().Distance(o.Rect.Max)
	case KindTriangle:
		c := o.Triangle.Centroid()
		return math.Max(c.Distance(o.Triangle.P1), math.Max(c.Distance(o.Triangle.P2), c.Distance(o.Triangle.P3)))
	default:
		return 0
	}
}

// ReferencePoint returns a representative point for the obstacle at t=0,
// used to seed broad-phase checks.
func (o Obstacle) ReferencePoint() geom.Vec2 {
	switch o.Kind {
	case KindCircle, KindMovingCircle:
		return o.Center
	case KindLine, KindMovingLine:
		return o.Segment.PointAt(0.5)
	case KindRect:
		return o.Rect.Center()
	case KindTriangle:
		return o.Triangle.Centroid()
	default:
		return geom.Vec2{}
	}
}
