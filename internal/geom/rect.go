package geom

import "math"

// Rect is an axis-aligned rectangle described by its lower-left (Min) and
// upper-right (Max) corners.
type Rect struct {
	Min, Max Vec2
}

// EmptyRect returns a rectangle with inverted bounds, suitable as the
// starting point of an incremental bounding-box accumulation.
func EmptyRect() Rect {
	return Rect{
		Min: Vec2{X: math.Inf(1), Y: math.Inf(1)},
		Max: Vec2{X: math.Inf(-1), Y: math.Inf(-1)},
	}
}

// IsEmpty reports whether the rectangle has never been expanded.
func (r Rect) IsEmpty() bool { return r.Min.X > r.Max.X || r.Min.Y > r.Max.Y }

// ExpandToInclude returns the smallest rectangle containing both r and p.
func (r Rect) ExpandToInclude(p Vec2) Rect {
	return Rect{
		Min: Vec2{X: math.Min(r.Min.X, p.X), Y: math.Min(r.Min.Y, p.Y)},
		Max: Vec2{X: math.Max(r.Max.X, p.X), Y: math.Max(r.Max.Y, p.Y)},
	}
}

// Contains reports whether p lies within the closed rectangle.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Width returns the rectangle's extent along X.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the rectangle's extent along Y.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Center returns the rectangle's center point.
func (r Rect) Center() Vec2 {
	return Vec2{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// SignedDistanceToPoint returns the distance from p to the rectangle
// boundary, negative when p is inside (obstacle sign convention: negative
// inside, >=0 outside).
func (r Rect) SignedDistanceToPoint(p Vec2) float64 {
	dx := math.Max(r.Min.X-p.X, p.X-r.Max.X)
	dy := math.Max(r.Min.Y-p.Y, p.Y-r.Max.Y)
	if dx <= 0 && dy <= 0 {
		// Inside: distance to nearest edge, reported as negative.
		return math.Max(dx, dy)
	}
	outsideX := math.Max(dx, 0)
	outsideY := math.Max(dy, 0)
	return math.Hypot(outsideX, outsideY)
}

// ClosestPoint returns the closest point on or inside the rectangle to p.
func (r Rect) ClosestPoint(p Vec2) Vec2 {
	return Vec2{
		X: math.Min(math.Max(p.X, r.Min.X), r.Max.X),
		Y: math.Min(math.Max(p.Y, r.Min.Y), r.Max.Y),
	}
}
