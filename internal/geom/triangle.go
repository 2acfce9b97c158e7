package geom

import "math"

// Triangle is a triangle whose vertices are wound counter-clockwise, as
// required by the obstacle model (§4.6 of the specification).
type Triangle struct {
	P1, P2, P3 Vec2
}

// Edges returns the triangle's three boundary segments in winding order.
func (t Triangle) Edges() [3]Segment {
	return [3]Segment{{t.P1, t.P2}, {t.P2, t.P3}, {t.P3, t.P1}}
}

// Contains reports whether p lies inside or on the (CCW-wound) triangle.
func (t Triangle) Contains(p Vec2) bool {
	for _, e := range t.Edges() {
		if e.Vector().Cross(p.Sub(e.A)) < 0 {
			return false
		}
	}
	return true
}

// SignedDistanceToPoint returns the distance from p to the triangle
// boundary, negative when p is inside.
func (t Triangle) SignedDistanceToPoint(p Vec2) float64 {
	edges := t.Edges()
	minDist := math.Inf(1)
	for _, e := range edges {
		d := e.DistanceToPoint(p)
		if d < minDist {
			minDist = d
		}
	}
	if t.Contains(p) {
		return -minDist
	}
	return minDist
}

// Centroid returns the triangle's centroid.
func (t Triangle) Centroid() Vec2 {
	return Vec2{
		X: (t.P1.X + t.P2.X + t.P3.X) / 3,
		Y: (t.P1.Y + t.P2.Y + t.P3.Y) / 3,
	}
}
