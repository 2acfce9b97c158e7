package geom_test

import (
	"testing"

	"github.com/robocin/framework/internal/geom"
	"github.com/stretchr/testify/assert"
)

func TestSegment_ClosestPoint(t *testing.T) {
	t.Parallel()

	s := geom.Segment{A: geom.Vec2{X: 0, Y: 0}, B: geom.Vec2{X: 10, Y: 0}}

	t.Run("projects inside segment", func(t *testing.T) {
		t.Parallel()
		p, tt := s.ClosestPoint(geom.Vec2{X: 5, Y: 3})
		assert.InDelta(t, 5, p.X, 1e-9)
		assert.InDelta(t, 0, p.Y, 1e-9)
		assert.InDelta(t, 0.5, tt, 1e-9)
	})

	t.Run("clamps before A", func(t *testing.T) {
		t.Parallel()
		p, tt := s.ClosestPoint(geom.Vec2{X: -5, Y: 3})
		assert.Equal(t, geom.Vec2{X: 0, Y: 0}, p)
		assert.Equal(t, 0.0, tt)
	})

	t.Run("clamps after B", func(t *testing.T) {
		t.Parallel()
		p, tt := s.ClosestPoint(geom.Vec2{X: 15, Y: 3})
		assert.Equal(t, geom.Vec2{X: 10, Y: 0}, p)
		assert.Equal(t, 1.0, tt)
	})

	t.Run("degenerate segment", func(t *testing.T) {
		t.Parallel()
		zero := geom.Segment{A: geom.Vec2{X: 1, Y: 1}, B: geom.Vec2{X: 1, Y: 1}}
		p, tt := zero.ClosestPoint(geom.Vec2{X: 9, Y: 9})
		assert.Equal(t, geom.Vec2{X: 1, Y: 1}, p)
		assert.Equal(t, 0.0, tt)
	})
}

func TestSegment_IntersectSegment(t *testing.T) {
	t.Parallel()

	t.Run("crossing segments intersect", func(t *testing.T) {
		t.Parallel()
		s1 := geom.Segment{A: geom.Vec2{X: 0, Y: 0}, B: geom.Vec2{X: 10, Y: 10}}
		s2 := geom.Segment{A: geom.Vec2{X: 0, Y: 10}, B: geom.Vec2{X: 10, Y: 0}}
		p, ok := s1.IntersectSegment(s2)
		assert.True(t, ok)
		assert.InDelta(t, 5, p.X, 1e-9)
		assert.InDelta(t, 5, p.Y, 1e-9)
	})

	t.Run("parallel segments do not intersect", func(t *testing.T) {
		t.Parallel()
		s1 := geom.Segment{A: geom.Vec2{X: 0, Y: 0}, B: geom.Vec2{X: 10, Y: 0}}
		s2 := geom.Segment{A: geom.Vec2{X: 0, Y: 1}, B: geom.Vec2{X: 10, Y: 1}}
		_, ok := s1.IntersectSegment(s2)
		assert.False(t, ok)
	})

	t.Run("non-overlapping segments", func(t *testing.T) {
		t.Parallel()
		s1 := geom.Segment{A: geom.Vec2{X: 0, Y: 0}, B: geom.Vec2{X: 1, Y: 1}}
		s2 := geom.Segment{A: geom.Vec2{X: 5, Y: 5}, B: geom.Vec2{X: 6, Y: 6}}
		_, ok := s1.IntersectSegment(s2)
		assert.False(t, ok)
	})
}

func TestSegment_DistanceToSegment(t *testing.T) {
	t.Parallel()

	s1 := geom.Segment{A: geom.Vec2{X: 0, Y: 0}, B: geom.Vec2{X: 10, Y: 0}}
	s2 := geom.Segment{A: geom.Vec2{X: 0, Y: 5}, B: geom.Vec2{X: 10, Y: 5}}
	assert.InDelta(t, 5, s1.DistanceToSegment(s2), 1e-9)

	crossing := geom.Segment{A: geom.Vec2{X: 5, Y: -5}, B: geom.Vec2{X: 5, Y: 5}}
	assert.InDelta(t, 0, s1.DistanceToSegment(crossing), 1e-9)
}
