package obstacle_test

import (
	"testing"

	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/motion/obstacle"
	"github.com/stretchr/testify/assert"
)

func TestCircle_DistanceAndIntersects(t *testing.T) {
	t.Parallel()

	c := obstacle.NewCircle(geom.Vec2{X: 0, Y: 0}, 1, 0)
	assert.InDelta(t, 1.0, c.Distance(geom.Vec2{X: 2, Y: 0}), 1e-9)
	assert.True(t, c.Intersects(geom.Vec2{X: 0.5, Y: 0}, 0))
	assert.False(t, c.Intersects(geom.Vec2{X: 2, Y: 0}, 0))
}

func TestMovingCircle_TracksPositionOverTime(t *testing.T) {
	t.Parallel()

	mc := obstacle.NewMovingCircle(geom.Vec2{X: 0, Y: 0}, geom.Vec2{X: 1, Y: 0}, 0.5, 0)
	assert.True(t, mc.Intersects(geom.Vec2{X: 2, Y: 0}, 2))
	assert.False(t, mc.Intersects(geom.Vec2{X: 2, Y: 0}, 0))
}

func TestRect_SignedDistanceNegativeInside(t *testing.T) {
	t.Parallel()

	r := obstacle.NewRect(geom.Rect{Min: geom.Vec2{X: -1, Y: -1}, Max: geom.Vec2{X: 1, Y: 1}}, 0)
	assert.Less(t, r.Distance(geom.Vec2{X: 0, Y: 0}), 0.0)
	assert.Greater(t, r.Distance(geom.Vec2{X: 3, Y: 0}), 0.0)
}

func TestLine_DistanceAccountsForThickness(t *testing.T) {
	t.Parallel()

	l := obstacle.NewLine(geom.Segment{A: geom.Vec2{X: 0, Y: 0}, B: geom.Vec2{X: 2, Y: 0}}, 0.2, 0)
	assert.InDelta(t, 0.3, l.Distance(geom.Vec2{X: 1, Y: 0.5}), 1e-9)
	assert.True(t, l.Intersects(geom.Vec2{X: 1, Y: 0.1}, 0))
}

func TestMovingLine_DistanceToSegmentAtT0(t *testing.T) {
	t.Parallel()

	ml := obstacle.NewMovingLine(geom.Segment{A: geom.Vec2{X: 0, Y: 0}, B: geom.Vec2{X: 1, Y: 0}}, geom.Vec2{X: 0, Y: 1}, 0.1, 0)
	s := geom.Segment{A: geom.Vec2{X: 0, Y: 5}, B: geom.Vec2{X: 1, Y: 5}}
	assert.Greater(t, ml.DistanceToSegment(s), 0.0)
}

func TestTriangle_Distance(t *testing.T) {
	t.Parallel()

	tri := obstacle.NewTriangle(geom.Triangle{
		P1: geom.Vec2{X: 0, Y: 0},
		P2: geom.Vec2{X: 2, Y: 0},
		P3: geom.Vec2{X: 1, Y: 2},
	}, 0)
	assert.Less(t, tri.Distance(geom.Vec2{X: 1, Y: 0.5}), 0.0)
	assert.Greater(t, tri.Distance(geom.Vec2{X: 10, Y: 10}), 0.0)
}

func TestBoundingRadius_NonNegative(t *testing.T) {
	t.Parallel()

	shapes := []obstacle.Obstacle{
		obstacle.NewCircle(geom.Vec2{}, 1, 0),
		obstacle.NewRect(geom.Rect{Min: geom.Vec2{X: -1, Y: -1}, Max: geom.Vec2{X: 1, Y: 1}}, 0),
		obstacle.NewTriangle(geom.Triangle{P1: geom.Vec2{X: 0, Y: 0}, P2: geom.Vec2{X: 1, Y: 0}, P3: geom.Vec2{X: 0, Y: 1}}, 0),
		obstacle.NewLine(geom.Segment{A: geom.Vec2{X: 0, Y: 0}, B: geom.Vec2{X: 1, Y: 0}}, 0.1, 0),
	}
	for _, s := range shapes {
		assert.GreaterOrEqual(t, s.BoundingRadius(), 0.0)
	}
}
