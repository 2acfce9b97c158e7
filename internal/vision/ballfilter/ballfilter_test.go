package ballfilter_test

import (
	"math"
	"testing"
	"time"

	"github.com/robocin/framework/internal/config"
	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/vision/ballfilter"
	"github.com/robocin/framework/internal/vision/camera"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noCamera = camera.Vec3{X: 0, Y: 0, Z: 5}

func TestNew_SeedsPositionAtZeroVelocity(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	t0 := time.Unix(0, 0)
	f := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: 1, Y: 1}}, t0, cfg)

	info := f.Get()
	assert.InDelta(t, 1, info.Pos.X, 1e-9)
	assert.True(t, info.Visible)
	assert.False(t, info.Dribbling)
}

func TestUpdate_MarksInvisibleAfterMaxTimeLimit(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	t0 := time.Unix(0, 0)
	f := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: 0, Y: 0}}, t0, cfg)

	f.Update(t0.Add(cfg.MaxTimeLimit + time.Millisecond))
	assert.False(t, f.Get().Visible)
}

func TestAddVisionFrame_RestoresVisibility(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	t0 := time.Unix(0, 0)
	f := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: 0, Y: 0}}, t0, cfg)

	stale := t0.Add(cfg.MaxTimeLimit + time.Millisecond)
	f.Update(stale)
	assert.False(t, f.Get().Visible)

	f.AddVisionFrame(0, ballfilter.Detection{Pos: geom.Vec2{X: 0.01, Y: 0}}, stale, nil, noCamera)
	assert.True(t, f.Get().Visible)
}

func TestAddVisionFrame_NonFiniteMeasurementResetsFrameCounter(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	t0 := time.Unix(0, 0)
	f := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: 0, Y: 0}}, t0, cfg)

	// A run of ordinary frames first, so the filter is mature going in.
	for i := 1; i <= 10; i++ {
		ti := t0.Add(time.Duration(i) * 100 * time.Millisecond)
		f.Update(ti)
		f.AddVisionFrame(0, ballfilter.Detection{Pos: geom.Vec2{X: float64(i) * 0.05, Y: 0}}, ti, nil, noCamera)
	}
	require.True(t, f.Mature())

	// A NaN measurement corrupts the Kalman state; the filter must reset
	// to a finite position and re-arm its frame counter at zero rather
	// than keep the maturity it built up on now-corrupted history.
	tNaN := t0.Add(1100 * time.Millisecond)
	f.Update(tNaN)
	f.AddVisionFrame(0, ballfilter.Detection{Pos: geom.Vec2{X: math.NaN(), Y: math.NaN()}}, tNaN, nil, noCamera)

	assert.Equal(t, 0, f.FrameCounter)
	assert.False(t, f.Mature())
	info := f.Get()
	assert.True(t, info.Pos.IsFinite())
}

func TestCloneFrom_CopiesStateAndProvenance(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	t0 := time.Unix(0, 0)
	parent := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: 2, Y: 3}}, t0, cfg)

	clone := ballfilter.CloneFrom(parent, t0)
	assert.True(t, clone.IsClone())
	assert.Equal(t, parent.ID, clone.ClonedFromID)
	assert.InDelta(t, 2, clone.Get().Pos.X, 1e-9)
	assert.InDelta(t, 3, clone.Get().Pos.Y, 1e-9)
	assert.NotEqual(t, parent.ID, clone.ID)
}

func TestAddVisionFrame_DribblingSnapsToDribblerAfterThreshold(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	cfg.EnableCollisionRules = true
	t0 := time.Unix(0, 0)
	f := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: 0, Y: 0}}, t0, cfg)

	dribbler := geom.Vec2{X: 0.5, Y: 0.5}
	nearby := []ballfilter.NearbyRobot{{
		Identifier:    7,
		RobotPos:      geom.Vec2{X: 0.4, Y: 0.5},
		DribblerPos:   dribbler,
		Radius:        0.088,
		Height:        0.148,
		DribblerWidth: 0.07,
	}}

	tick := 20 * time.Millisecond
	tNow := t0
	for i := 0; i < 6; i++ {
		tNow = tNow.Add(tick)
		f.Update(tNow)
		f.AddVisionFrame(0, ballfilter.Detection{Pos: dribbler}, tNow, nearby, noCamera)
	}

	info := f.Get()
	assert.True(t, info.Dribbling)
	assert.InDelta(t, dribbler.X, info.Pos.X, 0.05)
}

func TestAddVisionFrame_PushesOutOfRobotBody(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	cfg.EnableCollisionRules = true
	t0 := time.Unix(0, 0)
	f := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: -1, Y: 0}}, t0, cfg)

	robotPos := geom.Vec2{X: 0, Y: 0}
	// Dribbler faces away from the intrusion point so the dribbling-zone
	// rule cannot claim this measurement first.
	nearby := []ballfilter.NearbyRobot{{
		Identifier:    3,
		RobotPos:      robotPos,
		DribblerPos:   geom.Vec2{X: 0.088, Y: 0},
		Radius:        0.088,
		Height:        0.148,
		DribblerWidth: 0.07,
	}}

	t1 := t0.Add(20 * time.Millisecond)
	f.Update(t1)
	// A raw measurement landing inside the robot's body must never be
	// accepted verbatim.
	f.AddVisionFrame(0, ballfilter.Detection{Pos: geom.Vec2{X: -0.01, Y: 0}}, t1, nearby, noCamera)

	info := f.Get()
	assert.GreaterOrEqual(t, info.Pos.Distance(robotPos), 0.08)
}

func TestDistanceTo(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	t0 := time.Unix(0, 0)
	f := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: 0, Y: 0}}, t0, cfg)

	assert.InDelta(t, 5.0, f.DistanceTo(ballfilter.Detection{Pos: geom.Vec2{X: 3, Y: 4}}), 1e-9)
}

func TestAcceptDetection_NearLastReportedAlwaysAccepted(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	t0 := time.Unix(0, 0)
	f := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: 5, Y: 5}}, t0, cfg)

	// Far from the ground estimate but within the fixed 0.5m
	// last-reported-position window.
	assert.True(t, f.AcceptDetection(ballfilter.Detection{Pos: geom.Vec2{X: 5.3, Y: 5}}))
}

func TestAcceptDetection_FarDetectionRejected(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	t0 := time.Unix(0, 0)
	f := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: 0, Y: 0}}, t0, cfg)

	assert.False(t, f.AcceptDetection(ballfilter.Detection{Pos: geom.Vec2{X: 10, Y: 10}}))
}

func TestAddVisionFrame_SegmentCrossingRobotHullIsClipped(t *testing.T) {
	t.Parallel()

	cfg := config.Default().BallFilter
	cfg.EnableCollisionRules = true
	t0 := time.Unix(0, 0)
	// The ball starts well clear of the robot, then the next raw
	// detection reports it having passed straight through the robot's
	// body: the reported position must be clipped to the hull crossing,
	// not the far-side raw measurement.
	f := ballfilter.New(ballfilter.Detection{Pos: geom.Vec2{X: -1, Y: 0}}, t0, cfg)

	robotPos := geom.Vec2{X: 0, Y: 0}
	nearby := []ballfilter.NearbyRobot{{
		Identifier:    9,
		RobotPos:      robotPos,
		DribblerPos:   geom.Vec2{X: -0.088, Y: 0},
		Radius:        0.088,
		Height:        0.148,
		DribblerWidth: 0.07,
	}}

	t1 := t0.Add(20 * time.Millisecond)
	f.Update(t1)
	f.AddVisionFrame(0, ballfilter.Detection{Pos: geom.Vec2{X: 1, Y: 0}}, t1, nearby, noCamera)

	info := f.Get()
	assert.LessOrEqual(t, info.Pos.X, 0.1)
}
