package tracker_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/robocin/framework/internal/config"
	"github.com/robocin/framework/internal/vision/camera"
	"github.com/robocin/framework/internal/vision/robotfilter"
	"github.com/robocin/framework/internal/vision/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDebugCollector struct {
	robotAssociations int
	ballAssociations  int
	dropped           int
}

func (m *mockDebugCollector) RobotAssociation(tracker.RobotKey, int, float64, bool) { m.robotAssociations++ }
func (m *mockDebugCollector) BallAssociation(int, float64, bool, bool)              { m.ballAssociations++ }
func (m *mockDebugCollector) PacketDropped(int, string)                            { m.dropped++ }

func TestProcess_DropsPacketsBeforeCalibration(t *testing.T) {
	t.Parallel()

	dbg := &mockDebugCollector{}
	tr := tracker.New(config.Default(), tracker.WithDebugCollector(dbg))

	t0 := time.Unix(0, 0)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0,
		Yellow:      []tracker.RawDetection{{ID: 1, XMM: 0, YMM: 0}},
	})
	tr.Process(t0)

	snap := tr.WorldState(t0)
	assert.Empty(t, snap.Yellow)
	assert.Equal(t, 1, dbg.dropped)
}

func TestProcess_CreatesThenAssociatesRobotFilter(t *testing.T) {
	t.Parallel()

	dbg := &mockDebugCollector{}
	tr := tracker.New(config.Default(), tracker.WithDebugCollector(dbg))
	tr.UpsertCamera(camera.Camera{ID: 0})

	t0 := time.Unix(0, 0)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0,
		Yellow:      []tracker.RawDetection{{ID: 7, XMM: 1000, YMM: 0}},
	})
	tr.Process(t0)

	snap := tr.WorldState(t0)
	require.Contains(t, snap.Yellow, 7)

	t1 := t0.Add(50 * time.Millisecond)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t1,
		Yellow:      []tracker.RawDetection{{ID: 7, XMM: 1000, YMM: 0}},
	})
	tr.Process(t1)

	snap = tr.WorldState(t1)
	require.Contains(t, snap.Yellow, 7)
	assert.Equal(t, 2, dbg.robotAssociations)
}

func TestProcess_BallAssociatesAcrossFrames(t *testing.T) {
	t.Parallel()

	tr := tracker.New(config.Default())
	tr.UpsertCamera(camera.Camera{ID: 0})

	t0 := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		ti := t0.Add(time.Duration(i) * 20 * time.Millisecond)
		tr.QueuePacket(tracker.VisionPacket{
			CameraID:    0,
			CaptureTime: ti,
			Balls:       []tracker.RawBallDetection{{XMM: 100, YMM: 100}},
		})
		tr.Process(ti)
	}

	snap := tr.WorldState(t0.Add(40 * time.Millisecond))
	assert.True(t, snap.BallTracked)
	assert.True(t, snap.Ball.Visible)
}

func TestQueueRadio_UpdatesKickState(t *testing.T) {
	t.Parallel()

	tr := tracker.New(config.Default())
	tr.UpsertCamera(camera.Camera{ID: 0})

	t0 := time.Unix(0, 0)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0,
		Blue:        []tracker.RawDetection{{ID: 3, XMM: 0, YMM: 0}},
	})
	tr.Process(t0)

	tr.QueueRadio(robotfilter.TeamBlue, 3, robotfilter.RadioCommand{
		Time:          t0,
		HasKickIsChip: true,
		KickIsChip:    true,
	})

	snap := tr.WorldState(t0)
	require.Contains(t, snap.Blue, 3)
	assert.True(t, snap.Blue[3].KickIsChip)
}

func TestResetTrack_RemovesFilterPool(t *testing.T) {
	t.Parallel()

	tr := tracker.New(config.Default())
	tr.UpsertCamera(camera.Camera{ID: 0})

	t0 := time.Unix(0, 0)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0,
		Yellow:      []tracker.RawDetection{{ID: 9, XMM: 0, YMM: 0}},
	})
	tr.Process(t0)
	require.Contains(t, tr.WorldState(t0).Yellow, 9)

	tr.ResetTrack(robotfilter.TeamYellow, 9)
	assert.NotContains(t, tr.WorldState(t0).Yellow, 9)
}

func TestWorldState_RepeatedCallsAtSameTimeAreStructurallyEqual(t *testing.T) {
	t.Parallel()

	tr := tracker.New(config.Default())
	tr.UpsertCamera(camera.Camera{ID: 0})

	t0 := time.Unix(0, 0)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0,
		Yellow:      []tracker.RawDetection{{ID: 4, XMM: 500, YMM: -500, OrientationRad: 1.2}},
		Balls:       []tracker.RawBallDetection{{XMM: 100, YMM: 100}},
	})
	tr.Process(t0)

	first := tr.WorldState(t0)
	second := tr.WorldState(t0)

	// WorldState predicts each pool's best filter forward to now; calling it
	// twice for the same now with no intervening Process must not perturb
	// filter state, so the two snapshots must be identical down to the
	// nested Info values (ignoring the wall-clock Time field, which reflects
	// the request time, not filter state).
	diff := cmp.Diff(first, second, cmpopts.IgnoreFields(tracker.Snapshot{}, "Time"))
	assert.Empty(t, diff)
}

func TestProcess_InvalidatesStaleRobotFilters(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	tr := tracker.New(cfg)
	tr.UpsertCamera(camera.Camera{ID: 0})

	t0 := time.Unix(0, 0)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0,
		Yellow:      []tracker.RawDetection{{ID: 1, XMM: 0, YMM: 0}},
	})
	tr.Process(t0)

	future := t0.Add(cfg.RobotFilter.MaxTimeLastLimit + time.Second)
	tr.Process(future)

	snap := tr.WorldState(future)
	assert.NotContains(t, snap.Yellow, 1)
}

func TestProcess_LoneRobotFilterKeptPastShortLimit(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	tr := tracker.New(cfg)
	tr.UpsertCamera(camera.Camera{ID: 0})

	t0 := time.Unix(0, 0)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0,
		Yellow:      []tracker.RawDetection{{ID: 1, XMM: 0, YMM: 0}},
	})
	tr.Process(t0)

	// The only filter for this robot has no sibling to carry the track on,
	// so it is kept past the shorter MaxTimeLimit and only dropped once
	// MaxTimeLastLimit runs out.
	afterShortLimit := t0.Add(cfg.RobotFilter.MaxTimeLimit + time.Millisecond)
	tr.Process(afterShortLimit)

	snap := tr.WorldState(afterShortLimit)
	assert.Contains(t, snap.Yellow, 1)
}

func TestProcess_DropsOutOfOrderPacketBySourceTime(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Tracker.VisionProcessingTime = 10 * time.Millisecond
	dbg := &mockDebugCollector{}
	tr := tracker.New(cfg, tracker.WithDebugCollector(dbg))
	tr.UpsertCamera(camera.Camera{ID: 0})

	t0 := time.Unix(0, 0)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0.Add(100 * time.Millisecond),
		Yellow:      []tracker.RawDetection{{ID: 1, XMM: 0, YMM: 0}},
	})
	tr.Process(t0.Add(200 * time.Millisecond))
	require.Contains(t, tr.WorldState(t0.Add(200*time.Millisecond)).Yellow, 1)

	// A packet captured before the already-accepted one, once
	// source-time-shifted, must be dropped instead of rewinding the pool.
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0.Add(50 * time.Millisecond),
		Yellow:      []tracker.RawDetection{{ID: 2, XMM: 0, YMM: 0}},
	})
	tr.Process(t0.Add(200 * time.Millisecond))

	snap := tr.WorldState(t0.Add(200 * time.Millisecond))
	assert.NotContains(t, snap.Yellow, 2)
	assert.Equal(t, 1, dbg.dropped)
}

func TestHandleCommand_AOIRejectsDetectionsOutsideRectangle(t *testing.T) {
	t.Parallel()

	tr := tracker.New(config.Default())
	tr.UpsertCamera(camera.Camera{ID: 0})

	enabled := true
	tr.HandleCommand(tracker.Command{
		SetAOIEnabled: &enabled,
		SetAOI:        &tracker.AOI{X1: -1, Y1: -1, X2: 1, Y2: 1},
	})

	t0 := time.Unix(0, 0)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0,
		// 5m out on the field frame's x axis, well outside the 1m AOI.
		Yellow: []tracker.RawDetection{{ID: 1, XMM: 0, YMM: 5000}},
	})
	tr.Process(t0)

	snap := tr.WorldState(t0)
	assert.NotContains(t, snap.Yellow, 1)
	assert.True(t, snap.HasVisionData)
}

func TestHandleCommand_ResetClearsPoolsAndRestartsGraceWindow(t *testing.T) {
	t.Parallel()

	tr := tracker.New(config.Default())
	tr.UpsertCamera(camera.Camera{ID: 0})

	t0 := time.Unix(0, 0)
	tr.QueuePacket(tracker.VisionPacket{
		CameraID:    0,
		CaptureTime: t0,
		Yellow:      []tracker.RawDetection{{ID: 1, XMM: 0, YMM: 0}},
	})
	tr.Process(t0)
	require.Contains(t, tr.WorldState(t0).Yellow, 1)

	tr.HandleCommand(tracker.Command{Reset: true})
	assert.NotContains(t, tr.WorldState(t0).Yellow, 1)
}

func TestWorldState_ReportsGeometryFromUpsertedCameras(t *testing.T) {
	t.Parallel()

	tr := tracker.New(config.Default())
	tr.UpsertCamera(camera.Camera{ID: 0})
	tr.UpsertCamera(camera.Camera{ID: 1})

	t0 := time.Unix(0, 0)
	snap := tr.WorldState(t0)
	assert.False(t, snap.HasVisionData)
	assert.Len(t, snap.Geometry, 2)
}
