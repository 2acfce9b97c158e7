// Package tracker implements the fusion supervisor (C5): it owns the pool
// of per-robot and per-ball filters, routes queued vision packets and radio
// feedback into them in capture-time order, and reports point-in-time world
// state snapshots.
//
// Wire-format decoding, GUI rendering and strategy scripting are external
// collaborators; this package only consumes already-decoded detections
// through VisionPacket and RadioCommand.
package tracker

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/robocin/framework/internal/config"
	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/logging"
	"github.com/robocin/framework/internal/vision/ballfilter"
	"github.com/robocin/framework/internal/vision/camera"
	"github.com/robocin/framework/internal/vision/robotfilter"
)

// RawDetection is a single robot observation in raw vision-frame
// millimeters, as received before field-frame conversion (§4.1).
type RawDetection struct {
	ID             int
	XMM, YMM       float64
	OrientationRad float64
}

// RawBallDetection is a single ball observation in raw vision-frame
// millimeters.
type RawBallDetection struct {
	XMM, YMM float64
}

// VisionPacket is one decoded detection frame from a single camera (§4.1).
type VisionPacket struct {
	CameraID    int
	CaptureTime time.Time
	Yellow      []RawDetection
	Blue        []RawDetection
	Balls       []RawBallDetection
}

// RobotKey identifies a single robot track across the yellow/blue teams.
type RobotKey struct {
	Team robotfilter.Team
	ID   int
}

// Snapshot is a point-in-time fused view of the world (§3).
type Snapshot struct {
	Time        time.Time
	Yellow      map[int]robotfilter.Info
	Blue        map[int]robotfilter.Info
	Ball        ballfilter.Info
	BallTracked bool

	// HasVisionData reports whether any calibrated packet has ever been
	// applied, independent of whether an area-of-interest filter excluded
	// every detection in it (§4.4, §8 boundary behavior).
	HasVisionData bool
	// Geometry lists every camera calibration known so far.
	Geometry []camera.Camera
}

// AOI is an axis-aligned area-of-interest rectangle in field-frame meters,
// applied after the flip convention (§4.4).
type AOI struct {
	X1, Y1, X2, Y2 float64
}

func (a AOI) rect() geom.Rect {
	return geom.Rect{Min: geom.Vec2{X: a.X1, Y: a.Y1}, Max: geom.Vec2{X: a.X2, Y: a.Y2}}
}

// Command is a tracking-control message: enabling/disabling the
// area-of-interest filter, changing the system delay compensation, or
// resetting the whole tracker (§4.4, §6).
type Command struct {
	SetAOIEnabled  *bool
	SetAOI         *AOI
	SetSystemDelay *time.Duration
	Reset          bool
}

// DebugCollector receives optional instrumentation events; a nil collector
// disables all instrumentation overhead (§9 supplemented feature).
type DebugCollector interface {
	RobotAssociation(key RobotKey, cameraID int, distance float64, created bool)
	BallAssociation(cameraID int, distance float64, created, cloned bool)
	PacketDropped(cameraID int, reason string)
}

// StateSink optionally persists every processed snapshot (see
// internal/storage/sqlite). A nil sink disables persistence entirely.
type StateSink interface {
	LogWorldState(Snapshot)
}

// Tracker is the fusion supervisor (C5). The zero value is not usable; call
// New.
type Tracker struct {
	mu sync.Mutex

	cfg      config.Config
	cameras  *camera.Registry
	loggers  *logging.Loggers
	debug    DebugCollector
	sink     StateSink

	pending []VisionPacket

	robotPool map[RobotKey][]*robotfilter.Filter
	ballPool  []*ballfilter.Filter
	lastBall  geom.Vec2

	lastProcessed  time.Time
	lastSourceTime time.Time
	resetTime      time.Time

	hasVisionData bool
	aoiEnabled    bool
	aoi           AOI
}

// Option configures optional Tracker behavior.
type Option func(*Tracker)

// WithDebugCollector attaches a DebugCollector.
func WithDebugCollector(c DebugCollector) Option { return func(t *Tracker) { t.debug = c } }

// WithStateSink attaches a StateSink.
func WithStateSink(s StateSink) Option { return func(t *Tracker) { t.sink = s } }

// WithLoggers attaches the ops/diag/trace logger bundle. A nil bundle (or
// never calling this option) leaves every stream discarding.
func WithLoggers(l *logging.Loggers) Option {
	return func(t *Tracker) { t.loggers = logging.OrDiscard(l) }
}

// New constructs a Tracker with an empty camera registry and filter pools.
func New(cfg config.Config, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:       cfg,
		cameras:   camera.NewRegistry(),
		loggers:   logging.Discard(),
		robotPool: make(map[RobotKey][]*robotfilter.Filter),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// UpsertCamera applies a geometry/calibration update immediately; it is
// never queued, since queued detections from that camera must be able to
// rely on it already being present (§4.1 supplemented feature).
func (t *Tracker) UpsertCamera(cam camera.Camera) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cameras.Upsert(cam)
}

// SetFlip sets the field-side flip applied by VisionToField.
func (t *Tracker) SetFlip(flip bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cameras.Flip = flip
}

// QueuePacket enqueues a decoded vision packet for the next Process call.
func (t *Tracker) QueuePacket(pkt VisionPacket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, pkt)
}

// QueueRadio applies radio feedback to every filter currently tracking
// (team, robotID). Radio feedback is delivered synchronously rather than
// queued: filters buffer it internally by timestamp (§4.2).
func (t *Tracker) QueueRadio(team robotfilter.Team, robotID int, cmd robotfilter.RadioCommand) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := RobotKey{Team: team, ID: robotID}
	for _, f := range t.robotPool[key] {
		f.AddRadioCommand(cmd)
	}
}

// ResetTrack discards every filter tracking (team, robotID), forcing a
// fresh filter to be created on the next matching detection (§4.2 "reset").
func (t *Tracker) ResetTrack(team robotfilter.Team, robotID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.robotPool, RobotKey{Team: team, ID: robotID})
}

// HandleCommand applies a tracking-control command (§4.4, §6). A Reset
// drops every filter pool and the last ball position and restarts the
// maturity-relaxation grace window; camera calibrations, queued packets,
// the source-time ordering and HasVisionData are kept.
func (t *Tracker) HandleCommand(cmd Command) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cmd.SetAOIEnabled != nil {
		t.aoiEnabled = *cmd.SetAOIEnabled
	}
	if cmd.SetAOI != nil {
		t.aoi = *cmd.SetAOI
	}
	if cmd.SetSystemDelay != nil {
		t.cfg.Tracker.SystemDelay = *cmd.SetSystemDelay
	}
	if cmd.Reset {
		t.robotPool = make(map[RobotKey][]*robotfilter.Filter)
		t.ballPool = nil
		t.lastBall = geom.Vec2{}
		t.resetTime = time.Time{}
	}
}

// Process replays every queued packet with CaptureTime <= now, in
// capture-time order, associating detections into the filter pools, then
// invalidates filters that have gone stale (§4.2, §4.3, §4.4).
func (t *Tracker) Process(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resetTime.IsZero() {
		t.resetTime = now
	}

	sort.SliceStable(t.pending, func(i, j int) bool {
		return t.pending[i].CaptureTime.Before(t.pending[j].CaptureTime)
	})

	i := 0
	for ; i < len(t.pending); i++ {
		pkt := t.pending[i]
		if pkt.CaptureTime.After(now) {
			break
		}
		// source_time compensates for the fixed vision-processing latency
		// and any additional system delay, so packets are ordered by when
		// the camera actually saw the world rather than when the packet
		// reached the tracker (§4.4).
		sourceTime := pkt.CaptureTime.Add(-t.cfg.Tracker.VisionProcessingTime).Add(-t.cfg.Tracker.SystemDelay)
		if !t.lastSourceTime.IsZero() && !sourceTime.After(t.lastSourceTime) {
			t.loggers.Ops.Printf("dropped packet from camera %d: out of order source time", pkt.CameraID)
			if t.debug != nil {
				t.debug.PacketDropped(pkt.CameraID, "out of order source time")
			}
			continue
		}
		t.applyPacket(pkt)
		t.lastProcessed = pkt.CaptureTime
		t.lastSourceTime = sourceTime
	}
	t.pending = t.pending[i:]

	t.invalidateStale(now)

	t.loggers.Diag.Printf("processed tick: robot tracks=%d ball tracks=%d pending=%d",
		len(t.robotPool), len(t.ballPool), len(t.pending))

	if t.sink != nil {
		t.sink.LogWorldState(t.snapshotLocked(now))
	}
}

func (t *Tracker) applyPacket(pkt VisionPacket) {
	if !t.cameras.Has(pkt.CameraID) {
		t.loggers.Ops.Printf("dropped packet from camera %d: camera not calibrated", pkt.CameraID)
		if t.debug != nil {
			t.debug.PacketDropped(pkt.CameraID, "camera not calibrated")
		}
		return
	}
	t.hasVisionData = true

	for _, raw := range pkt.Yellow {
		if t.rejectByAOI(raw.XMM, raw.YMM) {
			continue
		}
		t.applyRobotDetection(robotfilter.TeamYellow, pkt.CameraID, raw, pkt.CaptureTime)
	}
	for _, raw := range pkt.Blue {
		if t.rejectByAOI(raw.XMM, raw.YMM) {
			continue
		}
		t.applyRobotDetection(robotfilter.TeamBlue, pkt.CameraID, raw, pkt.CaptureTime)
	}

	nearby := t.nearbyRobotsLocked(pkt.CaptureTime)
	for _, raw := range pkt.Balls {
		if t.rejectByAOI(raw.XMM, raw.YMM) {
			continue
		}
		t.applyBallDetection(pkt.CameraID, raw, pkt.CaptureTime, nearby)
	}
}

// rejectByAOI reports whether a raw vision-frame detection falls outside
// the configured area of interest and should be dropped before it ever
// reaches a filter pool (§4.4 supplemented feature).
func (t *Tracker) rejectByAOI(xmm, ymm float64) bool {
	if !t.aoiEnabled {
		return false
	}
	pos := t.cameras.VisionToField(xmm, ymm)
	return !t.aoi.rect().Contains(pos)
}

func (t *Tracker) applyRobotDetection(team robotfilter.Team, cameraID int, raw RawDetection, ts time.Time) {
	key := RobotKey{Team: team, ID: raw.ID}
	pos := t.cameras.VisionToField(raw.XMM, raw.YMM)
	det := robotfilter.Detection{Pos: pos, Orientation: raw.OrientationRad}

	pool := t.robotPool[key]
	for _, f := range pool {
		f.Update(ts)
	}

	best, bestDist := nearestRobotFilter(pool, det)
	gate := t.cfg.RobotFilter.AssociationGateMeters
	if best != nil && bestDist <= gate {
		best.AddVisionFrame(cameraID, det, ts)
		t.loggers.Trace.Printf("robot %+v cam=%d assoc dist=%.4f", key, cameraID, bestDist)
		if t.debug != nil {
			t.debug.RobotAssociation(key, cameraID, bestDist, false)
		}
		return
	}

	nf := robotfilter.New(team, raw.ID, det, ts, t.cfg.RobotFilter)
	t.robotPool[key] = append(pool, nf)
	t.loggers.Trace.Printf("robot %+v cam=%d spawned new filter", key, cameraID)
	if t.debug != nil {
		t.debug.RobotAssociation(key, cameraID, bestDist, true)
	}
}

func nearestRobotFilter(pool []*robotfilter.Filter, det robotfilter.Detection) (*robotfilter.Filter, float64) {
	var best *robotfilter.Filter
	bestDist := math.Inf(1)
	for _, f := range pool {
		d := f.DistanceTo(det)
		if d < bestDist {
			bestDist = d
			best = f
		}
	}
	return best, bestDist
}

// applyBallDetection routes a single ball observation into the ball pool
// per §4.5: every surviving filter is asked whether it accepts the
// detection (its own accept_detection contract, not a bare distance gate);
// among the accepters, the closest one consumes it. Camera handover — a
// mature filter that doesn't accept the detection outright but sits close
// enough to explain it as the ball crossing from one camera's view into
// another's — clones the source filter rather than starting from scratch.
func (t *Tracker) applyBallDetection(cameraID int, raw RawBallDetection, ts time.Time, nearby []ballfilter.NearbyRobot) {
	pos := t.cameras.VisionToField(raw.XMM, raw.YMM)
	det := ballfilter.Detection{Pos: pos}
	camPos, _ := t.cameras.Position(cameraID)

	for _, f := range t.ballPool {
		f.Update(ts)
	}

	if best, dist := bestAccepter(t.ballPool, det); best != nil {
		best.AddVisionFrame(cameraID, det, ts, nearby, camPos)
		if t.debug != nil {
			t.debug.BallAssociation(cameraID, dist, false, false)
		}
		return
	}

	// Camera handover: a mature filter whose extrapolated position lands
	// near this detection is more trustworthy than starting from scratch,
	// even though it did not accept the detection under its own contract
	// (§4.5 supplemented feature).
	handoverGate := t.cfg.BallFilter.AcceptDistanceMeters * t.cfg.BallFilter.FarNearRatioForFarSelection
	if src, dist := bestHandoverCandidate(t.ballPool, det, handoverGate); src != nil {
		clone := ballfilter.CloneFrom(src, ts)
		clone.AddVisionFrame(cameraID, det, ts, nearby, camPos)
		t.ballPool = append(t.ballPool, clone)
		if t.debug != nil {
			t.debug.BallAssociation(cameraID, dist, true, true)
		}
		return
	}

	nf := ballfilter.New(det, ts, t.cfg.BallFilter)
	t.ballPool = append(t.ballPool, nf)
	if t.debug != nil {
		t.debug.BallAssociation(cameraID, 0, true, false)
	}
}

// bestAccepter returns the closest filter among those that accept det
// under their own accept_detection contract (§4.5).
func bestAccepter(pool []*ballfilter.Filter, det ballfilter.Detection) (*ballfilter.Filter, float64) {
	var best *ballfilter.Filter
	bestDist := math.Inf(1)
	for _, f := range pool {
		if !f.AcceptDetection(det) {
			continue
		}
		d := f.DistanceTo(det)
		if d < bestDist {
			bestDist = d
			best = f
		}
	}
	return best, bestDist
}

func bestHandoverCandidate(pool []*ballfilter.Filter, det ballfilter.Detection, gate float64) (*ballfilter.Filter, float64) {
	var best *ballfilter.Filter
	bestDist := math.Inf(1)
	for _, f := range pool {
		if !f.Mature() {
			continue
		}
		d := f.DistanceTo(det)
		if d <= gate && d < bestDist {
			bestDist = d
			best = f
		}
	}
	return best, bestDist
}

func (t *Tracker) nearbyRobotsLocked(now time.Time) []ballfilter.NearbyRobot {
	var nearby []ballfilter.NearbyRobot
	radius := t.cfg.RobotPhysical.RobotRadius
	relax := t.withinResetGrace(now, t.cfg.RobotFilter.ResetGracePeriod)
	for _, pool := range t.robotPool {
		best := selectBestRobotFilter(pool, relax)
		if best == nil {
			continue
		}
		info := best.Get(radius)
		nearby = append(nearby, ballfilter.NearbyRobot{
			Identifier:    info.Identifier,
			RobotPos:      info.RobotPos,
			DribblerPos:   info.DribblerPos,
			Radius:        radius,
			Velocity:      info.Speed,
			Height:        t.cfg.RobotPhysical.RobotHeight,
			DribblerWidth: t.cfg.RobotPhysical.DribblerWidth,
		})
	}
	return nearby
}

// invalidateStale drops filters that have gone too long without an update.
// A mature filter that shares its pool with at least one other filter is
// pruned at MaxTimeLimit, since a sibling can carry the track on; every
// other filter (an immature one, or the only filter in its pool) is kept
// until MaxTimeLastLimit, so a brief camera dropout does not discard the
// last track there is (§4.4).
func (t *Tracker) invalidateStale(now time.Time) {
	for key, pool := range t.robotPool {
		kept := pool[:0]
		dropped := 0
		for _, f := range pool {
			limit := t.cfg.RobotFilter.MaxTimeLastLimit
			if f.Mature() && len(pool) > 1 {
				limit = t.cfg.RobotFilter.MaxTimeLimit
			}
			if now.Sub(f.LastUpdate) <= limit {
				kept = append(kept, f)
			} else {
				dropped++
			}
		}
		if dropped > 0 {
			t.loggers.Ops.Printf("invalidated %d stale filter(s) for robot %+v", dropped, key)
		}
		if len(kept) == 0 {
			delete(t.robotPool, key)
		} else {
			t.robotPool[key] = kept
		}
	}

	kept := t.ballPool[:0]
	dropped := 0
	for _, f := range t.ballPool {
		limit := t.cfg.BallFilter.MaxTimeLastLimit
		if f.Mature() && len(t.ballPool) > 1 {
			limit = t.cfg.BallFilter.MaxTimeLimit
		}
		if now.Sub(f.LastUpdate) <= limit {
			kept = append(kept, f)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		t.loggers.Ops.Printf("invalidated %d stale ball filter(s)", dropped)
	}
	t.ballPool = kept
}

// withinResetGrace reports whether now still falls inside the given pool's
// post-reset grace window, during which maturity-based selection
// preference is relaxed so a brand-new track isn't ignored purely because
// nothing has had time to become mature yet (§4.4).
func (t *Tracker) withinResetGrace(now time.Time, grace time.Duration) bool {
	if t.resetTime.IsZero() {
		return false
	}
	return now.Sub(t.resetTime) <= grace
}

// selectBestRobotFilter prefers a mature filter over an immature one, then
// the one with the most accumulated frames, then the most recently updated
// (§4.2 best-filter rule). During the post-reset grace window, relaxMaturity
// drops the maturity tiebreak entirely so an immature filter can be
// selected immediately rather than waiting to accumulate frames.
func selectBestRobotFilter(pool []*robotfilter.Filter, relaxMaturity bool) *robotfilter.Filter {
	var best *robotfilter.Filter
	for _, f := range pool {
		if best == nil || robotFilterRanksHigher(f, best, relaxMaturity) {
			best = f
		}
	}
	return best
}

func robotFilterRanksHigher(a, b *robotfilter.Filter, relaxMaturity bool) bool {
	if !relaxMaturity && a.Mature() != b.Mature() {
		return a.Mature()
	}
	if a.FrameCounter != b.FrameCounter {
		return a.FrameCounter > b.FrameCounter
	}
	return a.LastUpdate.After(b.LastUpdate)
}

// selectBestBallFilter applies the near/far selection rule (§4.3): the
// closest-to-last-known-position candidate wins unless a farther candidate
// has accumulated FarNearRatioForFarSelection times as much evidence, in
// which case the well-established far track is trusted instead of a fresh
// nearby blob. During the post-reset grace window, relaxMaturity allows an
// immature far candidate to win the same way.
func selectBestBallFilter(pool []*ballfilter.Filter, lastPos geom.Vec2, ratio float64, relaxMaturity bool) *ballfilter.Filter {
	if len(pool) == 0 {
		return nil
	}
	var visible []*ballfilter.Filter
	for _, f := range pool {
		if f.Get().Visible {
			visible = append(visible, f)
		}
	}
	candidates := visible
	if len(candidates) == 0 {
		candidates = pool
	}

	near := candidates[0]
	nearDist := near.Get().Pos.Distance(lastPos)
	for _, f := range candidates[1:] {
		d := f.Get().Pos.Distance(lastPos)
		if d < nearDist {
			near, nearDist = f, d
		}
	}

	best := near
	for _, f := range candidates {
		if f == near || (!relaxMaturity && !f.Mature()) {
			continue
		}
		if float64(f.FrameCounter) > float64(near.FrameCounter)*ratio {
			best = f
		}
	}
	return best
}

// WorldState predicts every pool's best filter to now and returns a
// snapshot. Calling WorldState does not itself consume queued packets;
// call Process first.
func (t *Tracker) WorldState(now time.Time) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(now)
}

func (t *Tracker) snapshotLocked(now time.Time) Snapshot {
	radius := t.cfg.RobotPhysical.RobotRadius
	snap := Snapshot{
		Time:          now,
		Yellow:        make(map[int]robotfilter.Info),
		Blue:          make(map[int]robotfilter.Info),
		HasVisionData: t.hasVisionData,
		Geometry:      t.cameras.All(),
	}

	relaxRobot := t.withinResetGrace(now, t.cfg.RobotFilter.ResetGracePeriod)
	for key, pool := range t.robotPool {
		best := selectBestRobotFilter(pool, relaxRobot)
		if best == nil {
			continue
		}
		best.Update(now)
		info := best.Get(radius)
		switch key.Team {
		case robotfilter.TeamYellow:
			snap.Yellow[key.ID] = info
		case robotfilter.TeamBlue:
			snap.Blue[key.ID] = info
		}
	}

	relaxBall := t.withinResetGrace(now, t.cfg.BallFilter.ResetGracePeriod)
	if best := selectBestBallFilter(t.ballPool, t.lastBall, t.cfg.BallFilter.FarNearRatioForFarSelection, relaxBall); best != nil {
		best.Update(now)
		info := best.Get()
		snap.Ball = info
		snap.BallTracked = true
		t.lastBall = info.Pos
	}

	return snap
}
