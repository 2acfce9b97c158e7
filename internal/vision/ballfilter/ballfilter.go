// Package ballfilter implements the ball ground/collision estimator (C4): a
// Kalman-like ball position and velocity filter that, when collision rules
// are enabled, reasons about the ball resting in a robot's dribbler or
// being carried through a robot's body instead of moving freely, and about
// whether a camera could plausibly still see it.
package ballfilter

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/robocin/framework/internal/config"
	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/vision/camera"
)

// Detection is a single ball observation already converted to field-frame
// meters.
type Detection struct {
	Pos geom.Vec2
}

// NearbyRobot is the minimal robot state the collision rules need. Callers
// (the tracker) supply the set of robots close enough to matter; the filter
// never reaches back into the robot filter pool itself (§4.3).
type NearbyRobot struct {
	Identifier    int
	RobotPos      geom.Vec2
	DribblerPos   geom.Vec2
	Radius        float64
	Velocity      geom.Vec2
	Height        float64
	DribblerWidth float64
}

// Info is the immutable ball snapshot a filter reports (§3).
type Info struct {
	Pos       geom.Vec2
	Velocity  geom.Vec2
	Visible   bool
	Dribbling bool
}

// ballOffset remembers a ball's position relative to a specific robot's
// dribbler frame, so that once a robot's hull or dribbler is tracked it
// keeps being tracked across ticks instead of re-deriving the projection
// from scratch every time (§4.3).
type ballOffset struct {
	robotIdentifier int
	offset          geom.Vec2
	pushingPos      geom.Vec2
}

// Filter is a single ball estimator (C4), combining a "ground" Kalman
// estimate of the ball's free-flight state with the immediately preceding
// ("past") state used to reason about hull crossings. Multiple filters can
// coexist (e.g. one per source camera, or a clone created on camera
// handover); the tracker (C5) selects among them by §4.3's best-filter
// rule.
type Filter struct {
	ID            uuid.UUID
	ClonedFromID  uuid.UUID // zero value if not a clone
	hasClonedFrom bool

	FrameCounter int
	LastUpdate   time.Time

	x *mat.VecDense
	p *mat.Dense

	pastPos geom.Vec2
	pastVel geom.Vec2

	dribbling         bool
	dribblingSince    time.Time
	lastRawSpeed      float64
	lastVisibleUpdate time.Time
	visible           bool
	feasiblyOccluded  bool

	localBallOffset   *ballOffset
	insideRobotOffset *ballOffset
	lastReportedPos   geom.Vec2

	cfg config.BallFilterConfig
}

// New constructs a ball filter seeded at det, first observed at t.
func New(det Detection, t time.Time, cfg config.BallFilterConfig) *Filter {
	x := mat.NewVecDense(4, []float64{det.Pos.X, det.Pos.Y, 0, 0})
	p := mat.NewDense(4, 4, []float64{
		10, 0, 0, 0,
		0, 10, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	return &Filter{
		ID:                uuid.New(),
		FrameCounter:      1,
		LastUpdate:        t,
		x:                 x,
		p:                 p,
		visible:           true,
		lastVisibleUpdate: t,
		pastPos:           det.Pos,
		lastReportedPos:   det.Pos,
		cfg:               cfg,
	}
}

// CloneFrom constructs a new filter carrying the state of parent but
// attributing provenance to it, used when a ball crosses from one camera's
// view into another's (§4.3, supplemented feature). ClonedFromID is not
// part of the exported WorldState; it records provenance for debug tooling
// and is not read by filter selection.
func CloneFrom(parent *Filter, t time.Time) *Filter {
	var x mat.VecDense
	x.CloneFromVec(parent.x)
	var p mat.Dense
	p.CloneFrom(parent.p)
	return &Filter{
		ID:                uuid.New(),
		ClonedFromID:      parent.ID,
		hasClonedFrom:     true,
		FrameCounter:      parent.FrameCounter,
		LastUpdate:        t,
		x:                 &x,
		p:                 &p,
		pastPos:           parent.pastPos,
		pastVel:           parent.pastVel,
		dribbling:         parent.dribbling,
		dribblingSince:    parent.dribblingSince,
		lastRawSpeed:      parent.lastRawSpeed,
		visible:           parent.visible,
		lastVisibleUpdate: t,
		localBallOffset:   parent.localBallOffset,
		insideRobotOffset: parent.insideRobotOffset,
		lastReportedPos:   parent.lastReportedPos,
		cfg:               parent.cfg,
	}
}

// IsClone reports whether the filter was produced by CloneFrom.
func (f *Filter) IsClone() bool { return f.hasClonedFrom }

// Mature reports whether the filter has accumulated enough observations to
// be preferred for selection (§4.3).
func (f *Filter) Mature() bool { return f.FrameCounter >= f.cfg.MinFrameCountMature }

// AcceptDetection reports whether det is plausibly this filter's ball
// (§4.3): either it lands close to what was last reported, or it lands
// close enough to the ground estimate's own prediction that the ground
// filter itself would have accepted it as a correction.
func (f *Filter) AcceptDetection(det Detection) bool {
	const acceptBallDist = 0.5
	if f.lastReportedPos.Distance(det.Pos) < acceptBallDist {
		return true
	}
	return f.position().Distance(det.Pos) < f.cfg.AcceptDistanceMeters
}

// Update advances the estimator to time t, marking the ball invisible if it
// has gone unseen past MaxTimeLimit, unless it is feasibly resting out of
// camera view in a robot's dribbler (§4.3). Idempotent if t equals the
// filter's last update time.
func (f *Filter) Update(t time.Time) {
	if !t.After(f.LastUpdate) {
		return
	}
	dt := t.Sub(f.LastUpdate).Seconds()
	f.predict(dt)
	f.LastUpdate = t
	if t.Sub(f.lastVisibleUpdate) > f.cfg.MaxTimeLimit && !f.feasiblyOccluded {
		f.visible = false
	}
	if !f.isFiniteState() {
		f.resetToLastKnownPosition()
	}
}

func (f *Filter) predict(dt float64) {
	if dt <= 0 {
		return
	}
	F := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	var xNew mat.VecDense
	xNew.MulVec(F, f.x)
	f.x = &xNew

	var fp, fpft mat.Dense
	fp.Mul(F, f.p)
	fpft.Mul(&fp, F.T())
	q := mat.NewDiagDense(4, []float64{
		f.cfg.ProcessNoisePos, f.cfg.ProcessNoisePos,
		f.cfg.ProcessNoiseVel, f.cfg.ProcessNoiseVel,
	})
	var pNew mat.Dense
	pNew.Add(&fpft, q)
	f.p = &pNew
}

// AddVisionFrame corrects the estimator with a measurement from cameraID at
// time t. When collision rules are enabled, the raw measurement is first
// adjusted for dribbling/body contact, then, after the Kalman correction,
// the resulting ground position is walked back through any robot hull that
// separates the previous ("past") position from it, so a ball is never
// reported inside a robot's body (§4.3 rules 1-4). cameraPos is the 3-D
// position of the reporting camera, used for the occlusion test. The
// caller must have already called Update(t).
func (f *Filter) AddVisionFrame(cameraID int, det Detection, t time.Time, nearby []NearbyRobot, cameraPos camera.Vec3) {
	f.Update(t)

	measured := det.Pos
	if f.cfg.EnableCollisionRules {
		measured = f.applyCollisionRules(measured, t, nearby)
	} else {
		f.dribbling = false
		f.localBallOffset = nil
	}

	prevPos := f.position()
	prevVel := f.velocity()
	dt := t.Sub(f.LastUpdate).Seconds()

	z := mat.NewVecDense(2, []float64{measured.X, measured.Y})
	H := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})

	var hx mat.VecDense
	hx.MulVec(H, f.x)
	var y mat.VecDense
	y.SubVec(z, &hx)

	r := mat.NewDiagDense(2, []float64{f.cfg.MeasurementNoise, f.cfg.MeasurementNoise})

	var hp mat.Dense
	hp.Mul(H, f.p)
	var hpht mat.Dense
	hpht.Mul(&hp, H.T())
	var s mat.Dense
	s.Add(&hpht, r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return
	}

	var pht mat.Dense
	pht.Mul(f.p, H.T())
	var k mat.Dense
	k.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&k, &y)
	var xNew mat.VecDense
	xNew.AddVec(f.x, &ky)
	f.x = &xNew

	ident := mat.NewDiagDense(4, []float64{1, 1, 1, 1})
	var kh mat.Dense
	kh.Mul(&k, H)
	var imKh mat.Dense
	imKh.Sub(ident, &kh)
	var pNew mat.Dense
	pNew.Mul(&imKh, f.p)
	f.p = &pNew

	// Rule: an abrupt raw speed change (a kick or a collision bounce)
	// invalidates the smoothed velocity estimate faster than the Kalman
	// gain alone would relax it, so the reported velocity does not lag a
	// real direction reversal (§4.3 rule 3, supplemented).
	if f.cfg.EnableCollisionRules && dt > 0 {
		rawSpeed := measured.Sub(prevPos).Scale(1 / dt).Length()
		if math.Abs(rawSpeed-f.lastRawSpeed) > 0 && dt <= f.cfg.ResetSpeedThreshold.Seconds() {
			f.x.SetVec(2, measured.Sub(prevPos).Scale(1/dt).X)
			f.x.SetVec(3, measured.Sub(prevPos).Scale(1/dt).Y)
		}
		f.lastRawSpeed = rawSpeed
	}

	f.FrameCounter++
	f.LastUpdate = t
	f.visible = true
	f.lastVisibleUpdate = t

	f.clampVelocity()
	if !f.isFiniteState() {
		f.resetToLastKnownPosition()
	}

	if f.cfg.EnableCollisionRules {
		// A ball actively snapped to a dribbler (rule 1) is not also run
		// through the hull-crossing rules below: it is being carried, not
		// bouncing off the robot's body.
		if !f.dribbling {
			f.projectThroughRobots(prevPos, prevVel, nearby)
		}
		f.feasiblyOccluded = f.checkFeasibleOcclusion(nearby, cameraPos)
	}
	f.pastPos, f.pastVel = prevPos, prevVel
	f.lastReportedPos = f.position()
}

// applyCollisionRules implements §4.3 rules 1-2: a ball whose raw
// measurement lands inside a robot's dribbling zone for longer than
// ActivateDribblingThreshold is snapped to the dribbler position and
// treated as moving with the robot; a ball measured inside a robot's body
// disc is pushed back out to the disc's edge along the approach direction.
func (f *Filter) applyCollisionRules(measured geom.Vec2, t time.Time, nearby []NearbyRobot) geom.Vec2 {
	const dribblingZoneRadius = 0.09

	for _, r := range nearby {
		if measured.Distance(r.DribblerPos) <= dribblingZoneRadius {
			if !f.dribbling {
				f.dribbling = true
				f.dribblingSince = t
			}
			if t.Sub(f.dribblingSince) >= f.cfg.ActivateDribblingThreshold {
				f.localBallOffset = &ballOffset{
					robotIdentifier: r.Identifier,
					offset:          projectOffset(r.DribblerPos, r),
					pushingPos:      r.DribblerPos,
				}
				return r.DribblerPos
			}
			return measured
		}
	}
	f.dribbling = false
	f.localBallOffset = nil

	for _, r := range nearby {
		if r.Radius <= 0 {
			continue
		}
		if measured.Distance(r.RobotPos) < r.Radius {
			dir := measured.Sub(r.RobotPos)
			if dir.Length() < 1e-9 {
				dir = geom.Vec2{X: 1, Y: 0}
			}
			return r.RobotPos.Add(dir.Normalized().Scale(r.Radius))
		}
	}

	return measured
}

// projectThroughRobots implements §4.3 rules 2-4: if the ball's previous
// position was resting inside a robot's hull, it keeps projecting to that
// robot's frame (or re-derives the projection along the ball's relative
// motion, preferring the closer hull crossing unless the far one has
// accumulated far more supporting evidence per FarNearRatioForFarSelection);
// otherwise, if the straight segment from the previous to the new position
// crosses a robot's hull, the reported position is clipped to that
// crossing.
func (f *Filter) projectThroughRobots(prevPos, prevVel geom.Vec2, nearby []NearbyRobot) {
	currentPos := f.position()

	for _, r := range nearby {
		if isInsideRobot(prevPos, r, r.Radius) {
			if f.insideRobotOffset != nil && f.insideRobotOffset.robotIdentifier == r.Identifier {
				f.setPosition(unprojectOffset(f.insideRobotOffset.offset, r))
				f.setVelocity(r.Velocity)
				return
			}

			relSpeed := prevVel.Sub(r.Velocity)
			dir := relSpeed.Scale(-1)
			if relSpeed.Length() < 0.001 {
				dir = prevPos.Sub(r.RobotPos)
			}
			dir = dir.Normalized()
			if dir == (geom.Vec2{}) {
				continue
			}

			closeHit, haveClose := intersectLineSegmentRobot(prevPos, prevPos.Add(dir.Scale(1000)), r, r.Radius, r.DribblerWidth)
			farHit, haveFar := intersectLineSegmentRobot(prevPos, prevPos.Add(dir.Scale(-1000)), r, r.Radius, r.DribblerWidth)
			if haveClose && haveFar {
				closeDist := closeHit.Distance(prevPos)
				farDist := farHit.Distance(prevPos)
				projected := closeHit
				if closeDist >= farDist*f.cfg.FarNearRatioForFarSelection {
					projected = farHit
				}
				f.setPosition(projected)
				f.setVelocity(r.Velocity)
				f.insideRobotOffset = &ballOffset{robotIdentifier: r.Identifier, offset: projectOffset(projected, r)}
				return
			}
		}

		if hit, ok := intersectLineSegmentRobot(prevPos, currentPos, r, r.Radius, r.DribblerWidth); ok {
			f.setPosition(hit)
			f.setVelocity(r.Velocity)
			f.insideRobotOffset = nil
			return
		}
	}

	f.insideRobotOffset = nil
}

// checkFeasibleOcclusion reports whether the robot a ball is presently
// dribbling against would itself block the reporting camera's view of the
// ball right now, which lets Update suppress the "ball gone missing"
// transition while the ball is merely riding along in the dribbler out of
// sight (§4.3).
func (f *Filter) checkFeasibleOcclusion(nearby []NearbyRobot, cameraPos camera.Vec3) bool {
	if f.localBallOffset == nil {
		return false
	}
	for _, r := range nearby {
		if r.Identifier != f.localBallOffset.robotIdentifier {
			continue
		}
		if !isBallVisible(f.localBallOffset.pushingPos, r, r.Radius, r.Height, cameraPos) {
			return true
		}
		return !isBallVisible(f.lastReportedPos, r, r.Radius, r.Height, cameraPos)
	}
	return false
}

// DistanceTo returns the 2-D Euclidean distance from the filter's current
// (already predicted) position to det (§4.3).
func (f *Filter) DistanceTo(det Detection) float64 {
	return f.position().Distance(det.Pos)
}

// Get returns the ball info snapshot (§3).
func (f *Filter) Get() Info {
	return Info{
		Pos:       f.position(),
		Velocity:  f.velocity(),
		Visible:   f.visible,
		Dribbling: f.dribbling,
	}
}

func (f *Filter) position() geom.Vec2 {
	return geom.Vec2{X: f.x.AtVec(0), Y: f.x.AtVec(1)}
}

func (f *Filter) velocity() geom.Vec2 {
	return geom.Vec2{X: f.x.AtVec(2), Y: f.x.AtVec(3)}
}

func (f *Filter) setPosition(pos geom.Vec2) {
	f.x.SetVec(0, pos.X)
	f.x.SetVec(1, pos.Y)
}

func (f *Filter) setVelocity(vel geom.Vec2) {
	f.x.SetVec(2, vel.X)
	f.x.SetVec(3, vel.Y)
}

func (f *Filter) clampVelocity() {
	vx, vy := f.x.AtVec(2), f.x.AtVec(3)
	speed := math.Hypot(vx, vy)
	limit := f.cfg.MaxReasonableSpeedMps
	if limit <= 0 || speed <= limit {
		return
	}
	scale := limit / speed
	f.x.SetVec(2, vx*scale)
	f.x.SetVec(3, vy*scale)
}

func (f *Filter) isFiniteState() bool {
	for i := 0; i < 4; i++ {
		if math.IsNaN(f.x.AtVec(i)) || math.IsInf(f.x.AtVec(i), 0) {
			return false
		}
	}
	for i := 0; i < 4; i++ {
		if v := f.p.At(i, i); math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// resetToLastKnownPosition reinitializes the filter after a non-finite
// predict/update step. The frame counter re-arms at zero, matching the
// robot filter's reset behavior (SPEC_FULL "supplemented features").
func (f *Filter) resetToLastKnownPosition() {
	last := f.position()
	if !last.IsFinite() {
		last = geom.Vec2{}
	}
	f.x = mat.NewVecDense(4, []float64{last.X, last.Y, 0, 0})
	f.p = mat.NewDense(4, 4, []float64{
		10, 0, 0, 0,
		0, 10, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	f.FrameCounter = 0
}
