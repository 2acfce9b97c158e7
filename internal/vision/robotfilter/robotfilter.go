// Package robotfilter implements the per-robot Kalman-like estimator (C3):
// it absorbs vision detections and buffered radio commands for a single
// robot id and reports a smoothed position, velocity, dribbler pose and
// kick state.
package robotfilter

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/robocin/framework/internal/config"
	"github.com/robocin/framework/internal/geom"
)

// Team identifies which side a robot filter belongs to.
type Team int

const (
	TeamYellow Team = iota
	TeamBlue
)

// maxSpeedHistory bounds the rolling speed-history buffer used for
// percentile reporting, mirroring the pack's MaxSpeedHistoryLength.
const maxSpeedHistory = 100

// Detection is a single robot observation already converted to field-frame
// meters (see camera.Registry.VisionToField).
type Detection struct {
	Pos         geom.Vec2
	Orientation float64 // radians
}

// RadioCommand is a single piece of buffered radio feedback for a robot
// (§3, §4.2).
type RadioCommand struct {
	Time            time.Time
	HasKickIsChip   bool
	KickIsChip      bool
	HasKickIsLinear bool
	KickIsLinear    bool
	Speed           geom.Vec2
}

// Info is the immutable snapshot a filter reports for its robot (§3).
type Info struct {
	Identifier  int
	RobotPos    geom.Vec2
	DribblerPos geom.Vec2
	Speed       geom.Vec2
	KickIsChip  bool
	KickIsLinear bool
}

// Filter is a single per-track robot estimator (C3).
type Filter struct {
	ID      uuid.UUID
	Team    Team
	RobotID int

	FrameCounter int
	LastUpdate   time.Time
	firstUpdate  bool

	// Kalman state: [x, y, vx, vy].
	x *mat.VecDense
	p *mat.Dense

	orientation float64

	pendingRadio []RadioCommand
	kickIsChip   bool
	kickIsLinear bool

	speedHistory []float64

	cfg config.RobotFilterConfig
}

// New constructs a robot filter seeded at det, first observed at t.
func New(team Team, robotID int, det Detection, t time.Time, cfg config.RobotFilterConfig) *Filter {
	x := mat.NewVecDense(4, []float64{det.Pos.X, det.Pos.Y, 0, 0})
	p := mat.NewDense(4, 4, []float64{
		10, 0, 0, 0,
		0, 10, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	return &Filter{
		ID:           uuid.New(),
		Team:         team,
		RobotID:      robotID,
		FrameCounter: 1,
		LastUpdate:   t,
		firstUpdate:  true,
		x:            x,
		p:            p,
		orientation:  det.Orientation,
		cfg:          cfg,
	}
}

// Mature reports whether the filter has accumulated enough observations to
// be preferred over a sibling filter for the same robot id (§3, §4.2).
func (f *Filter) Mature() bool { return f.FrameCounter >= f.cfg.MinFrameCountMature }

// Update advances the estimator to time t. It is idempotent if t equals the
// filter's last update time (§4.2); radio commands already due by the last
// update are still applied then.
func (f *Filter) Update(t time.Time) {
	if !t.After(f.LastUpdate) {
		f.applyDueRadioCommands(f.LastUpdate)
		return
	}
	dt := t.Sub(f.LastUpdate).Seconds()
	f.predict(dt)
	f.applyDueRadioCommands(t)
	f.LastUpdate = t
	if !f.isFiniteState() {
		f.resetToLastKnownPosition()
	}
}

// predict applies the constant-velocity Kalman prediction step.
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
// time t. The caller must have already called Update(t) so the filter's
// predicted state is current (§4.2).
func (f *Filter) AddVisionFrame(cameraID int, det Detection, t time.Time) {
	f.Update(t)

	z := mat.NewVecDense(2, []float64{det.Pos.X, det.Pos.Y})
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
		// Singular innovation covariance: skip this measurement rather than
		// propagate garbage into the state (§7 "invalid configuration").
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

	f.orientation = det.Orientation
	f.FrameCounter++
	f.LastUpdate = t

	speed := math.Hypot(f.x.AtVec(2), f.x.AtVec(3))
	f.speedHistory = append(f.speedHistory, speed)
	if len(f.speedHistory) > maxSpeedHistory {
		f.speedHistory = f.speedHistory[1:]
	}

	f.clampVelocity()
	if !f.isFiniteState() {
		f.resetToLastKnownPosition()
	}
}

// AddRadioCommand buffers cmd for later application, ordered by time
// (§4.2). Commands are consumed (and their kick flags surfaced) once the
// filter's predicted time reaches cmd.Time.
func (f *Filter) AddRadioCommand(cmd RadioCommand) {
	f.pendingRadio = append(f.pendingRadio, cmd)
	sort.Slice(f.pendingRadio, func(i, j int) bool {
		return f.pendingRadio[i].Time.Before(f.pendingRadio[j].Time)
	})
}

// applyDueRadioCommands folds in any buffered radio commands whose time has
// come to pass, updating kick state.
func (f *Filter) applyDueRadioCommands(now time.Time) {
	i := 0
	for i < len(f.pendingRadio) && !f.pendingRadio[i].Time.After(now) {
		cmd := f.pendingRadio[i]
		if cmd.HasKickIsChip {
			f.kickIsChip = cmd.KickIsChip
		}
		if cmd.HasKickIsLinear {
			f.kickIsLinear = cmd.KickIsLinear
		}
		i++
	}
	f.pendingRadio = f.pendingRadio[i:]
}

// DistanceTo returns the 2-D Euclidean distance from the filter's current
// (already predicted) position to det (§4.2).
func (f *Filter) DistanceTo(det Detection) float64 {
	return f.position().Distance(det.Pos)
}

// Get returns the robot info snapshot, computing the dribbler position from
// the current orientation and the given robot radius (§3).
func (f *Filter) Get(robotRadius float64) Info {
	pos := f.position()
	dribbler := pos.Add(geom.FromAngle(f.orientation).Scale(robotRadius))
	return Info{
		Identifier:   f.RobotID,
		RobotPos:     pos,
		DribblerPos:  dribbler,
		Speed:        geom.Vec2{X: f.x.AtVec(2), Y: f.x.AtVec(3)},
		KickIsChip:   f.kickIsChip,
		KickIsLinear: f.kickIsLinear,
	}
}

// Orientation returns the filter's latest orientation estimate, radians.
func (f *Filter) Orientation() float64 { return f.orientation }

// SpeedPercentile returns the p-th percentile (0..1) of the rolling speed
// history, or 0 if no history has accumulated yet.
func (f *Filter) SpeedPercentile(p float64) float64 {
	if len(f.speedHistory) == 0 {
		return 0
	}
	sorted := make([]float64, len(f.speedHistory))
	copy(sorted, f.speedHistory)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

func (f *Filter) position() geom.Vec2 {
	return geom.Vec2{X: f.x.AtVec(0), Y: f.x.AtVec(1)}
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

// resetToLastKnownPosition reinitializes the filter state after a
// non-finite predict/update step, matching the original source's guard
// against propagating NaN/Inf state (SPEC_FULL "supplemented features").
// The frame counter re-arms at zero along with the covariance, so a filter
// that glitched loses its maturity and has to earn selection priority back
// through fresh observations rather than keeping it on corrupted history.
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
