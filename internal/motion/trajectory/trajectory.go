// Package trajectory implements the alpha-time 2-D trajectory primitive
// (C7): given a start position/velocity, a desired end velocity, a target
// position and kinematic limits, it searches for the pair (total time,
// acceleration angle) whose resulting per-axis speed profiles reach the
// target position.
package trajectory

import (
	"math"

	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/motion/speedprofile"
)

// SearchConfig tunes the iterative inverse search.
type SearchConfig struct {
	MaxIterations           int
	HighPrecisionIterations int
	// Precision and HighPrecision are the acceptable end-position error
	// for the regular and high-precision search modes respectively (§4.7
	// "REGULAR" vs "HIGH" target precision).
	Precision     float64
	HighPrecision float64
	// HighPrecisionMode switches both the iteration budget and the target
	// precision to their high-precision variants.
	HighPrecisionMode bool
	// InitialTimeDamping and InitialAngleDamping seed the adaptive
	// correction factors; each iteration multiplies the time factor by
	// 1.05 on a sign-consistent correction or 0.9 (0.85 in exact
	// end-speed mode) on a sign flip, and halves the angle factor on a
	// sign flip once at least 4 iterations have run (§4.7).
	InitialTimeDamping  float64
	InitialAngleDamping float64
}

// DefaultSearchConfig mirrors the values used throughout the rest of the
// search (§4.7).
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		MaxIterations:           30,
		HighPrecisionIterations: 50,
		Precision:               0.01,
		HighPrecision:           0.0002,
		InitialTimeDamping:      0.8,
		InitialAngleDamping:     0.8,
	}
}

// Trajectory is a found alpha-time solution.
type Trajectory struct {
	Profile      speedprofile.Profile2D
	Angle        float64
	SlowdownTime float64
	MinAccFactor float64
	// Valid reports whether the (angle, time) pair used to build this
	// profile was kinematically feasible for the requested end-speed
	// jump; see adjustAngle (§4.7 step 1).
	Valid bool
}

// Time returns the trajectory's total duration, including any slowdown
// tail requested via WithSlowdown.
func (t Trajectory) Time() float64 {
	if t.SlowdownTime <= 0 {
		return t.Profile.Time()
	}
	return t.Profile.X.TimeWithSlowdown(t.SlowdownTime, t.MinAccFactor)
}

// stateAt returns the 2-D state at wall-clock time s, remapping through the
// slowdown taper when one is attached (§4.7 "exponential slowdown"): the
// whole profile is time-dilated by the same factor TimeWithSlowdown
// stretches its duration by, so a query near the tapered end reads a
// genuinely slower approach rather than the raw bang-bang profile.
func (t Trajectory) stateAt(s float64) speedprofile.StateAtTime2D {
	if t.SlowdownTime <= 0 {
		return t.Profile.StateAtTime(s)
	}
	return speedprofile.StateAtTime2D{
		X: t.Profile.X.StateAtTimeWithSlowdown(s, t.SlowdownTime, t.MinAccFactor),
		Y: t.Profile.Y.StateAtTimeWithSlowdown(s, t.SlowdownTime, t.MinAccFactor),
	}
}

// PositionAt returns the 2-D position at time s, clamped to [0, Time()].
func (t Trajectory) PositionAt(s float64) geom.Vec2 {
	st := t.stateAt(s)
	return geom.Vec2{X: st.X.Pos, Y: st.Y.Pos}
}

// VelocityAt returns the 2-D velocity at time s.
func (t Trajectory) VelocityAt(s float64) geom.Vec2 {
	st := t.stateAt(s)
	return geom.Vec2{X: st.X.Vel, Y: st.Y.Vel}
}

// EndPosition returns the position reached at Time().
func (t Trajectory) EndPosition() geom.Vec2 {
	if t.SlowdownTime > 0 {
		return t.PositionAt(t.Time())
	}
	x, y := t.Profile.EndPosition()
	return geom.Vec2{X: x, Y: y}
}

// clampToMax scales v down to have length at most vMax, preserving
// direction; this is the "angle adjustment for infeasible end-speed
// ranges" step (§4.7): a caller-supplied target velocity that exceeds the
// robot's physical top speed is brought back onto the reachable circle
// before it is ever handed to a Profile1D.
func clampToMax(v geom.Vec2, vMax float64) geom.Vec2 {
	if vMax <= 0 {
		return geom.Vec2{}
	}
	if v.Length() <= vMax {
		return v
	}
	return v.Normalized().Scale(vMax)
}

// maxAccelerationFactor bounds how much larger than the robot's nominal
// acceleration the closed-form deceleration branch is allowed to demand
// (§4.7, ported from findTrajectoryExactEndSpeed's MAX_ACCELERATION_FACTOR).
const maxAccelerationFactor = 1.2

// FindTrajectory searches for the alpha-time trajectory from (p0, v0) to
// target with final velocity v1, honoring acceleration magnitude acc and
// speed limit vMax. exactEndSpeed selects between the exact and fast
// end-speed profile modes (§4.7). It reports false if the search failed to
// converge within cfg.MaxIterations.
func FindTrajectory(p0, v0, v1, target geom.Vec2, acc, vMax float64, exactEndSpeed bool, cfg SearchConfig) (Trajectory, bool) {
	v1 = clampToMax(v1, vMax)

	if v0.LengthSq() < 1e-12 && v1.LengthSq() < 1e-12 {
		return findTrajectoryFromRest(p0, target, acc, vMax)
	}

	if v1.LengthSq() < 1e-12 {
		if traj, ok := findTrajectoryNecessaryDeceleration(p0, v0, target, acc, vMax); ok {
			return traj, true
		}
	}

	direct := target.Sub(p0)
	dist := direct.Length()

	angle := direct.Angle()
	if dist < 1e-9 {
		angle = v1.Sub(v0).Angle()
	}
	minTime := math.Max(v1.Sub(v0).Length()/acc, dist/math.Max(vMax, 1e-9))
	totalTime := math.Max(minTime, 0.05)

	iterations := cfg.MaxIterations
	precision := cfg.Precision
	if cfg.HighPrecisionMode {
		iterations = cfg.HighPrecisionIterations
		precision = cfg.HighPrecision
	}

	timeDampingFloor := 0.9
	if exactEndSpeed {
		timeDampingFloor = 0.85
	}

	timeDamping := cfg.InitialTimeDamping
	angleDamping := cfg.InitialAngleDamping
	lastDistDiff := 0.0
	lastAngleDiff := 0.0

	var traj Trajectory
	for i := 0; i < iterations; i++ {
		traj = buildProfile(p0, v0, v1, angle, totalTime, acc, vMax, exactEndSpeed)
		if !traj.Valid {
			// The requested per-axis speed jump cannot happen in the
			// allotted time at this angle; grow the time budget rather
			// than trust the resulting (nonsensical) profile.
			diff := v1.Sub(v0)
			need := math.Max(math.Abs(diff.X), math.Abs(diff.Y)) / acc
			totalTime = math.Max(totalTime*1.2, need*1.05)
			continue
		}

		achieved := traj.EndPosition()
		errVec := target.Sub(achieved)
		if errVec.Length() < precision {
			return traj, true
		}

		dir := geom.FromAngle(angle)
		along := errVec.Dot(dir)
		perp := dir.Cross(errVec)

		if (lastDistDiff < 0) != (along < 0) {
			timeDamping *= timeDampingFloor
		} else {
			timeDamping *= 1.05
		}
		lastDistDiff = along

		estSpeed := math.Max((v0.Length()+v1.Length())/2, 0.1)
		totalTime += timeDamping * along / estSpeed
		if totalTime < 1e-3 {
			totalTime = 1e-3
		}

		if i >= 4 && (perp < 0) != (lastAngleDiff < 0) {
			angleDamping *= 0.5
		}
		lastAngleDiff = perp

		estDist := math.Max(dist, 0.05)
		angle += angleDamping * perp / estDist
	}

	return traj, false
}

// findTrajectoryNecessaryDeceleration handles a nonzero start velocity
// coming to a stop (v1 == 0) whose stopping distance under a per-axis
// deceleration matched exactly to the target lands within
// [acc, acc*maxAccelerationFactor] and whose two axes finish within 0.1s of
// each other: a closed-form constant-deceleration profile solved directly
// from the required stopping distance, with no iterative search needed
// (§4.7, ported from findTrajectoryExactEndSpeed's necessaryAcceleration
// branch).
func findTrajectoryNecessaryDeceleration(p0, v0, target geom.Vec2, acc, vMax float64) (Trajectory, bool) {
	distance := target.Sub(p0)
	if math.Abs(distance.X) < 1e-9 || math.Abs(distance.Y) < 1e-9 {
		return Trajectory{}, false
	}

	// Solve 0.5*v0*|v0|/necAcc == distance for the per-axis deceleration
	// that stops exactly at the target.
	necAcc := geom.Vec2{
		X: v0.X * math.Abs(v0.X) * 0.5 / distance.X,
		Y: v0.Y * math.Abs(v0.Y) * 0.5 / distance.Y,
	}
	if necAcc.X == 0 || necAcc.Y == 0 {
		return Trajectory{}, false
	}

	accLen := necAcc.Length()
	timeX := math.Abs(v0.X / necAcc.X)
	timeY := math.Abs(v0.Y / necAcc.Y)
	if !(accLen > acc && accLen < acc*maxAccelerationFactor && math.Abs(timeX-timeY) < 0.1) {
		return Trajectory{}, false
	}

	x := speedprofile.NewProfile1D(p0.X, v0.X, 0, necAcc.X, vMax, timeX, true)
	y := speedprofile.NewProfile1D(p0.Y, v0.Y, 0, necAcc.Y, vMax, timeY, true)
	return Trajectory{Profile: speedprofile.Profile2D{X: x, Y: y}, Angle: necAcc.Angle(), Valid: true}, true
}

// findTrajectoryFromRest handles the v0 == v1 == 0 special case in closed
// form: a straight-line symmetric triangular or trapezoidal speed profile
// along the direct bearing to the target, with no iterative search needed
// (§4.7).
func findTrajectoryFromRest(p0, target geom.Vec2, acc, vMax float64) (Trajectory, bool) {
	direct := target.Sub(p0)
	dist := direct.Length()
	if dist < 1e-9 {
		zero := speedprofile.NewProfile1D(p0.X, 0, 0, acc, vMax, 0, true)
		zeroY := speedprofile.NewProfile1D(p0.Y, 0, 0, acc, vMax, 0, true)
		return Trajectory{Profile: speedprofile.Profile2D{X: zero, Y: zeroY}, Valid: true}, true
	}

	angle := direct.Angle()
	distAtVMax := vMax * vMax / acc
	var totalTime float64
	if dist <= distAtVMax {
		totalTime = 2 * math.Sqrt(dist/acc)
	} else {
		tAccel := vMax / acc
		remaining := dist - distAtVMax
		totalTime = 2*tAccel + remaining/vMax
	}

	dir := geom.FromAngle(angle)
	x := speedprofile.NewProfile1D(p0.X, 0, 0, acc*dir.X, vMax*math.Abs(dir.X), totalTime, true)
	y := speedprofile.NewProfile1D(p0.Y, 0, 0, acc*dir.Y, vMax*math.Abs(dir.Y), totalTime, true)
	return Trajectory{Profile: speedprofile.Profile2D{X: x, Y: y}, Angle: angle, Valid: true}, true
}

// normalizeAnglePositive folds angle into [0, 2*pi).
func normalizeAnglePositive(angle float64) float64 {
	for angle < 0 {
		angle += 2 * math.Pi
	}
	for angle >= 2*math.Pi {
		angle -= 2 * math.Pi
	}
	return angle
}

// adjustAngle skips the angular ranges in which the requested per-axis
// speed jump (v1-v0) is kinematically infeasible in the allotted time: an
// axis needs a full acceleration ramp of |v1-v0|/(t*a) as a fraction of the
// unit circle, which carves a symmetric gap of half-width
// arcsin(|Δv_i|/(t*a)) around both 0 and pi (for x) or pi/2 and 3pi/2 (for
// y). The remaining angle range is remapped onto the requested angle's
// position within the full circle, and the gaps are then reinserted so the
// result always lands outside them. Reports false (angle unchanged) if
// |Δv_i| > t*a for either axis, meaning no angle at this time is feasible
// (§4.7 step 1, ported from AlphaTimeTrajectory::adjustAngle).
func adjustAngle(v0, v1 geom.Vec2, time, angle, acc float64) (float64, bool) {
	diff := v1.Sub(v0)
	absDiffX, absDiffY := math.Abs(diff.X), math.Abs(diff.Y)

	if time*acc <= 1e-9 {
		if absDiffX > 1e-9 || absDiffY > 1e-9 {
			return angle, false
		}
		return angle, true
	}
	if absDiffX > time*acc || absDiffY > time*acc {
		return angle, false
	}

	const floatingPointOffset = 0.001
	gapHalfX := math.Asin(absDiffX/(time*acc)) + floatingPointOffset
	gapHalfY := math.Asin(absDiffY/(time*acc)) + floatingPointOffset

	circumference := 2*math.Pi - gapHalfX*4 - gapHalfY*4
	factor := circumference / (2 * math.Pi)

	angle = normalizeAnglePositive(angle) * factor
	angle += gapHalfX
	if angle > math.Pi/2-gapHalfY {
		angle += gapHalfY * 2
	}
	if angle > math.Pi-gapHalfX {
		angle += gapHalfX * 2
	}
	if angle > math.Pi*1.5-gapHalfY {
		angle += gapHalfY * 2
	}
	return angle, true
}

// adjustAngleFastEndSpeed is adjustAngle's fast-end-speed counterpart: it
// substitutes the closest reachable end speed on [0, v1] per axis before
// delegating, since fast-end-speed mode never needs to overshoot past v1
// (§4.7, ported from adjustAngleFastEndSpeed).
func adjustAngleFastEndSpeed(v0, v1 geom.Vec2, time, angle, acc float64) (float64, bool) {
	endX := math.Max(math.Min(v0.X, math.Max(v1.X, 0)), math.Min(v1.X, 0))
	endY := math.Max(math.Min(v0.Y, math.Max(v1.Y, 0)), math.Min(v1.Y, 0))
	return adjustAngle(v0, geom.Vec2{X: endX, Y: endY}, time, angle, acc)
}

// buildProfile constructs the per-axis speed profiles for a candidate
// (angle, totalTime) pair, splitting the acceleration vector across the
// two axes (§4.7 "per-axis acceleration split") after first steering the
// angle away from any kinematically infeasible range.
func buildProfile(p0, v0, v1 geom.Vec2, angle, totalTime, acc, vMax float64, exactEndSpeed bool) Trajectory {
	var adjusted float64
	var ok bool
	if exactEndSpeed {
		adjusted, ok = adjustAngle(v0, v1, totalTime, angle, acc)
	} else {
		adjusted, ok = adjustAngleFastEndSpeed(v0, v1, totalTime, angle, acc)
	}

	useAngle := angle
	if ok {
		useAngle = adjusted
	}

	dir := geom.FromAngle(useAngle)
	accX := acc * dir.X
	accY := acc * dir.Y

	x := speedprofile.NewProfile1D(p0.X, v0.X, v1.X, accX, vMax, totalTime, exactEndSpeed)
	y := speedprofile.NewProfile1D(p0.Y, v0.Y, v1.Y, accY, vMax, totalTime, exactEndSpeed)

	return Trajectory{Profile: speedprofile.Profile2D{X: x, Y: y}, Angle: useAngle, Valid: ok}
}

// FromTimeAngle builds a trajectory directly from a (total time, angle)
// pair rather than searching for one that reaches a target position. This
// is the escape/recovery construction (§4.8): when no target position is
// meaningful (the robot needs to move away from an obstacle by some
// amount, in some direction), time and angle are themselves the sampled
// parameters.
func FromTimeAngle(p0, v0, v1 geom.Vec2, totalTime, angle, acc, vMax float64, exactEndSpeed bool) Trajectory {
	return buildProfile(p0, v0, v1, angle, totalTime, acc, vMax, exactEndSpeed)
}

// WithSlowdown attaches an exponential slowdown tail of duration
// slowdownTime to an already-found trajectory, so the final approach to
// the target decelerates more gently than the raw bang-bang profile would
// (§4.7). It affects not just Time() but every subsequent PositionAt,
// VelocityAt and EndPosition query against the returned trajectory.
func WithSlowdown(t Trajectory, slowdownTime, minAccFactor float64) Trajectory {
	t.SlowdownTime = slowdownTime
	t.MinAccFactor = minAccFactor
	return t
}
