// Package speedprofile implements the one- and two-dimensional bang-bang
// speed profile primitive (C6) that the alpha-time trajectory search
// builds on: given a start velocity, a desired end velocity, a signed
// acceleration and an allotted duration, it produces the resulting
// position/velocity curve as an ordered list of (velocity, cumulative time)
// breakpoints, piecewise-linear in velocity between them.
package speedprofile

import "math"

// State is a position/velocity pair at some instant.
type State struct {
	Pos float64
	Vel float64
}

// breakpoint is one vertex of the piecewise-linear velocity curve. T is
// cumulative time from the start of the profile.
type breakpoint struct {
	V float64
	T float64
}

// Profile1D is a single-axis speed profile built from v0 toward v1 under a
// signed acceleration, over a fixed duration. Depending on how much time is
// left over once the direct v0->v1 ramp is accounted for, the resulting
// curve is a plain ramp, a ramp that plateaus at +/-VMax, or a ramp that
// overshoots into a triangular excursion and back down (§4.7: "accelerate-
// plateau-decelerate, symmetric excursion to v_max, or plain ramp").
type Profile1D struct {
	P0, V0 float64
	V1     float64
	Acc    float64 // magnitude, always >= 0
	VMax   float64
	// Duration is the total time this profile is defined over.
	Duration float64
	// ExactEndSpeed selects whether the profile must reach V1 exactly, or
	// may settle for the nearest reachable point on [0, V1] in fast
	// end-speed mode (§4.7 "exact vs fast end-speed modes").
	ExactEndSpeed bool

	// directionPositive is the sign of the acceleration this profile was
	// built with; it picks which of +VMax/-VMax the excursion phase (if
	// any) bulges toward. It is independent of sign(V1-V0): a profile with
	// V0==V1 still has a direction, inherited from the 2-D angle split
	// that produced this axis's signed acceleration.
	directionPositive bool

	points []breakpoint // len >= 2, points[0].T == 0, points[last].T == Duration
}

// NewProfile1D constructs and precomputes a Profile1D. acc carries the sign
// of the excursion direction for this axis (as produced by splitting a 2-D
// acceleration vector across x/y); its magnitude is the acceleration limit.
func NewProfile1D(p0, v0, v1, acc, vMax, duration float64, exactEndSpeed bool) Profile1D {
	p := Profile1D{
		P0: p0, V0: v0, V1: v1,
		Acc: math.Abs(acc), VMax: vMax,
		Duration: math.Max(duration, 0), ExactEndSpeed: exactEndSpeed,
		directionPositive: acc >= 0,
	}
	p.precompute()
	return p
}

func (p *Profile1D) precompute() {
	if p.Acc <= 0 {
		p.points = []breakpoint{{p.V0, 0}, {p.V0, p.Duration}}
		return
	}

	if p.ExactEndSpeed {
		directTime := math.Abs(p.V1-p.V0) / p.Acc
		extraTime := p.Duration - directTime
		if extraTime <= 1e-9 {
			p.points = partialRamp(p.V0, p.V1, p.Acc, p.VMax, p.Duration)
			return
		}
		desiredVMax := p.VMax
		if !p.directionPositive {
			desiredVMax = -p.VMax
		}
		p.points = integrate(buildExcursion(p.V0, p.V1, extraTime, desiredVMax, p.Acc))
		return
	}

	bounded, extraTime := adjustEndSpeed(p.V0, p.V1, p.Duration, p.directionPositive, p.Acc)
	if extraTime <= 1e-9 {
		p.points = partialRamp(p.V0, bounded, p.Acc, p.VMax, p.Duration)
		return
	}
	desiredVMax := p.VMax
	if !p.directionPositive {
		desiredVMax = -p.VMax
	}
	p.points = integrate(buildExcursion(p.V0, bounded, extraTime, desiredVMax, p.Acc))
}

// partialRamp handles the case where duration is too short to complete the
// direct v0->target ramp: the profile accelerates straight toward target
// for the whole duration, falling short of it.
func partialRamp(v0, target, acc, vMax, duration float64) []breakpoint {
	if target == v0 {
		return []breakpoint{{v0, 0}, {v0, duration}}
	}
	dir := math.Copysign(1, target-v0)
	vEnd := clampAbs(v0+dir*acc*duration, vMax)
	return []breakpoint{{v0, 0}, {vEnd, duration}}
}

// buildExcursion ports calculate1DTrajectory: it builds the delta-time
// breakpoint list (not yet cumulative) reaching v1 from v0 while spending
// extraTime beyond the direct ramp bulging toward desiredVMax.
func buildExcursion(v0, v1, extraTime, desiredVMax, acc float64) []breakpoint {
	pts := []breakpoint{{v0, 0}}
	if extraTime <= 0 {
		return append(pts, breakpoint{v1, math.Abs(v0-v1) / acc})
	}
	if (v0 < desiredVMax) != (v1 < desiredVMax) {
		// v0 and v1 straddle the excursion limit: ramp to it, hold, ramp
		// down to v1.
		accInv := 1 / acc
		pts = append(pts, breakpoint{desiredVMax, math.Abs(v0-desiredVMax) * accInv})
		pts = append(pts, breakpoint{desiredVMax, extraTime})
		pts = append(pts, breakpoint{v1, math.Abs(v1-desiredVMax) * accInv})
		return pts
	}
	closer := v1
	if math.Abs(v0-desiredVMax) < math.Abs(v1-desiredVMax) {
		closer = v0
	}
	return freeExtraTimeSegment(pts, v0, closer, v1, extraTime, acc, desiredVMax)
}

// freeExtraTimeSegment ports createFreeExtraTimeSegment: it spends
// extraTime either plateauing at desiredVMax (if there's enough of it) or
// as a symmetric triangular overshoot around v centered on the extra time
// budget.
func freeExtraTimeSegment(pts []breakpoint, beforeSpeed, v, nextSpeed, extraTime, acc, desiredVMax float64) []breakpoint {
	toMaxTime := 2 * math.Abs(desiredVMax-v) / acc
	if toMaxTime < extraTime {
		pts = append(pts, breakpoint{desiredVMax, math.Abs(desiredVMax-beforeSpeed) / acc})
		pts = append(pts, breakpoint{desiredVMax, extraTime - toMaxTime})
		pts = append(pts, breakpoint{nextSpeed, math.Abs(desiredVMax-nextSpeed) / acc})
		return pts
	}
	sign := 1.0
	if v > desiredVMax {
		sign = -1.0
	}
	peak := sign*acc*extraTime/2 + v
	pts = append(pts, breakpoint{peak, math.Abs(beforeSpeed-peak) / acc})
	pts = append(pts, breakpoint{nextSpeed, math.Abs(nextSpeed-peak) / acc})
	return pts
}

// adjustEndSpeed ports adjustEndSpeed: it clamps the speed reached by
// accelerating from v0 in the given direction for `time` into the
// reachable-in-fast-mode range [0, v1] (or [v1, 0]), and reports how much
// of `time` is left over as excursion budget once that clamped speed is
// reached.
func adjustEndSpeed(v0, v1, time float64, directionPositive bool, acc float64) (boundedSpeed, extraTime float64) {
	dir := 1.0
	if !directionPositive {
		dir = -1.0
	}
	speedAfterT := v0 + dir*time*acc
	hi := math.Max(v1, 0)
	lo := math.Min(v1, 0)
	boundedSpeed = math.Max(math.Min(speedAfterT, hi), lo)
	necessaryTime := math.Abs(v0-boundedSpeed) / acc
	return boundedSpeed, time - necessaryTime
}

// integrate turns a list of (v, dt) deltas (points[0].T == 0 by
// convention) into cumulative breakpoint times.
func integrate(deltas []breakpoint) []breakpoint {
	total := 0.0
	out := make([]breakpoint, len(deltas))
	for i, d := range deltas {
		if i == 0 {
			out[i] = breakpoint{d.V, 0}
			continue
		}
		total += d.T
		out[i] = breakpoint{d.V, total}
	}
	return out
}

func clampAbs(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// Time returns the profile's total duration.
func (p Profile1D) Time() float64 { return p.Duration }

// TimeWithSlowdown returns the profile's duration extended by an
// exponential slowdown tail of length td, matching the tail-slowdown
// stretch factor sqrt(1 + 2*td*(1-minAccFactor)/Duration) applied near the
// end of a trajectory to avoid a jarring final stop (§4.7): a smaller
// minAccFactor tapers more gently and so takes a little longer overall. A
// profile shorter than the taper window itself is left unstretched, since
// there is no room left to taper into.
func (p Profile1D) TimeWithSlowdown(td, minAccFactor float64) float64 {
	if p.Duration <= 0 || td <= 0 || td >= p.Duration {
		return p.Duration
	}
	factor := 1 + 2*td*(1-minAccFactor)/p.Duration
	if factor < 1 {
		factor = 1
	}
	return p.Duration * math.Sqrt(factor)
}

// StateAtTimeWithSlowdown returns the state at wall-clock time t once an
// exponential slowdown tail of duration td has been attached, by remapping
// t through the same stretch factor TimeWithSlowdown applies to the whole
// duration: querying at the tapered end reads a genuinely slower approach
// rather than the raw bang-bang profile (§4.7).
func (p Profile1D) StateAtTimeWithSlowdown(t, td, minAccFactor float64) State {
	stretched := p.TimeWithSlowdown(td, minAccFactor)
	if stretched <= 0 || p.Duration <= 0 {
		return p.StateAtTime(t)
	}
	scale := stretched / p.Duration
	if scale <= 0 {
		scale = 1
	}
	st := p.StateAtTime(t / scale)
	st.Vel /= scale
	return st
}

// segmentVelocityAt returns the velocity at time t within segment [i, i+1].
func (p Profile1D) segmentVelocityAt(i int, t float64) float64 {
	a, b := p.points[i], p.points[i+1]
	if b.T <= a.T {
		return a.V
	}
	frac := (t - a.T) / (b.T - a.T)
	return a.V + (b.V-a.V)*frac
}

// StateAtTime returns the position and velocity at time t, clamped to
// [0, Duration].
func (p Profile1D) StateAtTime(t float64) State {
	if t < 0 {
		t = 0
	}
	if t > p.Duration {
		t = p.Duration
	}

	if len(p.points) == 0 {
		return State{Pos: p.P0, Vel: p.V0}
	}
	pos := p.P0
	for i := 0; i < len(p.points)-1; i++ {
		a, b := p.points[i], p.points[i+1]
		if t <= b.T {
			v := p.segmentVelocityAt(i, t)
			pos += (a.V + v) * 0.5 * (t - a.T)
			return State{Pos: pos, Vel: v}
		}
		pos += (a.V + b.V) * 0.5 * (b.T - a.T)
	}
	return State{Pos: pos, Vel: p.points[len(p.points)-1].V}
}

// PositionForTime is a convenience wrapper around StateAtTime.
func (p Profile1D) PositionForTime(t float64) float64 { return p.StateAtTime(t).Pos }

// EndPosition returns the position reached at Duration.
func (p Profile1D) EndPosition() float64 { return p.StateAtTime(p.Duration).Pos }

// EndVelocity returns the velocity reached at Duration.
func (p Profile1D) EndVelocity() float64 {
	if len(p.points) == 0 {
		return p.V0
	}
	return p.points[len(p.points)-1].V
}

// LimitToTime truncates the profile to a shorter duration, discarding
// anything beyond t. It is used when a trajectory only needs to be
// evaluated up to a collision time.
func (p Profile1D) LimitToTime(t float64) Profile1D {
	if t >= p.Duration {
		return p
	}
	if t < 0 {
		t = 0
	}
	if len(p.points) == 0 {
		return p
	}
	newPoints := make([]breakpoint, 0, len(p.points))
	for i := 0; i < len(p.points)-1; i++ {
		a, b := p.points[i], p.points[i+1]
		newPoints = append(newPoints, a)
		if b.T >= t {
			v := p.segmentVelocityAt(i, t)
			newPoints = append(newPoints, breakpoint{v, t})
			break
		}
	}
	out := p
	out.Duration = t
	out.points = newPoints
	out.V1 = newPoints[len(newPoints)-1].V
	out.ExactEndSpeed = true
	return out
}

// Bounds returns the [min, max] position reached over the whole profile,
// accounting for the possibility that the extremum occurs mid-profile
// rather than at an endpoint (a velocity-sign crossing within a segment).
func (p Profile1D) Bounds() (min, max float64) {
	min, max = p.P0, p.P0
	consider := func(v float64) {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	pos := p.P0
	for i := 0; i < len(p.points)-1; i++ {
		a, b := p.points[i], p.points[i+1]
		dt := b.T - a.T
		if (a.V > 0) != (b.V > 0) && a.V != b.V {
			frac := math.Abs(a.V) / (math.Abs(a.V) + math.Abs(b.V))
			zeroPos := pos + (a.V+0)*0.5*(dt*frac)
			consider(zeroPos)
		}
		pos += (a.V + b.V) * 0.5 * dt
		consider(pos)
	}
	return min, max
}

// TrajectoryPoints samples count points starting at t0 spaced dt apart.
func (p Profile1D) TrajectoryPoints(count int, dt, t0 float64) []State {
	if count <= 0 {
		return nil
	}
	pts := make([]State, count)
	for i := 0; i < count; i++ {
		pts[i] = p.StateAtTime(t0 + float64(i)*dt)
	}
	return pts
}

// Profile2D pairs two independent axis profiles sharing a duration.
type Profile2D struct {
	X, Y Profile1D
}

// Time returns the shared duration of both axes.
func (p Profile2D) Time() float64 { return math.Max(p.X.Duration, p.Y.Duration) }

// StateAtTime2D is a 2-D position/velocity sample.
type StateAtTime2D struct {
	X, Y State
}

// StateAtTime returns the 2-D state at time t.
func (p Profile2D) StateAtTime(t float64) StateAtTime2D {
	return StateAtTime2D{X: p.X.StateAtTime(t), Y: p.Y.StateAtTime(t)}
}

// EndPosition returns the (x, y) position at the profile's duration.
func (p Profile2D) EndPosition() (float64, float64) {
	return p.X.EndPosition(), p.Y.EndPosition()
}
