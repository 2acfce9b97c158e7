// Package planner implements the sampling-based obstacle-avoiding
// trajectory planner (C9): it first tries a direct two-point trajectory,
// then falls back to escape/end-in-obstacle handling and finally a
// Monte-Carlo search over two-segment (start-mid-target) trajectories.
package planner

import (
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/robocin/framework/internal/config"
	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/logging"
	"github.com/robocin/framework/internal/motion/obstacle"
	"github.com/robocin/framework/internal/motion/trajectory"
)

// Mode selects how a candidate midpoint is generated during the main
// search loop (§4.8 "mode selection").
type Mode int

const (
	ModeTotalRandom Mode = iota
	ModeCurrentBest
	ModeLastBest
)

// perturbRadius is how far a CURRENT_BEST/LAST_BEST candidate is allowed
// to wander from the midpoint it is perturbing, matching the fixed radius
// the original sampler uses for its mid-speed perturbation.
const perturbRadius = 0.2

// Request describes a single planning query.
type Request struct {
	Start     geom.Vec2
	StartVel  geom.Vec2
	Target    geom.Vec2
	TargetVel geom.Vec2
	Obstacles []obstacle.Obstacle
	// Seed, if non-nil, is a de-normalized precomputed midpoint from a
	// previous solve for a similar query, checked once before the main
	// probability-driven search loop.
	Seed *geom.Vec2
}

// Sample is one evaluated two-segment candidate (§4.8).
type Sample struct {
	ID             uuid.UUID
	Mode           Mode
	MidPoint       geom.Vec2
	First          trajectory.Trajectory
	Second         trajectory.Trajectory
	TotalTime      float64
	WorstPriority  int
	ObstacleMargin float64
	Collides       bool
}

// Result is a solved plan.
type Result struct {
	First    trajectory.Trajectory
	Second   trajectory.Trajectory
	HasMid   bool
	Collides bool
	Samples  int
	BestMid  geom.Vec2
}

// DebugCollector receives every evaluated sample; a nil collector disables
// the hook (§9 supplemented feature).
type DebugCollector interface {
	SampleEvaluated(Sample)
}

// Planner runs the Monte-Carlo two-segment search. A Planner instance
// carries state across successive Plan calls (the previous tick's best
// midpoint and best escape parameters) exactly as the original sampler
// keeps its best-result members alive between frames, so callers should
// keep one Planner per tracked robot rather than constructing a fresh one
// every tick.
type Planner struct {
	cfg     config.PlannerConfig
	debug   DebugCollector
	loggers *logging.Loggers

	// lastBest is the previous tick's accepted sample, consulted by
	// ModeLastBest and by the mode-selection probability schedule.
	lastBest *Sample

	// lastEscapeTime/lastEscapeAngle remember the best escape trajectory
	// parameters found last time escape() ran, seeding the next call.
	lastEscapeTime  float64
	lastEscapeAngle float64
}

// Option configures a Planner.
type Option func(*Planner)

// WithDebugCollector attaches a DebugCollector.
func WithDebugCollector(c DebugCollector) Option { return func(p *Planner) { p.debug = c } }

// WithLoggers attaches the ops/diag/trace logger bundle. A nil bundle (or
// never calling this option) leaves every stream discarding.
func WithLoggers(l *logging.Loggers) Option {
	return func(p *Planner) { p.loggers = logging.OrDiscard(l) }
}

// New constructs a Planner.
func New(cfg config.PlannerConfig, opts ...Option) *Planner {
	p := &Planner{cfg: cfg, loggers: logging.Discard()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

const defaultSampleDT = 0.03

// Plan searches for a collision-free (or least-bad) trajectory from
// req.Start to req.Target. rng must be supplied by the caller so planning
// remains deterministic under a fixed seed.
func (p *Planner) Plan(req Request, rng *rand.Rand) Result {
	searchCfg := trajectory.DefaultSearchConfig()

	if s := p.attemptDirect(req, searchCfg); !s.Collides {
		return Result{First: s.First, Collides: false, Samples: 1}
	}

	if p.pointInObstacle(req.Start, req.Obstacles, 0) {
		p.loggers.Ops.Printf("planner fallback engaged: start in obstacle, running escape search")
		if esc, ok := p.escape(req, rng, searchCfg); ok {
			req.Start = esc
		}
	}

	if p.pointInObstacle(req.Target, req.Obstacles, 0) {
		p.loggers.Ops.Printf("planner fallback engaged: target in obstacle, widening end search")
		if end, ok := p.findClearEndpoint(req, searchCfg); ok {
			req.Target = end
		}
	}

	prevBest := p.lastBest
	best, samples := p.searchMidpoints(req, rng, searchCfg, prevBest)
	p.lastBest = best

	p.loggers.Diag.Printf("planner tick: samples=%d midpoint_found=%t", samples, best != nil)

	if best == nil {
		p.loggers.Ops.Printf("planner fallback engaged: midpoint search exhausted, returning direct attempt")
		direct := p.attemptDirect(req, searchCfg)
		return Result{First: direct.First, Collides: direct.Collides, Samples: samples}
	}

	return Result{
		First:    best.First,
		Second:   best.Second,
		HasMid:   true,
		Collides: best.Collides,
		Samples:  samples,
		BestMid:  best.MidPoint,
	}
}

func (p *Planner) attemptDirect(req Request, searchCfg trajectory.SearchConfig) Sample {
	traj, ok := trajectory.FindTrajectory(req.Start, req.StartVel, req.TargetVel, req.Target, p.cfg.Acceleration, p.cfg.MaxSpeed, true, searchCfg)
	traj = p.withFinalSlowdown(traj, req.TargetVel)
	s := p.evaluate(traj, req.Obstacles)
	s.ID = uuid.New()
	s.First = traj
	if !ok {
		s.Collides = true
	}
	if p.debug != nil {
		p.debug.SampleEvaluated(s)
	}
	return s
}

// withFinalSlowdown attaches the configured exponential slowdown tail to a
// trajectory that ends the plan at rest, mirroring the original's
// `exponentialSlowDown = v1 == Vector(0, 0)` gate: a segment that stops
// tapers into that stop instead of braking with the raw bang-bang profile
// (§4.7, §6 exponential_slowdown). Intermediate midpoint stops are left
// untouched since the robot never actually rests there.
func (p *Planner) withFinalSlowdown(traj trajectory.Trajectory, endVel geom.Vec2) trajectory.Trajectory {
	if !p.cfg.ExponentialSlowdown || endVel.LengthSq() > 1e-9 {
		return traj
	}
	return trajectory.WithSlowdown(traj, p.cfg.TotalSlowdownTime, p.cfg.MinAccFactor)
}

// escapeScore ranks an escape candidate lexicographically by the worst
// obstacle priority it touches, how long it spends at that priority, and
// only then its total duration (§4.8 "start-in-obstacle escape"). Lower is
// better; a priority of zero means the candidate never touches an
// obstacle at all.
type escapeScore struct {
	priority     int
	obstacleTime float64
	totalTime    float64
}

func (a escapeScore) less(b escapeScore) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if a.obstacleTime != b.obstacleTime {
		return a.obstacleTime < b.obstacleTime
	}
	return a.totalTime < b.totalTime
}

const escapeSampleInterval = 0.005

// scoreEscapeTrajectory samples traj at a fine interval and tracks the
// highest obstacle priority it ever touches and how long it stays at that
// priority, penalizing heavily if the trajectory is still inside an
// obstacle at its very end (§4.8).
func (p *Planner) scoreEscapeTrajectory(traj trajectory.Trajectory, obstacles []obstacle.Obstacle) escapeScore {
	total := traj.Time()
	steps := int(total/escapeSampleInterval) + 1

	bestPrio := 0
	bestTime := 0.0
	for i := 0; i <= steps; i++ {
		last := i == steps
		t := math.Min(float64(i)*escapeSampleInterval, total)
		pos := traj.PositionAt(t)

		prio := 0
		for _, o := range obstacles {
			if o.Priority > prio && o.DistanceAtTime(pos, t) < p.cfg.ObstacleAvoidanceRadius {
				prio = o.Priority
			}
		}

		if prio > bestPrio {
			bestPrio = prio
			bestTime = 0
		}
		if prio == bestPrio {
			if last {
				bestTime += 10
			} else {
				bestTime += escapeSampleInterval
			}
		}
	}

	return escapeScore{priority: bestPrio, obstacleTime: bestTime, totalTime: total}
}

// escape handles a start position that is already inside an obstacle. It
// samples (time, angle) pairs for a stopping trajectory starting at
// req.Start, alternating between fully random parameters and small
// perturbations of the best escape found so far, and accepts as soon as a
// candidate reaches priority zero (§4.8).
func (p *Planner) escape(req Request, rng *rand.Rand, searchCfg trajectory.SearchConfig) (geom.Vec2, bool) {
	zero := geom.Vec2{}
	best := trajectory.FromTimeAngle(req.Start, req.StartVel, zero, p.lastEscapeTime, p.lastEscapeAngle, p.cfg.Acceleration, p.cfg.MaxSpeed, true)
	bestScore := p.scoreEscapeTrajectory(best, req.Obstacles)

	for i := 0; i < p.cfg.EscapeSamplerIterations; i++ {
		if bestScore.priority == 0 {
			break
		}

		var t, angle float64
		if rng.Intn(2) == 0 {
			t = 0.4 + rng.Float64()*(5.0-0.4)
			angle = rng.Float64() * 2 * math.Pi
		} else {
			t = math.Max(0.05, p.lastEscapeTime+(rng.Float64()*2-1)*0.1)
			angle = p.lastEscapeAngle + (rng.Float64()*2-1)*0.1
		}

		cand := trajectory.FromTimeAngle(req.Start, req.StartVel, zero, t, angle, p.cfg.Acceleration, p.cfg.MaxSpeed, true)
		score := p.scoreEscapeTrajectory(cand, req.Obstacles)
		if score.less(bestScore) {
			bestScore = score
			best = cand
			p.lastEscapeTime = t
			p.lastEscapeAngle = angle
		}
	}

	if bestScore.priority > 0 {
		return req.Start, false
	}
	return best.EndPosition(), true
}

// findClearEndpoint handles a target position inside an obstacle: it
// widens a search radius around the target by EndSearchWidenFactor each
// round looking for the nearest clear point (§4.8 "end-in-obstacle
// search").
func (p *Planner) findClearEndpoint(req Request, searchCfg trajectory.SearchConfig) (geom.Vec2, bool) {
	radius := p.cfg.ObstacleAvoidanceRadius
	for i := 0; i < p.cfg.EndSearchIterations; i++ {
		steps := 12
		for k := 0; k < steps; k++ {
			angle := 2 * math.Pi * float64(k) / float64(steps)
			candidate := req.Target.Add(geom.FromAngle(angle).Scale(radius))
			if !p.pointInObstacle(candidate, req.Obstacles, p.cfg.ObstacleAvoidanceRadius) {
				return candidate, true
			}
		}
		radius *= p.cfg.EndSearchWidenFactor
	}
	return req.Target, false
}

// searchMidpoints runs the probability-driven main search loop (§4.8 step
// 4). prevBest is the previous tick's accepted sample (nil on the first
// tick or after a direct path was found last time), consulted by
// ModeLastBest and by the mode-selection schedule's improvement check.
func (p *Planner) searchMidpoints(req Request, rng *rand.Rand, searchCfg trajectory.SearchConfig, prevBest *Sample) (*Sample, int) {
	samples := 0
	var curBest *Sample

	if req.Seed != nil {
		s := p.evaluateMidpoint(req, *req.Seed, ModeLastBest, searchCfg)
		samples++
		if p.debug != nil {
			p.debug.SampleEvaluated(s)
		}
		curBest = &s
	}

	minX, maxX := math.Min(req.Start.X, req.Target.X), math.Max(req.Start.X, req.Target.X)
	minY, maxY := math.Min(req.Start.Y, req.Target.Y), math.Max(req.Start.Y, req.Target.Y)
	margin := 1.0

	for i := 0; i < p.cfg.MaxSamplerIterations; i++ {
		curValid := curBest != nil && !curBest.Collides

		var mode Mode
		switch {
		case !curValid && (i < 20 || rng.Intn(2) == 0):
			mode = ModeLastBest
		case !curValid:
			mode = ModeTotalRandom
		case rng.Intn(1024) < 150:
			mode = ModeTotalRandom
		case prevBest != nil && curBest.TotalTime < prevBest.TotalTime+0.05:
			mode = ModeCurrentBest
		case rng.Intn(2) == 0:
			mode = ModeCurrentBest
		default:
			mode = ModeLastBest
		}

		var mid geom.Vec2
		switch {
		case mode == ModeLastBest && prevBest != nil:
			mid = prevBest.MidPoint.Add(geom.Vec2{
				X: (rng.Float64()*2 - 1) * perturbRadius,
				Y: (rng.Float64()*2 - 1) * perturbRadius,
			})
		case mode == ModeCurrentBest && curBest != nil:
			mid = curBest.MidPoint.Add(geom.Vec2{
				X: (rng.Float64()*2 - 1) * perturbRadius,
				Y: (rng.Float64()*2 - 1) * perturbRadius,
			})
		default:
			mode = ModeTotalRandom
			mid = geom.Vec2{
				X: minX - margin + rng.Float64()*(maxX-minX+2*margin),
				Y: minY - margin + rng.Float64()*(maxY-minY+2*margin),
			}
		}

		s := p.evaluateMidpoint(req, mid, mode, searchCfg)
		samples++
		p.loggers.Trace.Printf("sample mode=%d mid=%+v total_time=%.4f collides=%t", mode, mid, s.TotalTime, s.Collides)
		if p.debug != nil {
			p.debug.SampleEvaluated(s)
		}

		if curBest == nil || p.sampleScore(s) < p.sampleScore(*curBest) {
			curBest = &s
		}
		if !curBest.Collides && i > p.cfg.MaxSamplerIterations/2 {
			// Keep sampling a little longer to look for a lower-time
			// solution, but a clear path is always acceptable to return.
			break
		}
	}
	return curBest, samples
}

func (p *Planner) evaluateMidpoint(req Request, mid geom.Vec2, mode Mode, searchCfg trajectory.SearchConfig) Sample {
	first, ok1 := trajectory.FindTrajectory(req.Start, req.StartVel, geom.Vec2{}, mid, p.cfg.Acceleration, p.cfg.MaxSpeed, false, searchCfg)
	second, ok2 := trajectory.FindTrajectory(mid, first.VelocityAt(first.Time()), req.TargetVel, req.Target, p.cfg.Acceleration, p.cfg.MaxSpeed, true, searchCfg)
	second = p.withFinalSlowdown(second, req.TargetVel)

	s1 := p.evaluate(first, req.Obstacles)
	s2 := p.evaluate(second, req.Obstacles)

	s := Sample{
		ID:             uuid.New(),
		Mode:           mode,
		MidPoint:       mid,
		First:          first,
		Second:         second,
		TotalTime:      first.Time() + second.Time(),
		Collides:       s1.Collides || s2.Collides || !ok1 || !ok2,
		WorstPriority:  maxInt(s1.WorstPriority, s2.WorstPriority),
		ObstacleMargin: math.Min(s1.ObstacleMargin, s2.ObstacleMargin),
	}
	return s
}

// evaluate scores a single-segment trajectory against the obstacle set,
// sampling it at sampleDT intervals (§4.8 obstacle avoidance bonus).
func (p *Planner) evaluate(traj trajectory.Trajectory, obstacles []obstacle.Obstacle) Sample {
	margin := math.Inf(1)
	worstPriority := 0
	collides := false

	dt := p.cfg.TrajectoryPointInterval.Seconds()
	if dt <= 0 {
		dt = defaultSampleDT
	}

	total := traj.Time()
	steps := int(total/dt) + 1
	for i := 0; i <= steps; i++ {
		t := math.Min(float64(i)*dt, total)
		pos := traj.PositionAt(t)
		for _, o := range obstacles {
			d := o.DistanceAtTime(pos, t) - p.cfg.ObstacleAvoidanceRadius
			if d < margin {
				margin = d
			}
			if d < 0 {
				collides = true
				if o.Priority > worstPriority {
					worstPriority = o.Priority
				}
			}
		}
	}
	if math.IsInf(margin, 1) {
		margin = p.cfg.ObstacleAvoidanceRadius
	}

	return Sample{
		TotalTime:      total,
		Collides:       collides,
		WorstPriority:  worstPriority,
		ObstacleMargin: margin,
	}
}

// sampleScore ranks samples lexicographically by (collides, worst
// priority, total time), rewarding obstacle margin as a tiebreaker bonus.
func (p *Planner) sampleScore(s Sample) float64 {
	base := s.TotalTime
	if s.Collides {
		base += 1000 * float64(1+s.WorstPriority)
	} else {
		base -= math.Min(s.ObstacleMargin, 1.0) * p.cfg.ObstacleAvoidanceBonus
	}
	return base
}

func (p *Planner) pointInObstacle(pos geom.Vec2, obstacles []obstacle.Obstacle, extraMargin float64) bool {
	for _, o := range obstacles {
		if o.Distance(pos)-extraMargin < 0 {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
