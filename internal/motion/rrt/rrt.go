// Package rrt implements the bidirectional RRT waypoint fallback (C10),
// used when the Monte-Carlo sampler (internal/motion/planner) cannot find
// a collision-free two-segment trajectory. It produces a polyline of
// waypoints, not a timed trajectory; the caller re-runs the alpha-time
// search along the resulting corridor.
package rrt

import (
	"math"
	"math/rand"

	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/motion/obstacle"
)

const (
	// stepSize is the fixed extend-step length (§4.10).
	stepSize      = 0.1
	mergeDistance = 0.25

	waypointCacheSize = 200

	// extendMultiSteps caps how many successive steps the just-switched-to
	// tree takes toward the other tree's newest node before giving up for
	// this outer iteration (§4.10 "multi-step extension").
	extendMultiSteps = 4

	// pDest and pWaypoint are the target-sampling probabilities: a sample
	// is the opposing tree's root with probability pDest, a cached
	// waypoint with probability pWaypoint, and otherwise uniform-random
	// within the sampling rectangle (§4.10 "target sampling").
	pDest     = 0.1
	pWaypoint = 0.4
)

type node struct {
	pos    geom.Vec2
	parent int
}

type tree struct {
	nodes []node
}

func newTree(root geom.Vec2) *tree {
	return &tree{nodes: []node{{pos: root, parent: -1}}}
}

func (t *tree) nearest(p geom.Vec2) int {
	best := 0
	bestDist := t.nodes[0].pos.DistanceSq(p)
	for i := 1; i < len(t.nodes); i++ {
		d := t.nodes[i].pos.DistanceSq(p)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func (t *tree) pathTo(idx int) []geom.Vec2 {
	var path []geom.Vec2
	for idx != -1 {
		path = append(path, t.nodes[idx].pos)
		idx = t.nodes[idx].parent
	}
	// reverse
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Planner runs bidirectional RRT and caches the last successful path as a
// sampling bias for the next call (§4.9 "waypoint cache").
type Planner struct {
	robotRadius   float64
	waypointCache []geom.Vec2
}

// New constructs an RRT planner for a robot of the given radius.
func New(robotRadius float64) *Planner {
	return &Planner{robotRadius: robotRadius}
}

// getTarget samples a bias point for extending a tree rooted away from
// dest, following the pDest/pWaypoint/uniform schedule independently on
// every call (§4.10).
func (r *Planner) getTarget(rng *rand.Rand, dest geom.Vec2, minX, minY, maxX, maxY float64) geom.Vec2 {
	p := rng.Float64()
	switch {
	case p < pDest:
		return dest
	case p < pDest+pWaypoint && len(r.waypointCache) > 0:
		return r.waypointCache[rng.Intn(len(r.waypointCache))]
	default:
		return geom.Vec2{
			X: minX + rng.Float64()*(maxX-minX),
			Y: minY + rng.Float64()*(maxY-minY),
		}
	}
}

// Plan searches for a collision-free polyline from start to target within
// maxIterations outer tree-alternations. The returned path is already
// simplified and corner-cut.
func (r *Planner) Plan(start, target geom.Vec2, obstacles []obstacle.Obstacle, maxIterations int, rng *rand.Rand) ([]geom.Vec2, bool) {
	treeStart := newTree(start)
	treeTarget := newTree(target)

	minX, maxX := math.Min(start.X, target.X)-1, math.Max(start.X, target.X)+1
	minY, maxY := math.Min(start.Y, target.Y)-1, math.Max(start.Y, target.Y)+1

	// aIsStart tracks which physical tree is growing first this
	// iteration, since the original always extends the start-rooted tree
	// toward the target and vice versa, alternating every outer step.
	aIsStart := true

	for i := 0; i < maxIterations; i++ {
		grower, other := treeStart, treeTarget
		growerDest := target
		if !aIsStart {
			grower, other = treeTarget, treeStart
			growerDest = start
		}

		sample := r.getTarget(rng, growerDest, minX, minY, maxX, maxY)
		growIdx, ok := r.extend(grower, sample, obstacles)
		if !ok {
			aIsStart = !aIsStart
			continue
		}

		chainTarget := grower.nodes[growIdx].pos
		otherIdx := -1
		merged := false
		for step := 0; step < extendMultiSteps; step++ {
			idx, ok := r.extend(other, chainTarget, obstacles)
			if !ok {
				break
			}
			otherIdx = idx
			if other.nodes[idx].pos.Distance(chainTarget) <= mergeDistance {
				merged = true
				break
			}
		}

		if merged {
			startTree, startIdx, targetTree, targetIdx := grower, growIdx, other, otherIdx
			if !aIsStart {
				startTree, startIdx, targetTree, targetIdx = other, otherIdx, grower, growIdx
			}
			path := mergePaths(startTree, startIdx, targetTree, targetIdx)
			path = simplify(path, obstacles, r.robotRadius)
			path = cutCorners(path)
			r.waypointCache = cachePath(path)
			return path, true
		}

		aIsStart = !aIsStart
	}
	return nil, false
}

// extend grows tree one step toward target, applying the obstacle-relative
// movement rule when the nearest node is itself inside an obstacle (§4.10
// "start/end may be inside obstacles"). When that is the case, the new edge
// is still checked against every other obstacle normally, but is only
// rejected on the starting obstacle if it would sink the node deeper into
// it; the trapped node is otherwise free to walk its way back out.
func (r *Planner) extend(t *tree, target geom.Vec2, obstacles []obstacle.Obstacle) (int, bool) {
	nearestIdx := t.nearest(target)
	nearest := t.nodes[nearestIdx].pos

	dir := target.Sub(nearest)
	if dir.Length() > stepSize {
		dir = dir.Normalized().Scale(stepSize)
	}
	newPos := nearest.Add(dir)

	startObstacle := containingObstacle(nearest, obstacles)
	if startObstacle != nil {
		outward := nearest.Sub(startObstacle.ReferencePoint())
		if outward.Length() < 1e-9 {
			outward = geom.Vec2{X: 1, Y: 0}
		}
		outward = outward.Normalized()
		blended := outward.Scale(0.7).Add(dir.Normalized().Scale(0.3))
		if blended.Length() > 1e-9 {
			newPos = nearest.Add(blended.Normalized().Scale(stepSize))
		}
	}

	if segmentCollides(nearest, newPos, obstacles, r.robotRadius, startObstacle) {
		return -1, false
	}

	t.nodes = append(t.nodes, node{pos: newPos, parent: nearestIdx})
	return len(t.nodes) - 1, true
}

// containingObstacle returns the highest-priority obstacle p currently
// sits inside, or nil if p is clear of all of them.
func containingObstacle(p geom.Vec2, obstacles []obstacle.Obstacle) *obstacle.Obstacle {
	var best *obstacle.Obstacle
	for i := range obstacles {
		if obstacles[i].Distance(p) >= 0 {
			continue
		}
		if best == nil || obstacles[i].Priority > best.Priority {
			best = &obstacles[i]
		}
	}
	return best
}

// segmentCollides reports whether the edge a->b hits any obstacle other
// than exempt. exempt (the obstacle the edge's starting node is already
// inside, if any) is instead required to have its penetration depth at b
// no greater than at a: the edge may not dive deeper into the obstacle it
// started in, but is never rejected outright for merely still being inside
// it (§4.10).
func segmentCollides(a, b geom.Vec2, obstacles []obstacle.Obstacle, robotRadius float64, exempt *obstacle.Obstacle) bool {
	seg := geom.Segment{A: a, B: b}
	for i := range obstacles {
		o := &obstacles[i]
		if o == exempt {
			continue
		}
		if o.DistanceToSegment(seg) < robotRadius {
			return true
		}
	}
	if exempt != nil {
		depthA := -exempt.Distance(a)
		depthB := -exempt.Distance(b)
		if depthB > depthA+1e-9 {
			return true
		}
	}
	return false
}

func mergePaths(treeA *tree, idxA int, treeB *tree, idxB int) []geom.Vec2 {
	pathA := treeA.pathTo(idxA)
	pathB := treeB.pathTo(idxB)
	// pathB runs from target's tree root to the meeting node; reverse it
	// to continue pathA toward the target.
	for i, j := 0, len(pathB)-1; i < j; i, j = i+1, j-1 {
		pathB[i], pathB[j] = pathB[j], pathB[i]
	}
	return append(pathA, pathB...)
}

// simplify applies string-pulling: it greedily connects the farthest
// reachable waypoint from each point, skipping intermediate nodes whose
// direct line is collision-free (§4.9 post-processing).
func simplify(path []geom.Vec2, obstacles []obstacle.Obstacle, robotRadius float64) []geom.Vec2 {
	if len(path) <= 2 {
		return path
	}
	out := []geom.Vec2{path[0]}
	i := 0
	for i < len(path)-1 {
		j := len(path) - 1
		for ; j > i+1; j-- {
			if !segmentCollides(path[i], path[j], obstacles, robotRadius, nil) {
				break
			}
		}
		out = append(out, path[j])
		i = j
	}
	return out
}

// cutCorners rounds sharp interior vertices by pulling them 20% toward the
// midpoint of their neighbors, softening the polyline for the trajectory
// search that will follow it (§4.9 post-processing).
func cutCorners(path []geom.Vec2) []geom.Vec2 {
	if len(path) <= 2 {
		return path
	}
	out := make([]geom.Vec2, len(path))
	out[0] = path[0]
	out[len(path)-1] = path[len(path)-1]
	for i := 1; i < len(path)-1; i++ {
		mid := path[i-1].Add(path[i+1]).Scale(0.5)
		out[i] = path[i].Lerp(mid, 0.2)
	}
	return out
}

func cachePath(path []geom.Vec2) []geom.Vec2 {
	if len(path) > waypointCacheSize {
		path = path[:waypointCacheSize]
	}
	cached := make([]geom.Vec2, len(path))
	copy(cached, path)
	return cached
}
