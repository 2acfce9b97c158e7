// Command planviz solves a single planning scenario read from a JSON file
// and renders the result as a PNG, for offline inspection of the sampling
// planner and its bidirectional-RRT fallback without running the full
// fusion pipeline.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/robocin/framework/internal/config"
	"github.com/robocin/framework/internal/debugviz"
	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/logging"
	"github.com/robocin/framework/internal/motion/obstacle"
	"github.com/robocin/framework/internal/motion/planner"
	"github.com/robocin/framework/internal/motion/rrt"
	"github.com/robocin/framework/internal/motion/trajectory"
)

var (
	scenarioPath = flag.String("scenario", "", "path to a JSON scenario file (required)")
	outPath      = flag.String("out", "planviz.png", "output PNG path")
	useRRT       = flag.Bool("rrt", false, "use the bidirectional RRT fallback instead of the sampling planner")
	seed         = flag.Int64("seed", 1, "PRNG seed, for reproducible sampling")
	sampleDT     = flag.Float64("dt", 0.05, "trajectory sampling interval in seconds, for rendering")
	verbose      = flag.Bool("verbose", false, "log the planner's ops/diag/trace streams to stderr")
)

type circleObstacle struct {
	Center   geom.Vec2 `json:"center"`
	Radius   float64   `json:"radius"`
	Priority int       `json:"priority"`
}

type scenario struct {
	Start     geom.Vec2        `json:"start"`
	StartVel  geom.Vec2        `json:"start_vel"`
	Target    geom.Vec2        `json:"target"`
	TargetVel geom.Vec2        `json:"target_vel"`
	Obstacles []circleObstacle `json:"obstacles"`
}

func loadScenario(path string) (scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scenario{}, fmt.Errorf("planviz: read scenario: %w", err)
	}
	var s scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return scenario{}, fmt.Errorf("planviz: parse scenario: %w", err)
	}
	return s, nil
}

func buildObstacles(s scenario) []obstacle.Obstacle {
	out := make([]obstacle.Obstacle, 0, len(s.Obstacles))
	for _, o := range s.Obstacles {
		out = append(out, obstacle.NewCircle(o.Center, o.Radius, o.Priority))
	}
	return out
}

// samplePathSingle flattens one trajectory segment into a waypoint list at
// a fixed time step, for rendering.
func samplePathSingle(seg trajectory.Trajectory, dt float64) []geom.Vec2 {
	var pts []geom.Vec2
	for t := 0.0; t < seg.Time(); t += dt {
		pts = append(pts, seg.PositionAt(t))
	}
	pts = append(pts, seg.EndPosition())
	return pts
}

// samplePath flattens two consecutive trajectory segments into a waypoint
// list at a fixed time step, for rendering.
func samplePath(first, second trajectory.Trajectory, dt float64) []geom.Vec2 {
	pts := samplePathSingle(first, dt)
	pts = append(pts, samplePathSingle(second, dt)...)
	return pts
}

func main() {
	flag.Parse()

	if *scenarioPath == "" {
		log.Fatal("planviz: -scenario is required")
	}

	s, err := loadScenario(*scenarioPath)
	if err != nil {
		log.Fatal(err)
	}
	obstacles := buildObstacles(s)
	cfg := config.Default()
	rng := rand.New(rand.NewSource(*seed))

	var path []geom.Vec2

	if *useRRT {
		rp := rrt.New(cfg.RobotPhysical.RobotRadius)
		wps, ok := rp.Plan(s.Start, s.Target, obstacles, cfg.Planner.MaxSamplerIterations, rng)
		if !ok {
			log.Println("planviz: RRT fallback found no path")
		}
		path = wps
	} else {
		var loggers *logging.Loggers
		if *verbose {
			loggers = logging.New("planviz: ", os.Stderr, os.Stderr, os.Stderr)
		}
		p := planner.New(cfg.Planner, planner.WithLoggers(loggers))
		req := planner.Request{
			Start:     s.Start,
			StartVel:  s.StartVel,
			Target:    s.Target,
			TargetVel: s.TargetVel,
			Obstacles: obstacles,
		}
		result := p.Plan(req, rng)
		if result.Collides {
			log.Println("planviz: best candidate still collides")
		}
		if result.HasMid {
			path = samplePath(result.First, result.Second, *sampleDT)
		} else {
			path = samplePathSingle(result.First, *sampleDT)
		}
	}

	if err := debugviz.TrajectoryPlot(path, obstacles, *outPath); err != nil {
		log.Fatalf("planviz: render failed: %v", err)
	}
	fmt.Printf("planviz: wrote %s (%d waypoints)\n", *outPath, len(path))
}
