// Package debugviz renders static PNG snapshots of a world state and a
// planned trajectory, for offline debugging of the fusion and planning
// cores. It is never on the hot path: callers invoke it explicitly from a
// debug binary or a test.
package debugviz

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/motion/obstacle"
	"github.com/robocin/framework/internal/vision/tracker"
)

var (
	yellowColor   = color.RGBA{R: 220, G: 180, B: 20, A: 255}
	blueColor     = color.RGBA{R: 30, G: 90, B: 220, A: 255}
	ballColor     = color.RGBA{R: 220, G: 90, B: 30, A: 255}
	obstacleColor = color.RGBA{R: 120, G: 120, B: 120, A: 120}
	pathColor     = color.RGBA{R: 20, G: 160, B: 60, A: 255}
)

// SnapshotPlot renders one world-state snapshot to a PNG file at path,
// scattering robots and the ball on a field-frame plot spanning [-6.5,
// 6.5] x [-4.5, 4.5] meters.
func SnapshotPlot(snap tracker.Snapshot, path string) error {
	p := plot.New()
	p.Title.Text = "world state"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.X.Min, p.X.Max = -6.5, 6.5
	p.Y.Min, p.Y.Max = -4.5, 4.5

	if err := addRobotScatter(p, snap, true, "yellow"); err != nil {
		return err
	}
	if err := addRobotScatter(p, snap, false, "blue"); err != nil {
		return err
	}
	if snap.BallTracked {
		pts := plotter.XYs{{X: snap.Ball.Pos.X, Y: snap.Ball.Pos.Y}}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("debugviz: ball scatter: %w", err)
		}
		s.Color = ballColor
		s.Radius = vg.Points(4)
		p.Add(s)
		p.Legend.Add("ball", s)
	}

	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(12*vg.Inch, 9*vg.Inch, path); err != nil {
		return fmt.Errorf("debugviz: save snapshot plot: %w", err)
	}
	return nil
}

func addRobotScatter(p *plot.Plot, snap tracker.Snapshot, yellow bool, label string) error {
	infos := snap.Blue
	c := blueColor
	if yellow {
		infos = snap.Yellow
		c = yellowColor
	}
	if len(infos) == 0 {
		return nil
	}
	pts := make(plotter.XYs, 0, len(infos))
	for _, info := range infos {
		pts = append(pts, plotter.XY{X: info.RobotPos.X, Y: info.RobotPos.Y})
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("debugviz: robot scatter: %w", err)
	}
	s.Color = c
	s.Radius = vg.Points(5)
	p.Add(s)
	p.Legend.Add(label, s)
	return nil
}

// TrajectoryPlot renders a planned path and the obstacles it was computed
// against to a PNG file at path.
func TrajectoryPlot(path []geom.Vec2, obstacles []obstacle.Obstacle, outPath string) error {
	p := plot.New()
	p.Title.Text = "planned trajectory"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	for i, o := range obstacles {
		center := o.ReferencePoint()
		radius := o.BoundingRadius()
		circlePts := make(plotter.XYs, 33)
		for k := range circlePts {
			ang := 2 * math.Pi * float64(k) / 32
			circlePts[k] = plotter.XY{X: center.X + radius*math.Cos(ang), Y: center.Y + radius*math.Sin(ang)}
		}
		line, err := plotter.NewLine(circlePts)
		if err != nil {
			return fmt.Errorf("debugviz: obstacle outline %d: %w", i, err)
		}
		line.Color = obstacleColor
		p.Add(line)
	}

	if len(path) > 0 {
		pts := make(plotter.XYs, len(path))
		for i, wp := range path {
			pts[i] = plotter.XY{X: wp.X, Y: wp.Y}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("debugviz: path line: %w", err)
		}
		line.Color = pathColor
		line.Width = vg.Points(2)
		p.Add(line)
	}

	if err := p.Save(12*vg.Inch, 9*vg.Inch, outPath); err != nil {
		return fmt.Errorf("debugviz: save trajectory plot: %w", err)
	}
	return nil
}
