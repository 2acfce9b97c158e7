// Package debugserver exposes HTTP handlers that render live fusion and
// planning state as ECharts pages, for interactive debugging without a
// dedicated frontend.
package debugserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/robocin/framework/internal/vision/tracker"
)

const assetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Server exposes debug HTTP handlers over a live Tracker.
type Server struct {
	tracker *tracker.Tracker
}

// New returns a Server that reads state from t.
func New(t *tracker.Tracker) *Server {
	return &Server{tracker: t}
}

// RegisterRoutes mounts the debug handlers on mux under /debug/.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/world-state", s.handleWorldStateScatter)
	mux.HandleFunc("/debug/filter-counts", s.handleFilterCountsBar)
}

// handleWorldStateScatter renders the current tracker snapshot as an X/Y
// scatter of robot and ball positions in field coordinates.
func (s *Server) handleWorldStateScatter(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "tracker not configured")
		return
	}

	snap := s.tracker.WorldState(time.Now())

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "World State", Theme: "dark", Width: "900px", Height: "700px", AssetsHost: assetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Fused World State"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -6.5, Max: 6.5, Name: "X (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Min: -4.5, Max: 4.5, Name: "Y (m)"}),
	)

	yellow := make([]opts.ScatterData, 0, len(snap.Yellow))
	for _, info := range snap.Yellow {
		yellow = append(yellow, opts.ScatterData{Value: []interface{}{info.RobotPos.X, info.RobotPos.Y}})
	}
	blue := make([]opts.ScatterData, 0, len(snap.Blue))
	for _, info := range snap.Blue {
		blue = append(blue, opts.ScatterData{Value: []interface{}{info.RobotPos.X, info.RobotPos.Y}})
	}

	scatter.AddSeries("yellow", yellow, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	scatter.AddSeries("blue", blue, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	if snap.BallTracked {
		ball := []opts.ScatterData{{Value: []interface{}{snap.Ball.Pos.X, snap.Ball.Pos.Y}}}
		scatter.AddSeries("ball", ball, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleFilterCountsBar renders a bar chart of the number of tracked
// robots per team, as a coarse liveness indicator.
func (s *Server) handleFilterCountsBar(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "tracker not configured")
		return
	}

	snap := s.tracker.WorldState(time.Now())

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "600px", Height: "400px", AssetsHost: assetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Tracked Robots"}),
	)
	bar.SetXAxis([]string{"yellow", "blue"}).
		AddSeries("robots", []opts.BarData{
			{Value: len(snap.Yellow)},
			{Value: len(snap.Blue)},
		})

	page := components.NewPage()
	page.SetAssetsHost(assetsHost)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
