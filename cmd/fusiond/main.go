// Command fusiond runs the vision-fusion supervisor as a standalone
// process: it replays a JSON-lines feed of already-decoded vision packets
// (produced upstream by a wire decoder outside this module's scope) into a
// tracker.Tracker on a fixed tick, serves the fused world state over
// internal/debugserver, and optionally persists every tick to SQLite.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/robocin/framework/internal/config"
	"github.com/robocin/framework/internal/debugserver"
	"github.com/robocin/framework/internal/logging"
	"github.com/robocin/framework/internal/storage/sqlite"
	"github.com/robocin/framework/internal/vision/camera"
	"github.com/robocin/framework/internal/vision/tracker"
)

var (
	listen     = flag.String("listen", ":8090", "HTTP listen address for the debug server")
	feedPath   = flag.String("feed", "", "path to a JSON-lines vision packet feed (\"-\" for stdin); empty runs with no input")
	dbFile     = flag.String("db", "", "optional path to a SQLite database for world-state logging")
	configFile = flag.String("config", "", "optional path to a YAML config override")
	tickPeriod = flag.Duration("tick", 16*time.Millisecond, "fusion processing tick period")
	flip       = flag.Bool("flip", false, "flip the field-side coordinate convention")
	diagLog    = flag.Bool("diag", false, "log per-tick fusion summaries to stderr")
	traceLog   = flag.Bool("trace", false, "log per-detection/per-sample verbosity to stderr")
)

// buildLoggers wires the ops/diag/trace bundle from CLI flags: ops always
// prints (dropped packets and invalidated filters are actionable by
// default), diag and trace are opt-in since they are chatty at tick rate.
func buildLoggers() *logging.Loggers {
	diagW := io.Discard
	if *diagLog {
		diagW = os.Stderr
	}
	traceW := io.Discard
	if *traceLog {
		traceW = os.Stderr
	}
	return logging.New("fusiond: ", os.Stderr, diagW, traceW)
}

// feedPacket is the on-disk JSON representation of one decoded vision
// packet, as an upstream wire decoder would emit it.
type feedPacket struct {
	CameraID    int                        `json:"camera_id"`
	CaptureTime time.Time                  `json:"capture_time"`
	Yellow      []tracker.RawDetection     `json:"yellow"`
	Blue        []tracker.RawDetection     `json:"blue"`
	Balls       []tracker.RawBallDetection `json:"balls"`
	Geometry    []geometryUpdate           `json:"geometry,omitempty"`
}

type geometryUpdate struct {
	ID          int         `json:"id"`
	Position    camera.Vec3 `json:"position"`
	FocalLength float64     `json:"focal_length"`
}

func loadConfig() config.Config {
	if *configFile == "" {
		return config.Default()
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("fusiond: failed to load config: %v", err)
	}
	return cfg
}

func openStore() *sqlite.Store {
	if *dbFile == "" {
		return nil
	}
	store, err := sqlite.Open(*dbFile)
	if err != nil {
		log.Fatalf("fusiond: failed to open storage: %v", err)
	}
	return store
}

func openFeed() (io.ReadCloser, error) {
	switch *feedPath {
	case "":
		return io.NopCloser(strings.NewReader("")), nil
	case "-":
		return io.NopCloser(os.Stdin), nil
	default:
		return os.Open(*feedPath)
	}
}

// readFeed streams decoded feedPacket lines into t, one per JSON line,
// applying geometry updates immediately and queueing detections for the
// next Process tick.
func readFeed(ctx context.Context, r io.Reader, t *tracker.Tracker) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var pkt feedPacket
		if err := json.Unmarshal(line, &pkt); err != nil {
			log.Printf("fusiond: skipping malformed feed line: %v", err)
			continue
		}
		for _, g := range pkt.Geometry {
			t.UpsertCamera(camera.Camera{ID: g.ID, Position: g.Position, FocalLength: g.FocalLength})
		}
		t.QueuePacket(tracker.VisionPacket{
			CameraID:    pkt.CameraID,
			CaptureTime: pkt.CaptureTime,
			Yellow:      pkt.Yellow,
			Blue:        pkt.Blue,
			Balls:       pkt.Balls,
		})
	}
	if err := scanner.Err(); err != nil {
		log.Printf("fusiond: feed read error: %v", err)
	}
}

func main() {
	flag.Parse()

	cfg := loadConfig()
	store := openStore()
	defer store.Close()

	loggers := buildLoggers()
	t := tracker.New(cfg, tracker.WithStateSink(store), tracker.WithLoggers(loggers))
	t.SetFlip(*flip)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	feed, err := openFeed()
	if err != nil {
		log.Fatalf("fusiond: failed to open feed %q: %v", *feedPath, err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer feed.Close()
		readFeed(ctx, feed, t)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(*tickPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("fusiond: processing loop shutting down")
				return
			case now := <-ticker.C:
				t.Process(now)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		debugserver.New(t).RegisterRoutes(mux)
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"ok","service":"fusiond"}`)
		})

		server := &http.Server{Addr: *listen, Handler: mux}
		go func() {
			log.Printf("fusiond: debug server listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("fusiond: debug server failed: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("fusiond: debug server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Println("fusiond: graceful shutdown complete")
}
