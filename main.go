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
	"sync"
	"syscall"
	"time"

	"github.com/railwatch-data/railwatch/internal/alert"
	"github.com/railwatch-data/railwatch/internal/api"
	"github.com/railwatch-data/railwatch/internal/config"
	"github.com/railwatch-data/railwatch/internal/detect"
	"github.com/railwatch-data/railwatch/internal/incident"
	"github.com/railwatch-data/railwatch/internal/pipeline"
	"github.com/railwatch-data/railwatch/internal/risk"
	"github.com/railwatch-data/railwatch/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to pipeline tuning JSON")
	dbPath     = flag.String("db", "incidents.db", "Path to incident database")
	logDir     = flag.String("logdir", "incident_logs", "Directory for JSONL incident day files")
	listen     = flag.String("listen", ":8080", "Listen address for the monitoring API")
	redisAddr  = flag.String("redis", "", "Redis address for alert publishing (empty disables)")
	replayPath = flag.String("detections", "", "Replay detections from a JSONL file instead of a live detector")
	replayFPS  = flag.Float64("fps", 0, "Replay rate in frames per second (0 = as fast as possible)")

	calibrate   = flag.Bool("calibrate", false, "Run focal length calibration and exit")
	calibPx     = flag.Float64("calib-px", 0, "Calibration: observed bounding box height in pixels")
	calibDistM  = flag.Float64("calib-dist", 0, "Calibration: known distance to reference object in meters")
	calibHeight = flag.Float64("calib-height", 1.7, "Calibration: real height of reference object in meters")
)

// replayFrame is one line of a detection replay file.
type replayFrame struct {
	Frame      int                `json:"frame"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Detections []detect.Detection `json:"detections"`
}

func main() {
	flag.Parse()

	if *calibrate {
		if err := runCalibration(); err != nil {
			log.Fatalf("calibration failed: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	log.Printf("railwatch %s (%s)", version.Version, version.GitSHA)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("config %s not loaded (%v), using defaults", *configPath, err)
		cfg = config.Empty()
	}

	store, err := incident.NewStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open incident store: %v", err)
	}
	defer store.Close()

	dayLog, err := incident.NewDayLog(*logDir)
	if err != nil {
		log.Fatalf("Failed to create incident day log: %v", err)
	}
	defer dayLog.Close()

	journal, err := alert.NewFileChannel("journal", "alerts.jsonl")
	if err != nil {
		log.Fatalf("Failed to open alert journal: %v", err)
	}
	defer journal.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := alert.NewWebSocketHub()
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run()
	}()
	defer hub.Close()

	manager := alert.NewManager(alert.DefaultEscalation(), journal)
	manager.Register(alert.NewConsoleChannel())
	manager.Register(alert.NewLogChannel())
	manager.Register(hub)

	if *redisAddr != "" {
		redisCh := alert.NewRedisChannel("railwatch:alerts")
		if err := redisCh.Connect(ctx, *redisAddr); err != nil {
			log.Printf("redis unavailable, continuing without it: %v", err)
		} else {
			defer redisCh.Close()
		}
		manager.Register(redisCh)
	}

	pipe := pipeline.New(pipeline.Options{
		Config:  cfg,
		Manager: manager,
		Store:   store,
		DayLog:  dayLog,
	})
	defer pipe.Close()

	// Shutdown watcher: drain the pipeline dispatcher before the hub stops,
	// so pending incidents still reach connected websocket clients and the
	// hub goroutine can exit before wg.Wait below.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		pipe.Close()
		hub.Close()
	}()

	log.Printf("pipeline started, run id %s", pipe.RunID())

	if *replayPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := replayDetections(ctx, pipe, *replayPath, *replayFPS); err != nil {
				log.Printf("replay terminated: %v", err)
			}
			stats := pipe.Report()
			log.Printf("replay done: %d frames, %d incidents, %.1f fps",
				stats.FramesProcessed, stats.IncidentsCreated, stats.FPS)
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(pipe, store, manager, hub).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("monitoring API listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// replayDetections feeds a JSONL detection file through the pipeline, one
// frame per line.
func replayDetections(ctx context.Context, pipe *pipeline.Pipeline, path string, fps float64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	var ticker *time.Ticker
	if fps > 0 {
		ticker = time.NewTicker(time.Duration(float64(time.Second) / fps))
		defer ticker.Stop()
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rf replayFrame
		if err := json.Unmarshal(line, &rf); err != nil {
			log.Printf("skipping malformed replay line: %v", err)
			continue
		}

		frame := detect.Frame{
			Index:     rf.Frame,
			Width:     rf.Width,
			Height:    rf.Height,
			Timestamp: time.Now(),
		}
		if _, err := pipe.ProcessFrame(frame, rf.Detections); err != nil {
			log.Printf("frame %d: %v", rf.Frame, err)
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("read replay file: %w", err)
	}
	return nil
}

// runCalibration derives the focal length from one reference observation and
// writes it back to the config file.
func runCalibration() error {
	estimator := risk.NewEstimator(risk.DefaultEstimatorConfig())
	focal, err := estimator.Calibrate(*calibPx, *calibDistM, *calibHeight)
	if err != nil {
		return err
	}
	if err := config.SaveCalibration(*configPath, focal); err != nil {
		return err
	}
	log.Printf("calibrated focal length %.1f px, saved to %s", focal, *configPath)
	return nil
}
