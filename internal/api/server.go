// Package api exposes the monitoring HTTP surface: incident queries, pipeline
// statistics, daily reports, debug charts, and the live alert websocket.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/railwatch-data/railwatch/internal/alert"
	"github.com/railwatch-data/railwatch/internal/detect"
	"github.com/railwatch-data/railwatch/internal/incident"
	"github.com/railwatch-data/railwatch/internal/pipeline"
	"github.com/railwatch-data/railwatch/internal/severity"
	"github.com/railwatch-data/railwatch/internal/track"
	"github.com/railwatch-data/railwatch/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	pipeline *pipeline.Pipeline
	store    *incident.Store
	manager  *alert.Manager
	hub      *alert.WebSocketHub
}

func NewServer(p *pipeline.Pipeline, store *incident.Store, manager *alert.Manager, hub *alert.WebSocketHub) *Server {
	return &Server{
		pipeline: p,
		store:    store,
		manager:  manager,
		hub:      hub,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/incidents", s.listIncidents)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/tracks", s.showTrack)
	mux.HandleFunc("/api/zones", s.showZones)
	mux.HandleFunc("/api/reports/daily", s.showDailyReport)
	mux.HandleFunc("/api/reports/high_risk", s.showHighRiskLocations)
	mux.HandleFunc("/api/charts/severity", s.severityChart)
	mux.HandleFunc("/healthz", s.healthz)
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	}
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := incident.Query{Limit: 100}
	if sev := r.URL.Query().Get("severity"); sev != "" {
		q.Severity = severity.ParseSeverity(sev)
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		q.Limit = parsed
	}
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'start' parameter, want RFC3339")
			return
		}
		q.Start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'end' parameter, want RFC3339")
			return
		}
		q.End = t
	}

	incidents, err := s.store.Incidents(q)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to query incidents: %v", err))
		return
	}
	if incidents == nil {
		incidents = []incident.StoredIncident{}
	}
	json.NewEncoder(w).Encode(incidents)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats := struct {
		RunID        string               `json:"run_id"`
		Pipeline     pipeline.Stats       `json:"pipeline"`
		Detections   detect.Stats         `json:"detections"`
		Confirmation track.ConfirmerStats `json:"confirmation"`
		Incidents    severity.Summary     `json:"incident_summary"`
		Alerts       alert.Statistics     `json:"alerts"`
	}{
		RunID:        s.pipeline.RunID(),
		Pipeline:     s.pipeline.Report(),
		Detections:   s.pipeline.DetectionStats(),
		Confirmation: s.pipeline.ConfirmerStats(),
		Incidents:    s.pipeline.Summary(),
		Alerts:       s.manager.Stats(),
	}
	json.NewEncoder(w).Encode(stats)
}

// showTrack returns the confirmation state for one track id.
func (s *Server) showTrack(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'id' parameter")
		return
	}
	info, ok := s.pipeline.TrackInfo(id)
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("No such track: %d", id))
		return
	}
	json.NewEncoder(w).Encode(info)
}

func (s *Server) showZones(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	rects, err := s.pipeline.ZoneRects()
	if err != nil {
		s.writeJSONError(w, http.StatusServiceUnavailable,
			"Zone geometry not initialised yet; no frames processed")
		return
	}
	json.NewEncoder(w).Encode(rects)
}

func (s *Server) showDailyReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	date := time.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'date' parameter, want YYYY-MM-DD")
			return
		}
		date = parsed
	}

	report, err := s.store.DailyReport(date)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to build daily report: %v", err))
		return
	}
	json.NewEncoder(w).Encode(report)
}

func (s *Server) showHighRiskLocations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	locations, err := s.store.HighRiskLocations()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to compute high risk locations: %v", err))
		return
	}
	if locations == nil {
		locations = []incident.HighRiskLocation{}
	}
	json.NewEncoder(w).Encode(locations)
}

// severityChart renders an HTML bar chart of incident counts by severity.
// Debugging endpoint for quick inspection without a frontend.
func (s *Server) severityChart(w http.ResponseWriter, r *http.Request) {
	days := 1
	if d := r.URL.Query().Get("days"); d != "" {
		if v, err := strconv.Atoi(d); err == nil && v > 0 && v <= 90 {
			days = v
		}
	}

	start := time.Now().AddDate(0, 0, -days)
	incidents, err := s.store.Incidents(incident.Query{Start: start})
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to query incidents: %v", err))
		return
	}

	counts := make(map[severity.Severity]int)
	for _, inc := range incidents {
		counts[inc.Severity]++
	}

	order := []severity.Severity{
		severity.SeverityCritical,
		severity.SeverityHigh,
		severity.SeverityMedium,
		severity.SeverityLow,
	}
	labels := make([]string, 0, len(order))
	data := make([]opts.BarData, 0, len(order))
	for _, sev := range order {
		labels = append(labels, string(sev))
		data = append(data, opts.BarData{
			Value:     counts[sev],
			ItemStyle: &opts.ItemStyle{Color: sev.Color()},
		})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Incidents by Severity", Theme: "dark"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Incidents by Severity",
			Subtitle: fmt.Sprintf("last %d day(s), total=%d", days, len(incidents)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("incidents", data)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}
