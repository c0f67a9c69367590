package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/lapgate/internal/db"
	"github.com/banshee-data/lapgate/internal/gate"
	"github.com/banshee-data/lapgate/internal/monitoring"
	"github.com/banshee-data/lapgate/internal/race"
	"github.com/banshee-data/lapgate/internal/timeutil"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	engine   *gate.Engine
	db       *db.DB
	bus      *race.Bus
	notifier *race.Notifier
	clock    timeutil.Clock
}

func NewServer(engine *gate.Engine, db *db.DB, bus *race.Bus, notifier *race.Notifier, clock timeutil.Clock) *Server {
	return &Server{
		engine:   engine,
		db:       db,
		bus:      bus,
		notifier: notifier,
		clock:    clock,
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

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/lidar/status", s.lidarStatus)
	mux.HandleFunc("/api/lidar/start", s.lidarStart)
	mux.HandleFunc("/api/lidar/stop", s.lidarStop)
	mux.HandleFunc("/api/lidar/calibrate", s.lidarCalibrate)
	mux.HandleFunc("/api/race/start", s.raceStart)
	mux.HandleFunc("/api/race/stop", s.raceStop)
	mux.HandleFunc("/api/laps", s.laps)
	mux.HandleFunc("/api/notifications", s.listNotifications)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("API: failed to encode response: %v", err)
	}
}

func (s *Server) lidarStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// One snapshot: the crossing timestamp always belongs to the
	// projection it ships with.
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) lidarStart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.engine.Start(r.Context()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to start LIDAR session: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"running": true})
}

func (s *Server) lidarStop(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.engine.Stop(); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to stop LIDAR session: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"running": false})
}

func (s *Server) lidarCalibrate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	threshold, err := s.engine.Calibrate(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gate.ErrNoCalibrationData) {
			status = http.StatusConflict
		}
		s.writeJSONError(w, status, fmt.Sprintf("Calibration failed: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"threshold_mm": threshold})
}

func (s *Server) raceStart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.bus.PublishRaceStart()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "race started"})
}

func (s *Server) raceStop(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.bus.PublishRaceStop()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "race stopped"})
}

type recordLapRequest struct {
	Pilot       string `json:"pilot"`
	LapNumber   int    `json:"lap_number"`
	TimestampMS int64  `json:"timestamp_ms"`
}

func (s *Server) laps(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listLaps(w, r)
	case http.MethodPost:
		s.recordLap(w, r)
	default:
		w.Header().Set("Content-Type", "application/json")
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listLaps(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	laps, err := s.db.ListLaps()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve laps: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, laps)
}

func (s *Server) recordLap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req recordLapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Pilot == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'pilot' field")
		return
	}
	if req.LapNumber < 0 {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'lap_number' field")
		return
	}
	if req.TimestampMS == 0 {
		req.TimestampMS = timeutil.EpochMillis(s.clock.Now())
	}

	lap := db.Lap{
		Pilot:       req.Pilot,
		LapNumber:   req.LapNumber,
		TimestampMS: req.TimestampMS,
	}
	if err := s.db.InsertLap(&lap); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to record lap: %v", err))
		return
	}

	s.bus.PublishLapRecorded(gate.LapEvent{
		ID:          lap.ID,
		Pilot:       lap.Pilot,
		LapNumber:   lap.LapNumber,
		TimestampMS: lap.TimestampMS,
	})

	s.writeJSON(w, http.StatusCreated, lap)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, s.notifier.Recent())
}
