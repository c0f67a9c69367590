package gate

import (
	"encoding/json"
	"net/http"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts debugging endpoints under /debug/. These are
// served only to localhost/Tailscale peers, not publicly.
func (e *Engine) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("gate-stats", "gate engine counters", func(w http.ResponseWriter, r *http.Request) {
		snap := e.state.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"running":              e.running.Load(),
			"threshold_mm":         e.thresholdMM.Load(),
			"scans_processed":      e.scansProcessed.Load(),
			"detections_confirmed": e.detectionsConfirmed.Load(),
			"laps_validated":       e.lapsValidated.Load(),
			"laps_invalidated":     e.lapsInvalidated.Load(),
			"last_detection_ms":    snap.LastDetectionMS,
			"scan_seq":             snap.Seq,
		})
	})
}
