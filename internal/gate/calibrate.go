package gate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lapgate/internal/monitoring"
)

// ErrNoCalibrationData is returned when the observation period produced no
// in-window measurements. The threshold is left unchanged.
var ErrNoCalibrationData = errors.New("gate: calibration collected no measurements")

// calibrationPoll is how often the calibrator samples the shared projection
// for a new sweep. Sweeps arrive around 10 Hz, so 20ms never misses one.
const calibrationPoll = 20 * time.Millisecond

// Calibrate derives a new detection threshold from live measurements taken
// while a known object repeatedly crosses the gate. It observes the shared
// projection for CalibrationPeriod, consuming each sweep once, and collects
// every in-window distance in native millimeters. The new threshold is
// round(mean * CalibrationMargin), applied to the running session and
// persisted through the configuration store.
//
// If no session is active, Calibrate starts one and stops it again on
// completion, including the failure path; an already-running session is left
// running.
func (e *Engine) Calibrate(ctx context.Context) (int, error) {
	startedHere := false
	if !e.running.Load() {
		if err := e.Start(ctx); err != nil {
			return 0, err
		}
		startedHere = true
	}
	defer func() {
		if startedHere {
			if err := e.Stop(); err != nil {
				monitoring.Logf("gate: stop after calibration: %v", err)
			}
		}
	}()

	e.mu.Lock()
	window := e.window
	e.mu.Unlock()

	e.notifier.Notify("Calibration started: move an object through the gate")

	deadline := e.clock.Now().Add(e.CalibrationPeriod)
	var distances []float64
	var lastSeq uint64

	for e.clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if !e.running.Load() {
			// The session died underneath us (sensor failure).
			e.notifier.Alert("Calibration aborted: LIDAR session stopped")
			return 0, ErrNotRunning
		}

		snap := e.state.Snapshot()
		if snap.Seq != lastSeq {
			lastSeq = snap.Seq
			for _, p := range snap.Projection {
				if window.Contains(p.AngleDeg) {
					distances = append(distances, p.DistanceMM)
				}
			}
		}
		e.clock.Sleep(calibrationPoll)
	}

	if len(distances) == 0 {
		e.notifier.Alert("Calibration failed: no measurements received")
		return 0, ErrNoCalibrationData
	}

	mean := stat.Mean(distances, nil)
	threshold := int(math.Round(mean * e.CalibrationMargin))
	if threshold < 1 {
		threshold = 1
	}

	e.thresholdMM.Store(int64(threshold))
	if err := e.store.SetOption(OptionDetectionDistance, strconv.Itoa(threshold)); err != nil {
		e.notifier.Alert(fmt.Sprintf("Calibration threshold %dmm applied but not persisted: %v", threshold, err))
		return threshold, fmt.Errorf("failed to persist threshold: %w", err)
	}

	e.notifier.Notify(fmt.Sprintf("Calibration complete. Detection threshold: %dmm", threshold))
	return threshold, nil
}
