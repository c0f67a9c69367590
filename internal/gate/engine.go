package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/lapgate/internal/monitoring"
	"github.com/banshee-data/lapgate/internal/timeutil"
)

// ErrNotRunning is returned by operations that need an active session.
var ErrNotRunning = errors.New("gate: no active scanning session")

// TransientError marks sensor failures that spoil a single sweep but leave
// the session usable. Drivers opt in by implementing the method; any other
// error stops the session.
type TransientError interface {
	Transient() bool
}

func isTransient(err error) bool {
	var te TransientError
	return errors.As(err, &te) && te.Transient()
}

// maxTransientFailures bounds how many consecutive spoiled sweeps the loop
// tolerates before treating the link as dead.
const maxTransientFailures = 5

// stopWait bounds how long Stop waits for the scan loop to observe the
// not-running flag before tearing the sensor down anyway.
const stopWait = 2 * time.Second

// LapEvent is an externally reported lap crossing. The engine never creates
// or removes lap records; it only requests invalidation through LapMarker.
type LapEvent struct {
	ID          string
	Pilot       string
	LapNumber   int
	TimestampMS int64
}

// LapMarker flips a lap's validity flag through the host's mutation
// contract.
type LapMarker interface {
	MarkLapInvalid(id, reason string) error
}

// Notifier delivers fire-and-forget operator messages.
type Notifier interface {
	Notify(msg string)
	Alert(msg string)
}

// Status is the read-only view served to the visualization page. The
// crossing timestamp and the projection come from the same state update.
type Status struct {
	Running        bool       `json:"running"`
	ThresholdMM    int        `json:"threshold_mm"`
	LastCrossingMS int64      `json:"last_gate_crossing_ms,omitempty"`
	Points         Projection `json:"points"`
}

// Engine owns the scanning session and the shared detection state. One
// long-lived instance per process; all host callbacks are injected rather
// than captured globally.
type Engine struct {
	store    OptionStore
	laps     LapMarker
	notifier Notifier
	clock    timeutil.Clock
	open     SensorOpener

	// CalibrationPeriod is the fixed observation duration of Calibrate.
	CalibrationPeriod time.Duration

	// CalibrationMargin is the fraction of the mean in-window distance
	// used as the new threshold. Below 1 so the threshold sits under the
	// open-gate distance. Calibrated empirically.
	CalibrationMargin float64

	state *detectionState

	running atomic.Bool
	// thresholdMM and windowMS are read from the scan loop and the lap
	// validator without the lifecycle lock.
	thresholdMM atomic.Int64
	windowMS    atomic.Int64

	mu     sync.Mutex // lifecycle transitions
	sensor Sensor
	cancel context.CancelFunc
	done   chan struct{}
	window Window

	// counters for the debug surface
	scansProcessed      atomic.Int64
	detectionsConfirmed atomic.Int64
	lapsValidated       atomic.Int64
	lapsInvalidated     atomic.Int64
}

// New creates an Engine wired to the given collaborators. The sensor opener
// decides whether scans come from hardware or the simulator.
func New(store OptionStore, laps LapMarker, notifier Notifier, clock timeutil.Clock, open SensorOpener) *Engine {
	e := &Engine{
		store:             store,
		laps:              laps,
		notifier:          notifier,
		clock:             clock,
		open:              open,
		CalibrationPeriod: 10 * time.Second,
		CalibrationMargin: 0.6,
		state:             newDetectionState(defaultOptions().DebounceDepth),
	}
	e.thresholdMM.Store(int64(defaultOptions().DetectionMM))
	return e
}

// Running reports whether a scanning session is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Start opens a sensor session and launches the scan loop. A no-op while a
// session is already running. Any failure during open or the capability
// check leaves the engine stopped with resources released.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return nil
	}

	opts, err := LoadOptions(e.store)
	if err != nil {
		e.notifier.Alert(fmt.Sprintf("Failed to start LIDAR: %v", err))
		return fmt.Errorf("configuration: %w", err)
	}

	sensor, err := e.open(ctx, opts.SensorConfig())
	if err != nil {
		e.notifier.Alert(fmt.Sprintf("Failed to start LIDAR: %v", err))
		return fmt.Errorf("failed to open sensor: %w", err)
	}

	desc, err := sensor.Describe(ctx)
	if err != nil {
		sensor.Close()
		e.notifier.Alert(fmt.Sprintf("Failed to start LIDAR: %v", err))
		return fmt.Errorf("sensor capability check failed: %w", err)
	}

	e.state.Resize(opts.DebounceDepth)
	e.thresholdMM.Store(int64(opts.DetectionMM))
	e.windowMS.Store(int64(opts.WindowSecs * 1000))
	e.window = opts.Window()
	e.sensor = sensor

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	done := make(chan struct{})
	e.done = done
	e.running.Store(true)

	// The loop releases its own context on exit, so a sensor failure does
	// not leak it while the engine waits for the next Start.
	go func() {
		defer cancel()
		e.scanLoop(loopCtx, sensor, opts.Window(), done)
	}()

	monitoring.Logf("gate: session started on %s (%s)", opts.Port, desc)
	e.notifier.Notify("LIDAR scanning started")
	return nil
}

// Stop ends the scanning session. Idempotent. The not-running flag is set
// before teardown so an in-flight scan iteration exits rather than
// processing a stale sweep; the detection timestamp is cleared exactly once,
// with the session already marked stopped.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running.Load() {
		return nil
	}

	e.running.Store(false)
	e.cancel()

	select {
	case <-e.done:
	case <-e.clock.After(stopWait):
		monitoring.Logf("gate: scan loop did not exit within %v", stopWait)
	}

	e.state.Reset()
	if err := e.sensor.Close(); err != nil {
		// Best-effort: the sensor may already be gone.
		monitoring.Logf("gate: sensor close: %v", err)
	}
	e.sensor = nil
	e.cancel = nil

	e.notifier.Notify("LIDAR scanning stopped")
	return nil
}

// Close stops any active session. Implements the engine's lifecycle
// contract for main's shutdown path.
func (e *Engine) Close() error {
	return e.Stop()
}

// scanLoop consumes sweeps until the session stops or the link fails. All
// sensor failures are contained here: a fatal one stops the session and
// notifies, never propagating into event-delivery or request paths.
func (e *Engine) scanLoop(ctx context.Context, sensor Sensor, window Window, done chan struct{}) {
	defer close(done)

	transientRun := 0
	for {
		scan, err := sensor.NextScan(ctx)

		// Re-check after every blocking read so a stop requested
		// mid-read never processes a stale sweep.
		if !e.running.Load() {
			return
		}

		if err != nil {
			if isTransient(err) && transientRun < maxTransientFailures {
				transientRun++
				monitoring.Logf("gate: transient scan failure (%d/%d): %v", transientRun, maxTransientFailures, err)
				continue
			}
			e.failSession(sensor, err)
			return
		}
		transientRun = 0

		e.processScan(scan, window)
	}
}

// failSession is the loop-boundary conversion of a sensor failure into a
// stopped state plus a notification.
func (e *Engine) failSession(sensor Sensor, err error) {
	e.running.Store(false)
	e.state.Reset()
	if closeErr := sensor.Close(); closeErr != nil {
		monitoring.Logf("gate: sensor close after failure: %v", closeErr)
	}
	e.notifier.Alert(fmt.Sprintf("LIDAR scanning error: %v", err))
}

// processScan evaluates the detection predicate over a full sweep and
// publishes the projection and debounce outcome in one critical section.
// The sweep is always processed to the end: the projection needs every
// sample even after a candidate detection is found.
func (e *Engine) processScan(scan Scan, window Window) {
	threshold := float64(e.thresholdMM.Load())

	proj := make(Projection, 0, len(scan))
	hasDetection := false
	for _, s := range scan {
		proj = append(proj, Project(s))
		if window.Contains(s.AngleDeg) && s.DistanceMM < threshold {
			hasDetection = true
		}
	}

	nowMS := timeutil.EpochMillis(e.clock.Now())
	confirmed := e.state.Observe(hasDetection, proj, nowMS)

	e.scansProcessed.Add(1)
	if confirmed {
		e.detectionsConfirmed.Add(1)
	}
}

// HandleLapRecorded validates an externally reported lap against the most
// recent confirmed detection. Fail-closed: no session, no detection, or a
// detection outside the window all invalidate the lap. Total over the shared
// state; never returns an error to the event-delivery path.
func (e *Engine) HandleLapRecorded(lap LapEvent) {
	if !e.running.Load() {
		e.invalidate(lap, "no active LIDAR session")
		return
	}

	last, ok := e.state.LastDetection()
	if !ok {
		e.invalidate(lap, "no LIDAR detection recorded")
		return
	}

	nowMS := timeutil.EpochMillis(e.clock.Now())
	gap := nowMS - last
	if gap < 0 {
		gap = -gap
	}
	gapSecs := float64(gap) / 1000.0
	windowSecs := float64(e.windowMS.Load()) / 1000.0

	if gapSecs > windowSecs {
		e.invalidate(lap, fmt.Sprintf("no detection within %.2fs (gap %.2fs)", windowSecs, gapSecs))
		return
	}

	e.lapsValidated.Add(1)
	monitoring.Logf("gate: lap %d by %s validated (gap %.3fs)", lap.LapNumber, lap.Pilot, gapSecs)
}

func (e *Engine) invalidate(lap LapEvent, reason string) {
	e.lapsInvalidated.Add(1)
	if err := e.laps.MarkLapInvalid(lap.ID, reason); err != nil {
		monitoring.Logf("gate: failed to mark lap %s invalid: %v", lap.ID, err)
	}
	e.notifier.Notify(fmt.Sprintf("Warning: lap %d by %s recorded without LIDAR validation (%s)", lap.LapNumber, lap.Pilot, reason))
}

// HandleRaceStart restarts the session so every race begins with a fresh
// sensor connection and a threshold reread from configuration.
func (e *Engine) HandleRaceStart(ctx context.Context) {
	if err := e.Stop(); err != nil {
		monitoring.Logf("gate: stop before race start: %v", err)
	}
	if err := e.Start(ctx); err != nil {
		monitoring.Logf("gate: start for race: %v", err)
	}
}

// HandleRaceStop ends the session when the race ends.
func (e *Engine) HandleRaceStop() {
	if err := e.Stop(); err != nil {
		monitoring.Logf("gate: stop on race stop: %v", err)
	}
}

// Status returns the visualization snapshot under the same lock discipline
// as the scan loop's writes; it never blocks on sensor I/O.
func (e *Engine) Status() Status {
	snap := e.state.Snapshot()
	return Status{
		Running:        e.running.Load(),
		ThresholdMM:    int(e.thresholdMM.Load()),
		LastCrossingMS: snap.LastDetectionMS,
		Points:         snap.Projection,
	}
}

// Snapshot exposes the full shared-state view, including the detection
// timestamp, for the calibrator and tests.
func (e *Engine) Snapshot() StateSnapshot {
	return e.state.Snapshot()
}

// ThresholdMM returns the active detection threshold in native millimeters.
func (e *Engine) ThresholdMM() int {
	return int(e.thresholdMM.Load())
}
