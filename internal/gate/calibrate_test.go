package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lapgate/internal/timeutil"
)

// newRealClockRig builds a rig on the wall clock: the calibrator's
// observation period has to elapse in real time alongside the scan pump.
func newRealClockRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		store:    newMemStore(),
		marker:   &recordingMarker{},
		notifier: &recordingNotifier{},
	}
	opener := func(ctx context.Context, cfg SensorConfig) (Sensor, error) {
		s := newFakeSensor()
		rig.mu.Lock()
		rig.sensors = append(rig.sensors, s)
		rig.mu.Unlock()
		return s, nil
	}
	rig.engine = New(rig.store, rig.marker, rig.notifier, timeutil.RealClock{}, opener)
	t.Cleanup(func() { rig.engine.Stop() })
	return rig
}

// pumpScans feeds the current sensor continuously until the returned stop
// function is called.
func pumpScans(rig *testRig, scan Scan) (stop func()) {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case rig.sensor().scans <- scan:
			}
		}
	}()
	return func() { close(done) }
}

func TestCalibrateConvergence(t *testing.T) {
	rig := newRealClockRig(t)
	rig.engine.CalibrationPeriod = 200 * time.Millisecond
	rig.engine.CalibrationMargin = 0.6

	require.NoError(t, rig.engine.Start(context.Background()))
	stop := pumpScans(rig, Scan{
		{AngleDeg: 5, DistanceMM: 2000},   // in window
		{AngleDeg: 180, DistanceMM: 9000}, // outside window, must be ignored
	})
	defer stop()

	threshold, err := rig.engine.Calibrate(context.Background())
	require.NoError(t, err)

	// round(2000 * 0.6)
	assert.Equal(t, 1200, threshold)
	assert.Equal(t, 1200, rig.engine.ThresholdMM())

	// Persisted through the configuration store.
	v, err := rig.store.Option(OptionDetectionDistance)
	require.NoError(t, err)
	assert.Equal(t, "1200", v)

	// An already-running session remains active on completion.
	assert.True(t, rig.engine.Running())
}

func TestCalibrateNoData(t *testing.T) {
	rig := newRealClockRig(t)
	rig.engine.CalibrationPeriod = 100 * time.Millisecond

	require.NoError(t, rig.engine.Start(context.Background()))
	before := rig.engine.ThresholdMM()

	// Only out-of-window measurements arrive.
	stop := pumpScans(rig, Scan{{AngleDeg: 90, DistanceMM: 2000}})
	defer stop()

	_, err := rig.engine.Calibrate(context.Background())
	require.ErrorIs(t, err, ErrNoCalibrationData)

	assert.Equal(t, before, rig.engine.ThresholdMM(), "threshold must be unchanged on failure")
	assert.NotEmpty(t, rig.notifier.Alerts())
	assert.True(t, rig.engine.Running())
}

func TestCalibrateStartsAndStopsOwnSession(t *testing.T) {
	rig := newRealClockRig(t)
	rig.engine.CalibrationPeriod = 100 * time.Millisecond

	require.False(t, rig.engine.Running())

	go func() {
		// Feed the session the calibrator opens.
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			rig.mu.Lock()
			n := len(rig.sensors)
			rig.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		stop := pumpScans(rig, Scan{{AngleDeg: 0, DistanceMM: 1500}})
		time.Sleep(500 * time.Millisecond)
		stop()
	}()

	threshold, err := rig.engine.Calibrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 900, threshold) // round(1500 * 0.6)

	// The calibrator opened the session, so it must close it again.
	assert.False(t, rig.engine.Running())
}

func TestCalibrateStopsOwnSessionOnFailure(t *testing.T) {
	rig := newRealClockRig(t)
	rig.engine.CalibrationPeriod = 50 * time.Millisecond

	// No scans are fed at all: calibration fails with no data, and the
	// session the calibrator opened is stopped again.
	_, err := rig.engine.Calibrate(context.Background())
	require.ErrorIs(t, err, ErrNoCalibrationData)
	assert.False(t, rig.engine.Running())
}

func TestCalibrateRespectsCancellation(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.CalibrationPeriod = time.Hour

	require.NoError(t, rig.engine.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rig.engine.Calibrate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
