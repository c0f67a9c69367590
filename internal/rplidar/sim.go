package rplidar

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/lapgate/internal/gate"
)

// Simulator produces synthetic sweeps without hardware, for -dev mode and
// tests. It emits an ambient wall at a fixed distance and, at a configurable
// interval, a near object crossing the gate window for a few sweeps.
type Simulator struct {
	// AmbientMM is the open-gate wall distance.
	AmbientMM float64

	// ObjectMM is the distance reported while the simulated object is in
	// the gate.
	ObjectMM float64

	// CrossingEvery is how often an object crossing occurs. Zero disables
	// crossings.
	CrossingEvery time.Duration

	// CrossingSweeps is how many consecutive sweeps the object stays
	// visible for. Defaults to 3.
	CrossingSweeps int

	// SweepPeriod is the time per revolution. Defaults to 100ms (10 Hz).
	SweepPeriod time.Duration

	// AngleStepDeg is the angular resolution of generated sweeps.
	// Defaults to 1 degree.
	AngleStepDeg float64

	mu           sync.Mutex
	closed       bool
	lastCrossing time.Time
	remaining    int
	rng          *rand.Rand
}

// NewSimulator returns a simulator with sensible defaults: a 5m ambient
// wall and a 1.2m object crossing every 10 seconds.
func NewSimulator() *Simulator {
	return &Simulator{
		AmbientMM:     5000,
		ObjectMM:      1200,
		CrossingEvery: 10 * time.Second,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Describe implements gate.Sensor.
func (s *Simulator) Describe(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return "rplidar simulator", nil
}

// NextScan blocks for one sweep period and returns a synthetic sweep.
func (s *Simulator) NextScan(ctx context.Context) (gate.Scan, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	period := s.SweepPeriod
	if period <= 0 {
		period = 100 * time.Millisecond
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(period):
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	step := s.AngleStepDeg
	if step <= 0 {
		step = 1
	}
	sweeps := s.CrossingSweeps
	if sweeps <= 0 {
		sweeps = 3
	}

	now := time.Now()
	if s.CrossingEvery > 0 && now.Sub(s.lastCrossing) >= s.CrossingEvery {
		s.lastCrossing = now
		s.remaining = sweeps
	}
	objectVisible := s.remaining > 0
	if objectVisible {
		s.remaining--
	}

	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(now.UnixNano()))
	}

	var scan gate.Scan
	for angle := 0.0; angle < 360; angle += step {
		dist := s.AmbientMM + s.rng.Float64()*50
		if objectVisible && (angle < 8 || angle > 352) {
			dist = s.ObjectMM + s.rng.Float64()*30
		}
		scan = append(scan, gate.Sample{AngleDeg: angle, DistanceMM: dist})
	}
	return scan, nil
}

// Close implements gate.Sensor.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// OpenSimulated is a gate.SensorOpener that ignores the port configuration
// and returns a fresh Simulator.
func OpenSimulated(ctx context.Context, cfg gate.SensorConfig) (gate.Sensor, error) {
	return NewSimulator(), nil
}

// OpenSensor is the production gate.SensorOpener: it opens the configured
// serial port with the configured baud rate and timeout.
func OpenSensor(ctx context.Context, cfg gate.SensorConfig) (gate.Sensor, error) {
	timeout := time.Duration(cfg.ConnectTimeout * float64(time.Second))
	return Open(cfg.Port, PortOptions{
		BaudRate:    cfg.BaudRate,
		ReadTimeout: timeout,
	})
}
