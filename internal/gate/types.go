// Package gate implements the gate-crossing detection and lap-validation
// engine: it consumes rangefinder sweeps, decides whether an object crossed
// the timing gate's detection zone, and correlates externally reported lap
// events against that evidence.
package gate

import (
	"context"
	"math"

	"github.com/banshee-data/lapgate/internal/units"
)

// Sample is a single rangefinder return: angle in degrees [0,360) and
// distance in native millimeters.
type Sample struct {
	AngleDeg   float64
	DistanceMM float64
}

// Scan is one sweep's worth of samples. Ordering follows the sensor's
// rotation; a sweep is not guaranteed to start at a fixed angle.
type Scan []Sample

// Window is the angular sector considered "directly ahead of the gate":
// angles below the half-angle or above 360 minus the half-angle.
type Window struct {
	HalfAngleDeg float64
}

// Contains reports whether the given angle falls inside the gate window.
func (w Window) Contains(angleDeg float64) bool {
	return angleDeg < w.HalfAngleDeg || angleDeg > 360-w.HalfAngleDeg
}

// ProjectedPoint is one sample of the visualization projection. X and Y are
// in display units; DistanceMM stays native so threshold and calibration
// math never touch the display scale.
type ProjectedPoint struct {
	AngleDeg   float64 `json:"angle"`
	DistanceMM float64 `json:"distance"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// Projection is the display-ready form of one full scan.
type Projection []ProjectedPoint

// Project converts a sample's polar coordinates into display-unit Cartesian
// coordinates. Y points along the gate's forward axis (angle 0).
func Project(s Sample) ProjectedPoint {
	rad := s.AngleDeg * math.Pi / 180.0
	d := units.ToDisplay(s.DistanceMM)
	return ProjectedPoint{
		AngleDeg:   s.AngleDeg,
		DistanceMM: s.DistanceMM,
		X:          d * math.Sin(rad),
		Y:          d * math.Cos(rad),
	}
}

// Sensor is an open session with the rangefinder. NextScan blocks until the
// next full sweep is available or the context is cancelled. Close is
// best-effort and must be safe to call after a failed read.
type Sensor interface {
	// Describe queries the device's identity and health. The lifecycle
	// controller uses it as the capability check before declaring a
	// session running.
	Describe(ctx context.Context) (string, error)

	NextScan(ctx context.Context) (Scan, error)

	Close() error
}

// SensorConfig carries the opaque connection parameters through to the
// driver unchanged.
type SensorConfig struct {
	Port           string
	BaudRate       int
	ConnectTimeout float64 // seconds
}

// SensorOpener opens a session with the physical (or simulated) sensor.
type SensorOpener func(ctx context.Context, cfg SensorConfig) (Sensor, error)
