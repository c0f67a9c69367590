package gate

import (
	"fmt"
	"strconv"
	"strings"
)

// Option names in the host configuration store. Values are string-typed, as
// the host stores them; typed accessors below parse and validate.
const (
	OptionPort              = "lidar_port"
	OptionBaudRate          = "lidar_baud_rate"
	OptionConnectionTimeout = "lidar_connection_timeout"
	OptionDetectionDistance = "detection_distance"
	OptionDetectionWindow   = "detection_window"
	OptionGateHalfAngle     = "gate_half_angle"
	OptionDebounceDepth     = "debounce_depth"
)

// OptionStore is the host configuration store contract: named string-typed
// options with read/write access.
type OptionStore interface {
	// Option returns the stored value for name, or "" if unset.
	Option(name string) (string, error)

	// SetOption persists a value under name.
	SetOption(name, value string) error
}

// Options is the validated session configuration read from the store at
// session start. A fresh read happens on every race start so edits take
// effect at the next session.
type Options struct {
	Port               string
	BaudRate           int
	ConnectTimeoutSecs float64
	DetectionMM        int
	WindowSecs         float64
	HalfAngleDeg       float64
	DebounceDepth      int
}

// Defaults mirror the RPLidar C1 wiring the gate hardware ships with.
func defaultOptions() Options {
	return Options{
		Port:               "/dev/ttyUSB0",
		BaudRate:           460800,
		ConnectTimeoutSecs: 10,
		DetectionMM:        1000,
		WindowSecs:         0.5,
		HalfAngleDeg:       10,
		DebounceDepth:      3,
	}
}

// LoadOptions reads and validates the session configuration. A missing
// option falls back to its default; a malformed one is a configuration
// error and fails the session start.
func LoadOptions(store OptionStore) (Options, error) {
	opts := defaultOptions()

	str := func(name, fallback string) (string, error) {
		v, err := store.Option(name)
		if err != nil {
			return "", fmt.Errorf("failed to read option %s: %w", name, err)
		}
		if strings.TrimSpace(v) == "" {
			return fallback, nil
		}
		return strings.TrimSpace(v), nil
	}

	port, err := str(OptionPort, opts.Port)
	if err != nil {
		return opts, err
	}
	opts.Port = port

	if v, err := str(OptionBaudRate, strconv.Itoa(opts.BaudRate)); err != nil {
		return opts, err
	} else if opts.BaudRate, err = strconv.Atoi(v); err != nil {
		return opts, fmt.Errorf("invalid %s %q: %w", OptionBaudRate, v, err)
	}

	if v, err := str(OptionConnectionTimeout, "10"); err != nil {
		return opts, err
	} else if opts.ConnectTimeoutSecs, err = strconv.ParseFloat(v, 64); err != nil {
		return opts, fmt.Errorf("invalid %s %q: %w", OptionConnectionTimeout, v, err)
	}

	if v, err := str(OptionDetectionDistance, strconv.Itoa(opts.DetectionMM)); err != nil {
		return opts, err
	} else if opts.DetectionMM, err = strconv.Atoi(v); err != nil {
		return opts, fmt.Errorf("invalid %s %q: %w", OptionDetectionDistance, v, err)
	}

	if v, err := str(OptionDetectionWindow, "0.5"); err != nil {
		return opts, err
	} else if opts.WindowSecs, err = strconv.ParseFloat(v, 64); err != nil {
		return opts, fmt.Errorf("invalid %s %q: %w", OptionDetectionWindow, v, err)
	}

	if v, err := str(OptionGateHalfAngle, "10"); err != nil {
		return opts, err
	} else if opts.HalfAngleDeg, err = strconv.ParseFloat(v, 64); err != nil {
		return opts, fmt.Errorf("invalid %s %q: %w", OptionGateHalfAngle, v, err)
	}

	if v, err := str(OptionDebounceDepth, strconv.Itoa(opts.DebounceDepth)); err != nil {
		return opts, err
	} else if opts.DebounceDepth, err = strconv.Atoi(v); err != nil {
		return opts, fmt.Errorf("invalid %s %q: %w", OptionDebounceDepth, v, err)
	}

	return opts, opts.Validate()
}

// Validate checks the invariants the engine relies on.
func (o Options) Validate() error {
	if o.Port == "" {
		return fmt.Errorf("%s must not be empty", OptionPort)
	}
	if o.BaudRate <= 0 {
		return fmt.Errorf("%s must be positive, got %d", OptionBaudRate, o.BaudRate)
	}
	if o.ConnectTimeoutSecs <= 0 {
		return fmt.Errorf("%s must be positive, got %g", OptionConnectionTimeout, o.ConnectTimeoutSecs)
	}
	if o.DetectionMM <= 0 {
		return fmt.Errorf("%s must be a positive integer, got %d", OptionDetectionDistance, o.DetectionMM)
	}
	if o.WindowSecs <= 0 {
		return fmt.Errorf("%s must be positive, got %g", OptionDetectionWindow, o.WindowSecs)
	}
	if o.HalfAngleDeg <= 0 || o.HalfAngleDeg >= 180 {
		return fmt.Errorf("%s must be in (0, 180), got %g", OptionGateHalfAngle, o.HalfAngleDeg)
	}
	if o.DebounceDepth < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", OptionDebounceDepth, o.DebounceDepth)
	}
	return nil
}

// Window returns the configured gate window.
func (o Options) Window() Window {
	return Window{HalfAngleDeg: o.HalfAngleDeg}
}

// SensorConfig returns the opaque connection parameters for the driver.
func (o Options) SensorConfig() SensorConfig {
	return SensorConfig{
		Port:           o.Port,
		BaudRate:       o.BaudRate,
		ConnectTimeout: o.ConnectTimeoutSecs,
	}
}
