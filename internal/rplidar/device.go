// Package rplidar is a driver for Slamtec RPLidar rotating rangefinders over
// a serial link. It frames protocol requests, verifies device identity and
// health, and assembles 5-byte measurement nodes into full sweeps.
package rplidar

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/lapgate/internal/gate"
)

// Porter defines the minimal interface needed for the serial link. The
// abstraction enables unit testing without real sensor hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// resyncLimit bounds how many bytes NextScan will shift through looking for
// a node boundary before giving up on the current sweep.
const resyncLimit = 128

// Device is an open session with an RPLidar. It is not safe for concurrent
// use by multiple goroutines; the engine owns exactly one reader.
type Device struct {
	mu       sync.Mutex
	port     Porter
	closed   bool
	scanning bool

	// partial holds samples of the sweep currently being assembled.
	partial gate.Scan
}

// NewDevice wraps an already-open serial link. Used by tests and the
// simulator; production code goes through Open.
func NewDevice(port Porter) *Device {
	return &Device{port: port}
}

// Open opens the serial port at the given path and returns a Device ready
// for Describe / NextScan.
func Open(path string, opts PortOptions) (*Device, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	mode, err := normalized.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	if err := port.SetReadTimeout(normalized.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return NewDevice(port), nil
}

// readFull fills buf from the port, honouring context cancellation between
// partial reads. Serial read timeouts surface as zero-byte reads and simply
// loop back around.
func (d *Device) readFull(ctx context.Context, buf []byte) error {
	read := 0
	for read < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := d.port.Read(buf[read:])
		if err != nil {
			return fmt.Errorf("serial read failed: %w", err)
		}
		read += n
	}
	return nil
}

func (d *Device) command(cmd byte) error {
	if _, err := d.port.Write(request(cmd)); err != nil {
		return fmt.Errorf("failed to send command %#02x: %w", cmd, err)
	}
	return nil
}

// response sends a command and reads back its descriptor plus payload,
// verifying the announced data type and length.
func (d *Device) response(ctx context.Context, cmd, wantType byte, wantLen int) ([]byte, error) {
	if err := d.command(cmd); err != nil {
		return nil, err
	}

	header := make([]byte, descriptorLen)
	if err := d.readFull(ctx, header); err != nil {
		return nil, err
	}
	desc, err := parseDescriptor(header)
	if err != nil {
		return nil, err
	}
	if desc.dataType != wantType || desc.payloadLen != wantLen {
		return nil, fmt.Errorf("%w: got type %#02x len %d, want type %#02x len %d",
			ErrBadDescriptor, desc.dataType, desc.payloadLen, wantType, wantLen)
	}

	payload := make([]byte, wantLen)
	if err := d.readFull(ctx, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Info queries the device identity.
func (d *Device) Info(ctx context.Context) (DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return DeviceInfo{}, ErrClosed
	}
	payload, err := d.response(ctx, cmdGetInfo, dataTypeInfo, infoLen)
	if err != nil {
		return DeviceInfo{}, err
	}
	return parseInfo(payload)
}

// Health queries the device self-diagnostic state.
func (d *Device) Health(ctx context.Context) (DeviceHealth, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return DeviceHealth{}, ErrClosed
	}
	payload, err := d.response(ctx, cmdGetHealth, dataTypeHealth, healthLen)
	if err != nil {
		return DeviceHealth{}, err
	}
	return parseHealth(payload)
}

// Describe performs the capability check used at session start: an identity
// query followed by a health query. A device reporting error health refuses
// the session.
func (d *Device) Describe(ctx context.Context) (string, error) {
	info, err := d.Info(ctx)
	if err != nil {
		return "", err
	}
	health, err := d.Health(ctx)
	if err != nil {
		return "", err
	}
	if !health.OK() {
		return "", fmt.Errorf("%w: status %d error code %d", ErrHealth, health.Status, health.ErrorCode)
	}
	return info.String(), nil
}

// startScan puts the device into continuous measurement mode. Caller holds
// the lock.
func (d *Device) startScan(ctx context.Context) error {
	if err := d.command(cmdScan); err != nil {
		return err
	}
	header := make([]byte, descriptorLen)
	if err := d.readFull(ctx, header); err != nil {
		return err
	}
	desc, err := parseDescriptor(header)
	if err != nil {
		return err
	}
	if desc.dataType != dataTypeScan || desc.payloadLen != nodeLen {
		return fmt.Errorf("%w: unexpected scan descriptor type %#02x len %d",
			ErrBadDescriptor, desc.dataType, desc.payloadLen)
	}
	d.scanning = true
	d.partial = nil
	return nil
}

// NextScan blocks until one full sweep has been assembled. The first call
// starts continuous measurement mode. Zero-distance nodes (invalid returns)
// are dropped from the sweep but still advance assembly.
func (d *Device) NextScan(ctx context.Context) (gate.Scan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if !d.scanning {
		if err := d.startScan(ctx); err != nil {
			return nil, classified(err)
		}
	}

	buf := make([]byte, nodeLen)
	for {
		if err := d.readFull(ctx, buf); err != nil {
			return nil, classified(err)
		}

		n, err := parseNode(buf)
		if err != nil {
			if err = d.resync(ctx, buf); err != nil {
				return nil, classified(err)
			}
			n, err = parseNode(buf)
			if err != nil {
				return nil, classified(err)
			}
		}

		if n.startFlag && len(d.partial) > 0 {
			completed := d.partial
			d.partial = gate.Scan{}
			if n.distanceMM > 0 {
				d.partial = append(d.partial, gate.Sample{AngleDeg: n.angleDeg, DistanceMM: n.distanceMM})
			}
			return completed, nil
		}

		if n.distanceMM > 0 {
			d.partial = append(d.partial, gate.Sample{AngleDeg: n.angleDeg, DistanceMM: n.distanceMM})
		}
	}
}

// resync shifts through the byte stream one byte at a time until buf again
// holds a plausible node boundary. The partially assembled sweep is discarded
// since its alignment can no longer be trusted.
func (d *Device) resync(ctx context.Context, buf []byte) error {
	d.partial = nil
	one := make([]byte, 1)
	for i := 0; i < resyncLimit; i++ {
		if nodeAligned(buf) {
			return nil
		}
		if err := d.readFull(ctx, one); err != nil {
			return err
		}
		copy(buf, buf[1:])
		buf[nodeLen-1] = one[0]
	}
	return fmt.Errorf("%w: no node boundary within %d bytes", ErrDesync, resyncLimit)
}

// Stop leaves continuous measurement mode. Best-effort: a device that is
// already gone only surfaces the write error.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.scanning = false
	d.partial = nil
	return d.command(cmdStop)
}

// Reset reboots the device. The post-reset banner is left in the serial
// buffer; callers should reopen before issuing further requests.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.command(cmdReset)
}

// Close stops measurement and releases the serial port. Safe to call more
// than once and safe to call on an already-failed link.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.scanning = false
	d.partial = nil
	// Ignore the stop write: the device may already be disconnected.
	_ = d.commandBestEffort(cmdStop)
	return d.port.Close()
}

func (d *Device) commandBestEffort(cmd byte) error {
	_, err := d.port.Write(request(cmd))
	return err
}
