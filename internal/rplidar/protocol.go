package rplidar

import (
	"encoding/binary"
	"fmt"
)

// RPLidar serial protocol framing. Requests are two bytes (sync + command);
// the device answers with a seven-byte response descriptor followed by the
// payload(s) it announces.

const (
	syncByte     = 0xA5
	syncByteResp = 0x5A

	cmdStop      = 0x25
	cmdReset     = 0x40
	cmdScan      = 0x20
	cmdGetInfo   = 0x50
	cmdGetHealth = 0x52

	descriptorLen = 7
	infoLen       = 20
	healthLen     = 3
	nodeLen       = 5

	dataTypeInfo   = 0x04
	dataTypeHealth = 0x06
	dataTypeScan   = 0x81
)

// Health status codes reported by GET_HEALTH.
const (
	healthGood    = 0
	healthWarning = 1
	healthError   = 2
)

// descriptor is the parsed form of a response descriptor.
type descriptor struct {
	payloadLen int
	sendMode   byte
	dataType   byte
}

func request(cmd byte) []byte {
	return []byte{syncByte, cmd}
}

// parseDescriptor decodes the seven-byte response header. The 32-bit size
// field carries the payload length in its low 30 bits and the send mode in
// the top two.
func parseDescriptor(buf []byte) (descriptor, error) {
	if len(buf) != descriptorLen {
		return descriptor{}, fmt.Errorf("descriptor must be %d bytes, got %d", descriptorLen, len(buf))
	}
	if buf[0] != syncByte || buf[1] != syncByteResp {
		return descriptor{}, fmt.Errorf("%w: bad sync bytes %#02x %#02x", ErrBadDescriptor, buf[0], buf[1])
	}
	size := binary.LittleEndian.Uint32(buf[2:6])
	return descriptor{
		payloadLen: int(size & 0x3FFFFFFF),
		sendMode:   byte(size >> 30),
		dataType:   buf[6],
	}, nil
}

// DeviceInfo is the payload of a GET_INFO response.
type DeviceInfo struct {
	Model           int
	FirmwareMinor   int
	FirmwareMajor   int
	Hardware        int
	SerialNumberHex string
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("rplidar model %d firmware %d.%d hardware %d serial %s",
		i.Model, i.FirmwareMajor, i.FirmwareMinor, i.Hardware, i.SerialNumberHex)
}

func parseInfo(buf []byte) (DeviceInfo, error) {
	if len(buf) != infoLen {
		return DeviceInfo{}, fmt.Errorf("info payload must be %d bytes, got %d", infoLen, len(buf))
	}
	serialHex := ""
	for _, b := range buf[4:20] {
		serialHex += fmt.Sprintf("%02X", b)
	}
	return DeviceInfo{
		Model:           int(buf[0]),
		FirmwareMinor:   int(buf[1]),
		FirmwareMajor:   int(buf[2]),
		Hardware:        int(buf[3]),
		SerialNumberHex: serialHex,
	}, nil
}

// DeviceHealth is the payload of a GET_HEALTH response.
type DeviceHealth struct {
	Status    int
	ErrorCode int
}

// OK reports whether the device considers itself usable.
func (h DeviceHealth) OK() bool {
	return h.Status != healthError
}

func parseHealth(buf []byte) (DeviceHealth, error) {
	if len(buf) != healthLen {
		return DeviceHealth{}, fmt.Errorf("health payload must be %d bytes, got %d", healthLen, len(buf))
	}
	return DeviceHealth{
		Status:    int(buf[0]),
		ErrorCode: int(binary.LittleEndian.Uint16(buf[1:3])),
	}, nil
}

// node is one decoded 5-byte scan measurement.
type node struct {
	startFlag  bool
	quality    int
	angleDeg   float64
	distanceMM float64
}

// nodeAligned reports whether the buffer plausibly starts at a node
// boundary: the start flag and its inverted copy must disagree and the
// check bit must be set.
func nodeAligned(buf []byte) bool {
	if len(buf) < nodeLen {
		return false
	}
	s := buf[0] & 0x01
	ns := (buf[0] >> 1) & 0x01
	return s != ns && buf[1]&0x01 == 1
}

// parseNode decodes one measurement node. Angle is in degrees (Q6 fixed
// point) and distance in millimeters (Q2 fixed point).
func parseNode(buf []byte) (node, error) {
	if len(buf) != nodeLen {
		return node{}, fmt.Errorf("node must be %d bytes, got %d", nodeLen, len(buf))
	}
	if !nodeAligned(buf) {
		return node{}, ErrDesync
	}
	angleQ6 := (uint16(buf[2]) << 7) | uint16(buf[1]>>1)
	distQ2 := uint16(buf[4])<<8 | uint16(buf[3])
	return node{
		startFlag:  buf[0]&0x01 == 1,
		quality:    int(buf[0] >> 2),
		angleDeg:   float64(angleQ6) / 64.0,
		distanceMM: float64(distQ2) / 4.0,
	}, nil
}
