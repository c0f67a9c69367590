package rplidar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeNode builds one 5-byte measurement node for test streams.
func encodeNode(start bool, quality int, angleDeg, distanceMM float64) []byte {
	angleQ6 := uint16(angleDeg * 64)
	distQ2 := uint16(distanceMM * 4)

	b0 := byte(quality << 2)
	if start {
		b0 |= 0x01
	} else {
		b0 |= 0x02
	}
	return []byte{
		b0,
		byte(angleQ6&0x7F)<<1 | 0x01,
		byte(angleQ6 >> 7),
		byte(distQ2 & 0xFF),
		byte(distQ2 >> 8),
	}
}

func TestParseDescriptor(t *testing.T) {
	// GET_INFO descriptor: 20-byte single response, data type 0x04.
	desc, err := parseDescriptor([]byte{0xA5, 0x5A, 0x14, 0x00, 0x00, 0x00, 0x04})
	require.NoError(t, err)
	assert.Equal(t, 20, desc.payloadLen)
	assert.Equal(t, byte(0), desc.sendMode)
	assert.Equal(t, byte(dataTypeInfo), desc.dataType)

	// SCAN descriptor: 5-byte multi response, data type 0x81, send mode 1.
	desc, err = parseDescriptor([]byte{0xA5, 0x5A, 0x05, 0x00, 0x00, 0x40, 0x81})
	require.NoError(t, err)
	assert.Equal(t, 5, desc.payloadLen)
	assert.Equal(t, byte(1), desc.sendMode)
	assert.Equal(t, byte(dataTypeScan), desc.dataType)
}

func TestParseDescriptorBadSync(t *testing.T) {
	_, err := parseDescriptor([]byte{0xA5, 0x00, 0x05, 0x00, 0x00, 0x40, 0x81})
	assert.ErrorIs(t, err, ErrBadDescriptor)
}

func TestParseInfo(t *testing.T) {
	payload := make([]byte, infoLen)
	payload[0] = 0x41 // model
	payload[1] = 2    // firmware minor
	payload[2] = 1    // firmware major
	payload[3] = 7    // hardware
	for i := 4; i < 20; i++ {
		payload[i] = byte(i)
	}

	info, err := parseInfo(payload)
	require.NoError(t, err)
	assert.Equal(t, 0x41, info.Model)
	assert.Equal(t, 1, info.FirmwareMajor)
	assert.Equal(t, 2, info.FirmwareMinor)
	assert.Equal(t, 7, info.Hardware)
	assert.Len(t, info.SerialNumberHex, 32)
	assert.Contains(t, info.String(), "firmware 1.2")
}

func TestParseHealth(t *testing.T) {
	health, err := parseHealth([]byte{healthGood, 0x00, 0x00})
	require.NoError(t, err)
	assert.True(t, health.OK())

	health, err = parseHealth([]byte{healthError, 0x34, 0x12})
	require.NoError(t, err)
	assert.False(t, health.OK())
	assert.Equal(t, 0x1234, health.ErrorCode)
}

func TestParseNode(t *testing.T) {
	n, err := parseNode(encodeNode(true, 47, 5.5, 1234.25))
	require.NoError(t, err)
	assert.True(t, n.startFlag)
	assert.Equal(t, 47, n.quality)
	assert.InDelta(t, 5.5, n.angleDeg, 1.0/64)
	assert.InDelta(t, 1234.25, n.distanceMM, 0.25)

	n, err = parseNode(encodeNode(false, 10, 359.0, 80))
	require.NoError(t, err)
	assert.False(t, n.startFlag)
	assert.InDelta(t, 359.0, n.angleDeg, 1.0/64)
}

func TestParseNodeDesync(t *testing.T) {
	// Both start bits set: impossible node.
	_, err := parseNode([]byte{0x03, 0x01, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrDesync)

	// Check bit clear.
	_, err = parseNode([]byte{0x01, 0x00, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrDesync)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureNone, Classify(nil))
	assert.Equal(t, FailureRecoverable, Classify(ErrDesync))
	assert.Equal(t, FailureFatal, Classify(ErrClosed))
	assert.Equal(t, FailureFatal, Classify(ErrHealth))
}
