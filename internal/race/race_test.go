package race

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lapgate/internal/gate"
	"github.com/banshee-data/lapgate/internal/monitoring"
	"github.com/banshee-data/lapgate/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()

	var gotA, gotB gate.LapEvent
	bus.OnLapRecorded(func(l gate.LapEvent) { gotA = l })
	bus.OnLapRecorded(func(l gate.LapEvent) { gotB = l })

	lap := gate.LapEvent{ID: "lap-1", Pilot: "ada", LapNumber: 3}
	bus.PublishLapRecorded(lap)

	assert.Equal(t, lap, gotA)
	assert.Equal(t, lap, gotB)
}

func TestBusRaceSignals(t *testing.T) {
	bus := NewBus()

	var starts, stops int
	bus.OnRaceStart(func() { starts++ })
	bus.OnRaceStop(func() { stops++ })

	bus.PublishRaceStart()
	bus.PublishRaceStart()
	bus.PublishRaceStop()

	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops)
}

func TestBusNoSubscribers(t *testing.T) {
	bus := NewBus()
	// Publishing with no subscribers must not panic.
	bus.PublishLapRecorded(gate.LapEvent{})
	bus.PublishRaceStart()
	bus.PublishRaceStop()
}

func TestNotifierLevels(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	n := NewNotifier(clock, 10)

	n.Notify("scanning started")
	clock.Advance(time.Second)
	n.Alert("sensor unplugged")

	recent := n.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, LevelInfo, recent[0].Level)
	assert.Equal(t, "scanning started", recent[0].Message)
	assert.Equal(t, LevelAlert, recent[1].Level)
	assert.True(t, recent[1].At.After(recent[0].At))
}

func TestNotifierRingEviction(t *testing.T) {
	n := NewNotifier(timeutil.RealClock{}, 3)

	for i := 0; i < 5; i++ {
		n.Notify(fmt.Sprintf("message %d", i))
	}

	recent := n.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "message 2", recent[0].Message)
	assert.Equal(t, "message 4", recent[2].Message)
}
