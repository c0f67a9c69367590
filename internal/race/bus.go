// Package race provides the host-side collaborators the gate engine plugs
// into when running standalone: an event bus standing in for the race
// management platform and a notification channel for the operator.
package race

import (
	"sync"

	"github.com/banshee-data/lapgate/internal/gate"
)

// Bus delivers race events to registered callbacks. Delivery is synchronous
// on the publisher's goroutine; ordering relative to sensor timing is best
// effort only.
type Bus struct {
	mu      sync.Mutex
	onLap   []func(gate.LapEvent)
	onStart []func()
	onStop  []func()
}

func NewBus() *Bus {
	return &Bus{}
}

// OnLapRecorded registers a callback for lap-recorded events.
func (b *Bus) OnLapRecorded(fn func(gate.LapEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onLap = append(b.onLap, fn)
}

// OnRaceStart registers a callback for race-start events.
func (b *Bus) OnRaceStart(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStart = append(b.onStart, fn)
}

// OnRaceStop registers a callback for race-stop events.
func (b *Bus) OnRaceStop(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStop = append(b.onStop, fn)
}

// PublishLapRecorded delivers a lap-recorded event to all subscribers.
func (b *Bus) PublishLapRecorded(lap gate.LapEvent) {
	for _, fn := range b.lapHandlers() {
		fn(lap)
	}
}

// PublishRaceStart delivers a race-start event to all subscribers.
func (b *Bus) PublishRaceStart() {
	b.mu.Lock()
	handlers := append([]func(){}, b.onStart...)
	b.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// PublishRaceStop delivers a race-stop event to all subscribers.
func (b *Bus) PublishRaceStop() {
	b.mu.Lock()
	handlers := append([]func(){}, b.onStop...)
	b.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (b *Bus) lapHandlers() []func(gate.LapEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]func(gate.LapEvent){}, b.onLap...)
}
