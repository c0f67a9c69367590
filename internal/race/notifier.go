package race

import (
	"sync"
	"time"

	"github.com/banshee-data/lapgate/internal/monitoring"
	"github.com/banshee-data/lapgate/internal/timeutil"
)

// Notification levels.
const (
	LevelInfo  = "info"
	LevelAlert = "alert"
)

// Notification is one operator-visible message.
type Notification struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier is the fire-and-forget operator notification channel. It keeps a
// bounded ring of recent messages for the UI and mirrors everything to the
// diagnostic log.
type Notifier struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	entries  []Notification
	capacity int
}

// NewNotifier creates a Notifier retaining up to capacity recent messages.
func NewNotifier(clock timeutil.Clock, capacity int) *Notifier {
	if capacity < 1 {
		capacity = 50
	}
	return &Notifier{clock: clock, capacity: capacity}
}

// Notify records an informational message.
func (n *Notifier) Notify(msg string) {
	n.record(LevelInfo, msg)
}

// Alert records a message that needs the operator's attention.
func (n *Notifier) Alert(msg string) {
	n.record(LevelAlert, msg)
}

func (n *Notifier) record(level, msg string) {
	monitoring.Logf("notify [%s]: %s", level, msg)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, Notification{Level: level, Message: msg, At: n.clock.Now()})
	if len(n.entries) > n.capacity {
		n.entries = n.entries[len(n.entries)-n.capacity:]
	}
}

// Recent returns the retained messages, oldest first.
func (n *Notifier) Recent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.entries))
	copy(out, n.entries)
	return out
}
