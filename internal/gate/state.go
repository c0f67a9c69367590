package gate

import "sync"

// StateSnapshot is a consistent read of the shared detection state: the
// projection and the detection decision it accompanied were produced in the
// same update.
type StateSnapshot struct {
	// LastDetectionMS is the epoch-millisecond instant of the most recent
	// confirmed detection, or 0 if absent.
	LastDetectionMS int64

	// Confirmed reports whether the debounce buffer currently holds any
	// detecting scan.
	Confirmed bool

	// Projection is the display projection of the most recent scan.
	Projection Projection

	// Seq increments once per processed scan, so an alternate consumer
	// (the calibrator) can take each scan exactly once.
	Seq uint64
}

// detectionState is the single authoritative record shared between the scan
// loop, the lap validator, the calibrator, and visualization reads. Every
// write is one critical section covering the debounce buffer, the timestamp,
// and the projection, so readers never see a mixed old/new combination.
type detectionState struct {
	mu              sync.Mutex
	buffer          []bool
	capacity        int
	lastDetectionMS int64
	projection      Projection
	seq             uint64
}

func newDetectionState(capacity int) *detectionState {
	if capacity < 1 {
		capacity = 1
	}
	return &detectionState{capacity: capacity}
}

// Observe records one processed scan: its detection outcome enters the
// debounce buffer (evicting the oldest entry beyond capacity), the rolling
// OR decides confirmation, and the projection is replaced. On confirmation
// the timestamp is stamped with nowMS, which reflects "now" rather than the
// instant of the buffered entry that was true; the buffer is short enough
// that the difference stays inside the sub-second debounce window. Returns
// whether the detection is confirmed.
func (s *detectionState) Observe(hasDetection bool, proj Projection, nowMS int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, hasDetection)
	if len(s.buffer) > s.capacity {
		s.buffer = s.buffer[1:]
	}

	confirmed := false
	for _, b := range s.buffer {
		if b {
			confirmed = true
			break
		}
	}

	if confirmed && nowMS > s.lastDetectionMS {
		s.lastDetectionMS = nowMS
	}

	s.projection = proj
	s.seq++
	return confirmed
}

// LastDetection returns the timestamp of the most recent confirmed
// detection and whether one exists.
func (s *detectionState) LastDetection() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDetectionMS, s.lastDetectionMS != 0
}

// Snapshot returns a consistent copy of the whole record.
func (s *detectionState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	confirmed := false
	for _, b := range s.buffer {
		if b {
			confirmed = true
			break
		}
	}

	proj := make(Projection, len(s.projection))
	copy(proj, s.projection)

	return StateSnapshot{
		LastDetectionMS: s.lastDetectionMS,
		Confirmed:       confirmed,
		Projection:      proj,
		Seq:             s.seq,
	}
}

// Reset clears the timestamp, buffer, and projection in one step. Called
// exactly once per session stop, atomically with the not-running transition.
func (s *detectionState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = nil
	s.lastDetectionMS = 0
	s.projection = nil
}

// Resize reconfigures the debounce capacity for a new session and clears
// any history carried over from the previous one.
func (s *detectionState) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = capacity
	s.buffer = nil
	s.lastDetectionMS = 0
	s.projection = nil
}
