package gate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebounceAbsorption(t *testing.T) {
	s := newDetectionState(3)

	// One detecting scan followed by two sparse misses stays confirmed:
	// the rolling OR absorbs transient gaps in a fast object's visibility.
	assert.True(t, s.Observe(true, nil, 1000))
	assert.True(t, s.Observe(false, nil, 1010))
	assert.True(t, s.Observe(false, nil, 1020))

	// Fourth quiet scan evicts the true entry.
	assert.False(t, s.Observe(false, nil, 1030))

	// The previously set timestamp remains until overwritten or reset.
	last, ok := s.LastDetection()
	require.True(t, ok)
	assert.Equal(t, int64(1020), last)
}

func TestBufferNeverExceedsCapacity(t *testing.T) {
	s := newDetectionState(3)
	for i := 0; i < 10; i++ {
		s.Observe(false, nil, int64(i))
	}
	assert.LessOrEqual(t, len(s.buffer), 3)
}

func TestTimestampMonotonic(t *testing.T) {
	s := newDetectionState(3)

	s.Observe(true, nil, 5000)
	// A non-increasing clock reading must not move the timestamp backwards.
	s.Observe(true, nil, 4000)

	last, ok := s.LastDetection()
	require.True(t, ok)
	assert.Equal(t, int64(5000), last)

	s.Observe(true, nil, 6000)
	last, _ = s.LastDetection()
	assert.Equal(t, int64(6000), last)
}

func TestResetClearsEverything(t *testing.T) {
	s := newDetectionState(3)
	s.Observe(true, Projection{{AngleDeg: 1}}, 1000)

	s.Reset()

	_, ok := s.LastDetection()
	assert.False(t, ok)

	snap := s.Snapshot()
	assert.Empty(t, snap.Projection)
	assert.False(t, snap.Confirmed)
}

func TestSnapshotSeqAdvancesPerScan(t *testing.T) {
	s := newDetectionState(2)
	assert.Equal(t, uint64(0), s.Snapshot().Seq)
	s.Observe(false, nil, 1)
	s.Observe(false, nil, 2)
	assert.Equal(t, uint64(2), s.Snapshot().Seq)
}

// TestSnapshotConsistencyUnderConcurrency checks that readers always observe
// a projection whose accompanying detection decision was computed in the
// same update, never a mixed old/new combination. With capacity 1 the
// confirmation equals the outcome of the most recent scan, and the
// projection encodes that outcome in its distance.
func TestSnapshotConsistencyUnderConcurrency(t *testing.T) {
	s := newDetectionState(1)

	const (
		detectingMM = 100
		quietMM     = 9999
		iterations  = 5000
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			detecting := i%2 == 0
			mm := float64(quietMM)
			if detecting {
				mm = detectingMM
			}
			s.Observe(detecting, Projection{{AngleDeg: 0, DistanceMM: mm}}, int64(i+1))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				snap := s.Snapshot()
				if len(snap.Projection) == 0 {
					continue
				}
				detecting := snap.Projection[0].DistanceMM == detectingMM
				if detecting != snap.Confirmed {
					t.Errorf("torn snapshot: projection says detecting=%v but confirmed=%v", detecting, snap.Confirmed)
					return
				}
			}
		}()
	}

	wg.Wait()
}
