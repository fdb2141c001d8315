package demod

import "sync"

// MagSqLevels are the channel power figures since the previous read.
type MagSqLevels struct {
	Avg   float64
	Peak  float64
	Count int
}

// magSqFloor is reported before any sample has been measured.
const magSqFloor = 1e-12

// MagSqStore accumulates |x|² on the feeding goroutine and hands out
// read-and-reset levels to pollers.
type MagSqStore struct {
	mu    sync.Mutex
	sum   float64
	peak  float64
	count int
	avg   float64
	last  float64
}

// NewMagSqStore returns a store reporting the floor level until fed.
func NewMagSqStore() *MagSqStore {
	return &MagSqStore{avg: magSqFloor, last: magSqFloor}
}

// Add accumulates the totals of one block.
func (m *MagSqStore) Add(sum, peak float64, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum += sum
	m.count += count
	if peak > m.peak {
		m.peak = peak
	}
}

// Levels returns the average and peak since the previous call and resets the
// accumulator. With nothing accumulated the previous levels are repeated and
// Count is 1.
func (m *MagSqStore) Levels() MagSqLevels {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.count
	if count > 0 {
		m.avg = m.sum / float64(count)
		m.last = m.peak
	} else {
		count = 1
	}
	m.sum, m.peak, m.count = 0, 0, 0
	return MagSqLevels{Avg: m.avg, Peak: m.last, Count: count}
}

// Reset goes back to the floor level.
func (m *MagSqStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum, m.peak, m.count = 0, 0, 0
	m.avg, m.last = magSqFloor, magSqFloor
}
