package dsp

// MovingAverage is a boxcar average over the last n values.
type MovingAverage struct {
	buf  []float64
	sum  float64
	pos  int
	fill int
}

// NewMovingAverage creates an average over n values (at least 1).
func NewMovingAverage(n int) *MovingAverage {
	if n < 1 {
		n = 1
	}
	return &MovingAverage{buf: make([]float64, n)}
}

// Feed adds a value and returns the current average.
func (m *MovingAverage) Feed(x float64) float64 {
	m.sum += x - m.buf[m.pos]
	m.buf[m.pos] = x
	m.pos++
	if m.pos == len(m.buf) {
		m.pos = 0
	}
	if m.fill < len(m.buf) {
		m.fill++
	}
	return m.Value()
}

// Value returns the average of the values seen so far.
func (m *MovingAverage) Value() float64 {
	if m.fill == 0 {
		return 0
	}
	return m.sum / float64(m.fill)
}

// Reset empties the window.
func (m *MovingAverage) Reset() {
	clear(m.buf)
	m.sum = 0
	m.pos = 0
	m.fill = 0
}
