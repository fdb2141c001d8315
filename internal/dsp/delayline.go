package dsp

// DelayLine delays a sample stream by a fixed number of samples.
type DelayLine struct {
	buf []float64
	pos int
}

// NewDelayLine creates a line delaying by n samples (at least 1).
func NewDelayLine(n int) *DelayLine {
	l := &DelayLine{}
	l.Resize(n)
	return l
}

// Resize sets the delay and clears the line.
func (l *DelayLine) Resize(n int) {
	n = max(n, 1)
	if cap(l.buf) >= n {
		l.buf = l.buf[:n]
	} else {
		l.buf = make([]float64, n)
	}
	l.Reset()
}

// Reset fills the line with silence.
func (l *DelayLine) Reset() {
	clear(l.buf)
	l.pos = 0
}

// Process stores x and returns the sample stored Len calls earlier.
func (l *DelayLine) Process(x float64) float64 {
	y := l.buf[l.pos]
	l.buf[l.pos] = x
	l.pos++
	if l.pos == len(l.buf) {
		l.pos = 0
	}
	return y
}

// Len returns the delay in samples.
func (l *DelayLine) Len() int {
	return len(l.buf)
}
