package dsp

import "math"

// CTCSSTones is the standard table of sub-audible squelch tones in Hz.
var CTCSSTones = []float64{
	67.0, 71.9, 74.4, 77.0, 79.7, 82.5, 85.4, 88.5,
	91.5, 94.8, 97.4, 100.0, 103.5, 107.2, 110.9, 114.8,
	118.8, 123.0, 127.3, 131.8, 136.5, 141.3, 146.2, 151.4,
	156.7, 162.2, 167.9, 173.8, 179.9, 186.2, 192.8, 203.5,
}

// CTCSS detection defaults.
const (
	// CTCSSDecimation is the factor between the audio rate and the detector rate.
	CTCSSDecimation = 4
	// ctcssWindowSeconds is the length of one analysis window.
	ctcssWindowSeconds = 0.25
	// ctcssAboveAverage is how much stronger than the bin average the winning
	// tone must be.
	ctcssAboveAverage = 5.0
)

// CTCSSDetector runs one Goertzel bin per standard tone over a fixed window
// and reports at most one detected tone per window.
type CTCSSDetector struct {
	coef      []float64
	u0, u1    []float64
	windowLen int
	count     int
	detected  int
}

// NewCTCSSDetector creates a detector for input at sampleRate (the already
// decimated detector rate).
func NewCTCSSDetector(sampleRate int) *CTCSSDetector {
	d := &CTCSSDetector{}
	d.SetSampleRate(sampleRate)
	return d
}

// SetSampleRate recomputes the bin coefficients and restarts the window.
func (d *CTCSSDetector) SetSampleRate(sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = 48000 / CTCSSDecimation
	}
	n := len(CTCSSTones)
	d.coef = make([]float64, n)
	d.u0 = make([]float64, n)
	d.u1 = make([]float64, n)
	for i, f := range CTCSSTones {
		d.coef[i] = 2 * math.Cos(2*math.Pi*f/float64(sampleRate))
	}
	d.windowLen = max(int(ctcssWindowSeconds*float64(sampleRate)), 1)
	d.Reset()
}

// Reset clears the accumulators and the last result.
func (d *CTCSSDetector) Reset() {
	clear(d.u0)
	clear(d.u1)
	d.count = 0
	d.detected = -1
}

// Analyze feeds one sample. It returns true when a window was just evaluated;
// Detected then holds the result of that window.
func (d *CTCSSDetector) Analyze(x float64) bool {
	for i, c := range d.coef {
		t := d.u0[i]
		d.u0[i] = x + c*d.u0[i] - d.u1[i]
		d.u1[i] = t
	}
	d.count++
	if d.count < d.windowLen {
		return false
	}
	d.evaluate()
	clear(d.u0)
	clear(d.u1)
	d.count = 0
	return true
}

func (d *CTCSSDetector) evaluate() {
	var sum, peak float64
	peakIdx := -1
	for i, c := range d.coef {
		u0, u1 := d.u0[i], d.u1[i]
		p := u0*u0 + u1*u1 - c*u0*u1
		sum += p
		if p > peak {
			peak = p
			peakIdx = i
		}
	}
	avg := sum / float64(len(d.coef))
	if peakIdx >= 0 && avg > 0 && peak > ctcssAboveAverage*avg {
		d.detected = peakIdx
	} else {
		d.detected = -1
	}
}

// Detected returns the index into CTCSSTones of the tone found in the last
// window, or -1.
func (d *CTCSSDetector) Detected() int {
	return d.detected
}
