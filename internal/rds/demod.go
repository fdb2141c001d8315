package rds

import (
	"math"

	"go-fm-demod/internal/dsp"
)

// Subcarrier and symbol clock constants.
const (
	SubcarrierFrequency = 57000.0
	BitRate             = SubcarrierFrequency / 48 // 1187.5 bit/s

	basebandCutoff = 2400.0
	// clockGain scales the clock phase correction applied at each baseband
	// zero crossing.
	clockGain = 0.005
	// frameWindow is the number of half symbols over which the biphase
	// reading frame is evaluated.
	frameWindow = 800
	// branchSmoothing is the smoothing factor of the I/Q branch energies.
	branchSmoothing = 1e-4
)

// DemodReport holds the clock diagnostics of the demodulator.
type DemodReport struct {
	// Qua is the reading frame confidence in percent.
	Qua float64
	// Fclk is the last clock phase correction in radians.
	Fclk float64
	// Acc is the last integrate-and-dump value.
	Acc float64
}

// Demod turns the RDS subcarrier into bits.
//
// The multiplex is mixed with the in-phase and quadrature 57 kHz references
// from the pilot PLL and low-passed; the stronger branch is kept since the
// subcarrier may be transmitted in either phase. A 1187.5 Hz clock, pulled
// onto the baseband zero crossings, drives an integrate-and-dump over half
// symbols. Pairs of half symbols are combined into biphase symbols in the
// reading frame with fewer in-pair sign changes, and symbols are differentially
// decoded into bits.
type Demod struct {
	sampleRate float64

	lpI1, lpI2 dsp.BiQuad
	lpQ1, lpQ2 dsp.BiQuad
	energyI    float64
	energyQ    float64

	clockBase   float64
	clockStep   float64
	clockOffset float64
	prevBB      float64
	loClock     float64
	prevLoClock float64
	acc         float64

	prevAcc      float64
	counter      int
	readingFrame int
	totErrs      [2]int
	dbit         bool

	report DemodReport
}

// NewDemod creates a demodulator for a multiplex sampled at sampleRate.
func NewDemod(sampleRate int) *Demod {
	d := &Demod{}
	d.SetSampleRate(sampleRate)
	return d
}

// SetSampleRate redesigns the baseband filters and resets the demodulator.
func (d *Demod) SetSampleRate(sampleRate int) {
	d.sampleRate = float64(sampleRate)
	const q = 0.7071
	for _, f := range []*dsp.BiQuad{&d.lpI1, &d.lpI2, &d.lpQ1, &d.lpQ2} {
		f.Configure(basebandCutoff, d.sampleRate, q)
	}
	d.clockStep = 2 * math.Pi * BitRate / d.sampleRate
	d.Reset()
}

// Reset clears filter, clock and frame state.
func (d *Demod) Reset() {
	d.lpI1.Reset()
	d.lpI2.Reset()
	d.lpQ1.Reset()
	d.lpQ2.Reset()
	d.energyI, d.energyQ = 0, 0
	d.clockBase, d.clockOffset = 0, 0
	d.prevBB, d.loClock, d.prevLoClock, d.acc = 0, 0, 0, 0
	d.prevAcc = 0
	d.counter = 0
	d.readingFrame = 0
	d.totErrs = [2]int{}
	d.dbit = false
	d.report = DemodReport{}
}

// Report returns the clock diagnostics.
func (d *Demod) Report() DemodReport {
	return d.report
}

// Process takes one multiplex sample and the pilot PLL 57 kHz references. It
// returns a bit and true when a bit was decoded.
func (d *Demod) Process(x, sin3, cos3 float64) (bit bool, ok bool) {
	bi := d.lpI2.Filter(d.lpI1.Filter(2 * x * sin3))
	bq := d.lpQ2.Filter(d.lpQ1.Filter(2 * x * cos3))
	d.energyI += branchSmoothing * (bi*bi - d.energyI)
	d.energyQ += branchSmoothing * (bq*bq - d.energyQ)
	bb := bi
	if d.energyQ > d.energyI {
		bb = bq
	}

	// 1187.5 Hz clock
	clockPhi := d.clockBase + d.clockOffset
	d.clockBase += d.clockStep
	if d.clockBase >= 2*math.Pi {
		d.clockBase -= 2 * math.Pi
	}
	if wrap(clockPhi, 2*math.Pi) < math.Pi {
		d.loClock = 1
	} else {
		d.loClock = -1
	}

	// Clock phase recovery: zero crossings belong at multiples of π.
	if sign(d.prevBB) != sign(bb) {
		dPhi := wrap(clockPhi, math.Pi)
		if dPhi >= math.Pi/2 {
			dPhi -= math.Pi
		}
		d.clockOffset -= clockGain * dPhi
		d.report.Fclk = dPhi
	}

	// Integrate and dump over half symbols.
	d.acc += bb * d.loClock
	if sign(d.loClock) != sign(d.prevLoClock) {
		bit, ok = d.biphase(d.acc)
		d.acc = 0
	}

	d.prevLoClock = d.loClock
	d.prevBB = bb
	return bit, ok
}

func (d *Demod) biphase(acc float64) (bit bool, ok bool) {
	if sign(acc) != sign(d.prevAcc) {
		d.totErrs[d.counter%2]++
	}

	if d.counter%2 == d.readingFrame {
		b := acc+d.prevAcc > 0
		bit = b != d.dbit
		d.dbit = b
		ok = true
	}

	if d.counter == 0 {
		e0, e1 := d.totErrs[0], d.totErrs[1]
		if d.totErrs[1-d.readingFrame] < d.totErrs[d.readingFrame] {
			d.readingFrame = 1 - d.readingFrame
		}
		if e0+e1 > 0 {
			d.report.Qua = 100 * math.Abs(float64(e0-e1)) / float64(e0+e1)
		}
		d.totErrs = [2]int{}
	}
	d.report.Acc = acc

	d.prevAcc = acc
	d.counter = (d.counter + 1) % frameWindow
	return bit, ok
}

func sign(x float64) int {
	if x >= 0 {
		return 1
	}
	return -1
}

// wrap returns x modulo m in [0, m).
func wrap(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}
