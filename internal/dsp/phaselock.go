package dsp

import "math"

// PilotRefs are the references generated by the pilot PLL for one sample.
type PilotRefs struct {
	Sin, Cos     float64 // pilot (19 kHz)
	Sin2, Cos2   float64 // stereo subcarrier (38 kHz)
	Sin3, Cos3   float64 // RDS subcarrier (57 kHz)
	PhaseError   float64
	PilotPhasorI float64
}

// PhaseLock is a type-2 phase-locked loop tracking a real pilot tone.
//
// The I/Q phase error runs through a two-pole lowpass, then a lead-lag loop
// filter whose output is integrated into frequency, and frequency into phase.
// Frequency is clamped to freq ± bandwidth.
type PhaseLock struct {
	minFreq, maxFreq float64 // rad/sample
	minSignal        float64
	lockDelay        int
	lockCount        int
	tolerance        float64

	phasorA1, phasorA2, phasorB0 float64
	loopB0, loopB1               float64

	freq, phase  float64
	nominal      float64
	i1, i2       float64
	q1, q2       float64
	loopX1       float64
	pilotLevel   float64
	levelSmooth  float64
	lastPhaseErr float64
}

// Pilot PLL defaults for broadcast FM.
const (
	PilotFrequency     = 19000.0
	pilotLoopBandwidth = 50.0
	pilotMinSignal     = 0.01
	pilotErrTolerance  = 0.2
)

// NewPilotPLL creates the standard 19 kHz pilot PLL at sampleRate.
func NewPilotPLL(sampleRate int) *PhaseLock {
	return NewPhaseLock(PilotFrequency/float64(sampleRate), pilotLoopBandwidth/float64(sampleRate), pilotMinSignal)
}

// NewPhaseLock creates a loop at normalized frequency freq (cycles/sample)
// with normalized loop bandwidth. minSignal is the pilot amplitude below
// which lock is never reported.
func NewPhaseLock(freq, bandwidth, minSignal float64) *PhaseLock {
	p := &PhaseLock{}
	p.Configure(freq, bandwidth, minSignal)
	return p
}

// Configure recomputes the loop coefficients and resets the loop state.
func (p *PhaseLock) Configure(freq, bandwidth, minSignal float64) {
	w := bandwidth * 2 * math.Pi
	p.minFreq = (freq - bandwidth) * 2 * math.Pi
	p.maxFreq = (freq + bandwidth) * 2 * math.Pi
	p.nominal = freq * 2 * math.Pi
	p.minSignal = minSignal
	p.tolerance = pilotErrTolerance
	p.lockDelay = int(20.0 / bandwidth)
	if bandwidth <= 0 {
		p.lockDelay = 1
	}

	p1 := math.Exp(-1.146 * w)
	p2 := math.Exp(-5.331 * w)
	p.phasorA1 = -p1 - p2
	p.phasorA2 = p1 * p2
	p.phasorB0 = 1 + p.phasorA1 + p.phasorA2

	q1 := math.Exp(-0.1153 * w)
	p.loopB0 = 0.62 * w
	p.loopB1 = -p.loopB0 * q1

	p.Reset()
}

// Reset returns the loop to its nominal frequency, unlocked.
func (p *PhaseLock) Reset() {
	p.freq = p.nominal
	p.phase = 0
	p.i1, p.i2, p.q1, p.q2 = 0, 0, 0, 0
	p.loopX1 = 0
	p.lockCount = 0
	p.pilotLevel = 0
	p.levelSmooth = 0
	p.lastPhaseErr = 0
}

// Process runs one input sample through the loop and returns the references
// derived from the phase used for this sample.
func (p *PhaseLock) Process(x float64) PilotRefs {
	s, c := math.Sincos(p.phase)
	refs := PilotRefs{
		Sin:  s,
		Cos:  c,
		Sin2: 2 * s * c,
		Cos2: 2*c*c - 1,
		Sin3: 3*s - 4*s*s*s,
		Cos3: 4*c*c*c - 3*c,
	}

	// Multiply locked tone with input.
	pi := s * x
	pq := c * x

	// Run IQ phase error through low-pass filter.
	pi = p.phasorB0*pi - p.phasorA1*p.i1 - p.phasorA2*p.i2
	pq = p.phasorB0*pq - p.phasorA1*p.q1 - p.phasorA2*p.q2
	p.i2, p.i1 = p.i1, pi
	p.q2, p.q1 = p.q1, pq

	// Convert I/Q ratio to estimate of phase error.
	var phaseErr float64
	switch {
	case pi > math.Abs(pq):
		// Within ±45 degrees of lock: linear approximation of arctan.
		phaseErr = pq / pi
	case pq > 0:
		phaseErr = 1
	default:
		phaseErr = -1
	}
	p.lastPhaseErr = phaseErr

	// Pilot amplitude is twice the lowpassed in-phase product.
	p.levelSmooth += 0.001 * (pi - p.levelSmooth)
	p.pilotLevel = 2 * p.levelSmooth

	// Run phase error through loop filter and update frequency estimate.
	p.freq += p.loopB0*phaseErr + p.loopB1*p.loopX1
	p.loopX1 = phaseErr
	p.freq = math.Max(p.minFreq, math.Min(p.maxFreq, p.freq))

	p.phase += p.freq
	if p.phase > 2*math.Pi {
		p.phase -= 2 * math.Pi
	}

	if math.Abs(phaseErr) < p.tolerance && p.pilotLevel > p.minSignal {
		if p.lockCount < p.lockDelay {
			p.lockCount++
		}
	} else {
		p.lockCount = 0
	}

	refs.PhaseError = phaseErr
	refs.PilotPhasorI = pi
	return refs
}

// Locked reports whether the phase error has stayed within tolerance, with
// enough pilot, for the lock delay.
func (p *PhaseLock) Locked() bool {
	return p.lockCount >= p.lockDelay
}

// PilotLevel returns the smoothed pilot amplitude.
func (p *PhaseLock) PilotLevel() float64 {
	return p.pilotLevel
}

// Frequency returns the tracked frequency in cycles per sample.
func (p *PhaseLock) Frequency() float64 {
	return p.freq / (2 * math.Pi)
}
