package demod

import "go-fm-demod/internal/dsp"

// Frontend shifts the channel to baseband and resamples it from the input
// rate to the channel rate.
type Frontend struct {
	nco       dsp.NCO
	resampler dsp.Resampler
	bypass    bool
	inRate    int
	outRate   int
	offset    float64
}

// NewFrontend creates a front end, see Configure.
func NewFrontend(inRate, outRate int, offsetHz, cutoffHz float64) *Frontend {
	f := &Frontend{}
	f.Configure(inRate, outRate, offsetHz, cutoffHz)
	return f
}

// Configure sets the rates, the channel offset and the resampler passband.
// Equal rates skip the resampler. The resampler state is cleared.
func (f *Frontend) Configure(inRate, outRate int, offsetHz, cutoffHz float64) {
	f.inRate, f.outRate, f.offset = inRate, outRate, offsetHz
	// The oscillator moves the channel from offsetHz down to zero.
	f.nco.SetFreq(-offsetHz, inRate)
	f.bypass = inRate == outRate
	if !f.bypass {
		f.resampler.Configure(float64(inRate), float64(outRate), cutoffHz)
	}
}

// SetOffset retunes the oscillator only.
func (f *Frontend) SetOffset(offsetHz float64) {
	f.offset = offsetHz
	f.nco.SetFreq(-offsetHz, f.inRate)
}

// Reset zeroes the oscillator phase and the resampler history.
func (f *Frontend) Reset() {
	f.nco.Reset()
	f.resampler.Reset()
}

// Process mixes and resamples block, appending channel samples to out.
func (f *Frontend) Process(block []complex64, out []complex64) []complex64 {
	mix := f.offset != 0
	for _, x := range block {
		if mix {
			x *= f.nco.NextIQ()
		}
		if f.bypass {
			out = append(out, x)
			continue
		}
		out = f.resampler.Process(x, out)
	}
	return out
}

// OutputRate returns the channel rate actually produced.
func (f *Frontend) OutputRate() int {
	if f.bypass {
		return f.outRate
	}
	return int(f.resampler.OutputRate() + 0.5)
}
