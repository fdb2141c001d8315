package nfm

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/dsp/fourier"

	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/dsp"
)

const (
	inputRate = 200000
	blockLen  = 4096
)

// fmSignal returns n samples of a unit carrier frequency modulated by the
// given tones (Hz) with their peak deviations (Hz).
func fmSignal(n int, tones, deviations []float64) []complex64 {
	out := make([]complex64, n)
	var phase float64
	for i := range out {
		t := float64(i) / inputRate
		var f float64
		for k, tone := range tones {
			f += deviations[k] * math.Cos(2*math.Pi*tone*t)
		}
		phase += 2 * math.Pi * f / inputRate
		out[i] = complex64(cmplx.Rect(1, phase))
	}
	return out
}

func feedAll(d *Demod, iq []complex64) {
	for len(iq) > 0 {
		n := min(blockLen, len(iq))
		d.Feed(iq[:n])
		iq = iq[n:]
	}
}

// drainLeft returns the left channel of everything in the audio FIFO.
func drainLeft(d *Demod) []float64 {
	fifo := d.Audio().FIFO()
	pcm := fifo.Read(fifo.Len())
	left := make([]float64, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		left = append(left, float64(pcm[i]))
	}
	return left
}

// peakFrequency returns the frequency of the strongest FFT bin of x at rate.
func peakFrequency(x []float64, rate float64) float64 {
	fft := fourier.NewFFT(len(x))
	coeffs := fft.Coefficients(nil, x)
	best, bestPow := 0, 0.0
	for i := 1; i < len(coeffs); i++ {
		p := real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i])
		if p > bestPow {
			best, bestPow = i, p
		}
	}
	return fft.Freq(best) * rate
}

// toneFit least-squares fits a·cos + b·sin at freq to x and returns the
// amplitude, the phase and the share of x's energy the fit leaves out.
func toneFit(x []float64, freq, rate float64) (amp, phase, residual float64) {
	var cc, ss, cs, xc, xs, xx float64
	for i, v := range x {
		s, c := math.Sincos(2 * math.Pi * freq * float64(i) / rate)
		cc += c * c
		ss += s * s
		cs += c * s
		xc += v * c
		xs += v * s
		xx += v * v
	}
	det := cc*ss - cs*cs
	a := (xc*ss - xs*cs) / det
	b := (xs*cc - xc*cs) / det
	var res float64
	for i, v := range x {
		s, c := math.Sincos(2 * math.Pi * freq * float64(i) / rate)
		e := v - a*c - b*s
		res += e * e
	}
	return math.Hypot(a, b), math.Atan2(-b, a), res / xx
}

func peakAbs(x []float64) float64 {
	var p float64
	for _, v := range x {
		p = math.Max(p, math.Abs(v))
	}
	return p
}

func TestNFM_EndToEndTone(t *testing.T) {
	d := New(inputRate, 2*demod.DefaultAudioSampleRate)
	s := DefaultSettings()
	s.Deemphasis = 50
	d.Configure(s, false)
	d.Start()

	feedAll(d, fmSignal(inputRate/2, []float64{1000}, []float64{5000}))

	st := d.Status()
	assert.Equal(t, dsp.SquelchOpen, st.Squelch)
	assert.True(t, st.SquelchOpen)
	assert.Equal(t, 48000, st.ChannelSampleRate)

	left := drainLeft(d)
	require.InDelta(t, 24000, len(left), 10)

	tail := left[len(left)-4800:]
	assert.InDelta(t, 1000, peakFrequency(tail, 48000), 10)

	// Full deviation comes out near full scale, less the deemphasis at 1 kHz.
	assert.InDelta(t, 0.95*math.MaxInt16, peakAbs(tail), 0.1*math.MaxInt16)

	// The audio is the modulating tone: one sinusoid with a steady phase.
	// 2400 samples are 50 whole cycles, so both halves share a time base.
	amp, _, residual := toneFit(tail, 1000, 48000)
	assert.InDelta(t, 0.95*math.MaxInt16, amp, 0.1*math.MaxInt16)
	assert.Less(t, residual, 0.05)
	_, early, _ := toneFit(tail[:2400], 1000, 48000)
	_, late, _ := toneFit(tail[2400:], 1000, 48000)
	assert.InDelta(t, 0, math.Remainder(early-late, 2*math.Pi), 0.02)

	levels := d.MagSqLevels()
	assert.InDelta(t, 1.0, levels.Avg, 0.05)
	assert.Greater(t, levels.Count, 20000)
}

func TestNFM_SquelchClosedOnWeakSignal(t *testing.T) {
	d := New(inputRate, 0)
	d.Start()

	iq := fmSignal(inputRate/4, []float64{1000}, []float64{5000})
	for i := range iq {
		iq[i] *= 0.01 // -40 dB, below the -30 dB threshold
	}
	feedAll(d, iq)

	st := d.Status()
	assert.Equal(t, dsp.SquelchClosed, st.Squelch)
	for _, v := range drainLeft(d) {
		require.Zero(t, v)
	}
}

func TestNFM_CTCSSGate(t *testing.T) {
	iq := fmSignal(inputRate, []float64{1000, 100}, []float64{3000, 500})

	for _, tc := range []struct {
		name    string
		index   int
		audible bool
	}{
		{"matching tone", 11, true},
		{"other tone", 5, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := New(inputRate, 2*demod.DefaultAudioSampleRate)
			s := DefaultSettings()
			s.CTCSSOn = true
			s.CTCSSIndex = tc.index
			d.Configure(s, false)
			d.Start()
			feedAll(d, iq)

			st := d.Status()
			require.Equal(t, 11, st.CTCSSIndex)
			assert.Equal(t, 100.0, st.CTCSSTone)

			left := drainLeft(d)
			var energy float64
			for _, v := range left[len(left)-4800:] {
				energy += v * v
			}
			if tc.audible {
				assert.Greater(t, energy, 0.0)
				assert.InDelta(t, 1000, peakFrequency(left[len(left)-4800:], 48000), 10)
			} else {
				assert.Zero(t, energy)
			}
		})
	}
}

func TestNFM_IdempotentConfigure(t *testing.T) {
	d := New(inputRate, 0)
	d.Feed(nil)
	base := d.Status().Rebuilds
	require.Equal(t, uint64(1), base)

	d.Configure(DefaultSettings(), false)
	d.Configure(DefaultSettings(), false)
	d.Feed(nil)
	assert.Equal(t, base, d.Status().Rebuilds)

	// Values that clamp to the current settings are also a no-op.
	s := DefaultSettings()
	s.CTCSSIndex = -5
	d.Configure(s, false)
	d.Feed(nil)
	assert.Equal(t, base, d.Status().Rebuilds)

	d.Configure(DefaultSettings(), true)
	d.Feed(nil)
	assert.Equal(t, base+1, d.Status().Rebuilds)

	s.AFBandwidth = 2500
	d.Configure(s, false)
	d.Feed(nil)
	assert.Equal(t, base+2, d.Status().Rebuilds)

	d.SetInputSampleRate(inputRate)
	d.Feed(nil)
	assert.Equal(t, base+2, d.Status().Rebuilds, "same rate is a no-op")
}

func TestNFM_ConfigureClamps(t *testing.T) {
	d := New(inputRate, 0)
	s := DefaultSettings()
	s.RFBandwidth = 1e6
	s.Squelch = 12
	s.CTCSSIndex = 99
	d.Configure(s, false)

	got := d.Settings()
	assert.Equal(t, MaxRFBandwidth, got.RFBandwidth)
	assert.Equal(t, 0.0, got.Squelch)
	assert.Equal(t, len(dsp.CTCSSTones)-1, got.CTCSSIndex)
}

func TestNFM_SerializeRoundTrip(t *testing.T) {
	d := New(inputRate, 0)
	s := DefaultSettings()
	s.Title = "Marine 16"
	s.InputFrequencyOffset = -12500
	s.CTCSSOn = true
	s.CTCSSIndex = 7
	d.Configure(s, false)
	blob := d.Serialize()

	other := New(inputRate, 0)
	require.NoError(t, other.Deserialize(blob))
	assert.Equal(t, d.Settings(), other.Settings())
}

func TestNFM_DeserializeCorruptFallsBackToDefaults(t *testing.T) {
	d := New(inputRate, 0)
	s := DefaultSettings()
	s.Title = "changed"
	d.Configure(s, false)

	err := d.Deserialize([]byte("\xde\xad\xbe\xef"))
	assert.ErrorIs(t, err, demod.ErrInvalidSettings)
	assert.Equal(t, DefaultSettings(), d.Settings())
}

func TestNFM_QueueOverflowAppliesInOrder(t *testing.T) {
	d := New(inputRate, 0)
	s := DefaultSettings()
	for i := 0; i < 3*demod.DefaultQueueLen; i++ {
		s.InputFrequencyOffset = int64(i)
		d.Configure(s, false)
	}
	assert.Equal(t, int64(3*demod.DefaultQueueLen-1), d.Settings().InputFrequencyOffset)
}

func TestNFM_StoppedIgnoresBlocks(t *testing.T) {
	d := New(inputRate, 0)
	d.Feed(fmSignal(blockLen, []float64{1000}, []float64{5000}))
	assert.Zero(t, d.Audio().FIFO().Len())
	assert.False(t, d.Status().Running)
	assert.Equal(t, 1e-12, d.MagSqLevels().Avg)
}

func TestNFM_HighPassToggleStartsClean(t *testing.T) {
	d := New(inputRate, 4*demod.DefaultAudioSampleRate)
	d.Start()
	feedAll(d, fmSignal(inputRate/4, []float64{1000}, []float64{5000}))

	s := DefaultSettings()
	s.HighPass = false
	d.Configure(s, false)
	feedAll(d, fmSignal(inputRate/4, nil, nil))
	drainLeft(d)

	// The bandpass sat idle holding the tone; switching back must not replay it.
	s.HighPass = true
	d.Configure(s, false)
	feedAll(d, fmSignal(inputRate/10, nil, nil))
	left := drainLeft(d)
	require.InDelta(t, 4800, len(left), 10)
	assert.Less(t, peakAbs(left), 0.01*math.MaxInt16)
	assert.True(t, d.Status().SquelchOpen)
}

func TestNFM_SquelchDelayKeepsOnset(t *testing.T) {
	const hold = 2400
	// 100 ms of nothing, then a tone burst.
	iq := append(make([]complex64, inputRate/10), fmSignal(inputRate/2, []float64{1000}, []float64{5000})...)

	run := func(holdOpen int) []float64 {
		d := New(inputRate, 2*demod.DefaultAudioSampleRate)
		s := DefaultSettings()
		s.SquelchHoldOpen = holdOpen
		d.Configure(s, false)
		d.Start()
		feedAll(d, iq)
		return drainLeft(d)
	}
	delayed, prompt := run(hold), run(1)
	require.Equal(t, len(prompt), len(delayed))

	nonZero := func(v float64) bool { return v != 0 }
	fd, fp := slices.IndexFunc(delayed, nonZero), slices.IndexFunc(prompt, nonZero)
	require.Positive(t, fp)
	assert.InDelta(t, 4900, fp, 300)

	// The long hold opens later but starts from the same audio.
	assert.Equal(t, hold-1, fd-fp)
	assert.Equal(t, prompt[fp:fp+len(delayed)-fd], delayed[fd:])
}

func TestNFM_AFSquelch(t *testing.T) {
	// A clean carrier 40 dB down: the power squelch stays shut.
	weak := fmSignal(inputRate/2, []float64{1000}, []float64{2500})
	for i := range weak {
		weak[i] *= 0.01
	}
	// Loud noise: the power squelch would open.
	rng := rand.New(rand.NewPCG(3, 5))
	noise := make([]complex64, inputRate/2)
	for i := range noise {
		noise[i] = complex(float32(rng.NormFloat64()), float32(rng.NormFloat64()))
	}

	for _, tc := range []struct {
		name string
		iq   []complex64
		af   bool
		open bool
	}{
		{"weak carrier, power squelch", weak, false, false},
		{"weak carrier, AF squelch", weak, true, true},
		{"noise, power squelch", noise, false, true},
		{"noise, AF squelch", noise, true, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := New(inputRate, 2*demod.DefaultAudioSampleRate)
			s := DefaultSettings()
			s.AFSquelch = tc.af
			d.Configure(s, false)
			d.Start()
			feedAll(d, tc.iq)

			assert.Equal(t, tc.open, d.Status().SquelchOpen)
			tail := drainLeft(d)
			tail = tail[len(tail)-4800:]
			if !tc.open {
				assert.Zero(t, peakAbs(tail))
				return
			}
			if tc.af {
				assert.InDelta(t, 1000, peakFrequency(tail, 48000), 10)
			}
		})
	}
}

func TestNFM_AFSquelchToggleResetsGate(t *testing.T) {
	d := New(inputRate, 0)
	d.Start()
	feedAll(d, fmSignal(inputRate/4, []float64{1000}, []float64{5000}))
	require.True(t, d.Status().SquelchOpen)

	s := DefaultSettings()
	s.AFSquelch = true
	d.Configure(s, false)
	d.Feed(nil)
	st := d.Status()
	assert.Equal(t, dsp.SquelchClosed, st.Squelch)
	assert.True(t, d.Settings().AFSquelch)
}
