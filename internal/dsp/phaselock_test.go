package dsp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

const pllTestRate = 240000

func pilotSignal(i int, freq, amplitude float64) float64 {
	t := float64(i) / pllTestRate
	pilot := amplitude * math.Cos(2*math.Pi*freq*t+0.3)
	mono := 0.5 * math.Sin(2*math.Pi*1000*t)
	return pilot + mono
}

func TestPhaseLock_LocksOnPilot(t *testing.T) {
	for _, freq := range []float64{19000, 19000 + 10, 19000 - 20} {
		pll := NewPilotPLL(pllTestRate)
		var refs PilotRefs
		var corr, norm float64
		for i := 0; i < pllTestRate; i++ {
			x := pilotSignal(i, freq, 0.1)
			refs = pll.Process(x)
			if i > pllTestRate/2 {
				p := math.Cos(2*math.Pi*freq*float64(i)/pllTestRate + 0.3)
				corr += refs.Sin * p
				norm += p * p
			}
		}
		assert.True(t, pll.Locked(), "pilot at %.0f Hz", freq)
		assert.InDelta(t, 0.1, pll.PilotLevel(), 0.02)
		assert.InDelta(t, freq/pllTestRate, pll.Frequency(), 1/float64(pllTestRate))
		// The sine reference follows the received pilot waveform.
		assert.Greater(t, corr/norm, 0.95)
	}
}

func TestPhaseLock_HarmonicReferences(t *testing.T) {
	pll := NewPilotPLL(pllTestRate)
	for i := 0; i < 1000; i++ {
		r := pll.Process(pilotSignal(i, 19000, 0.1))
		assert.InDelta(t, 1.0, r.Sin2*r.Sin2+r.Cos2*r.Cos2, 1e-9)
		assert.InDelta(t, 1.0, r.Sin3*r.Sin3+r.Cos3*r.Cos3, 1e-9)
		assert.InDelta(t, 2*r.Sin*r.Cos, r.Sin2, 1e-12)
	}
}

func TestPhaseLock_NoLockWithoutPilot(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	pll := NewPilotPLL(pllTestRate)
	for i := 0; i < pllTestRate; i++ {
		pll.Process(0.2 * rng.NormFloat64())
	}
	assert.False(t, pll.Locked())

	pll.Reset()
	for i := 0; i < pllTestRate; i++ {
		pll.Process(0)
	}
	assert.False(t, pll.Locked())
	assert.Zero(t, pll.PilotLevel())
}
