package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampler_OutputCount(t *testing.T) {
	tests := []struct {
		name    string
		inRate  float64
		outRate float64
		n       int
	}{
		{"200k to 48k", 200000, 48000, 20000},
		{"48k to 44.1k", 48000, 44100, 9600},
		{"integer decimation", 240000, 48000, 12345},
		{"24k to 48k", 24000, 48000, 5000},
		{"44.1k to 48k", 44100, 48000, 4410},
		{"12k to 44.1k", 12000, 44100, 1201},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResampler(tt.inRate, tt.outRate, 0)
			var out []complex64
			produced := 0
			for i := 0; i < tt.n; i++ {
				out = r.Process(complex(1, 0), out[:0])
				produced += len(out)
			}
			expected := float64(tt.n) / r.Ratio()
			assert.LessOrEqual(t, math.Abs(float64(produced)-expected), 1.0,
				"produced %d, expected %.2f", produced, expected)
		})
	}
}

func TestResampler_DCGain(t *testing.T) {
	for _, rates := range [][2]float64{{200000, 48000}, {24000, 48000}} {
		r := NewResampler(rates[0], rates[1], 0)
		var out []complex64
		for i := 0; i < 4000; i++ {
			out = r.Process(complex(1, -0.5), out)
		}
		require.NotEmpty(t, out)
		last := out[len(out)-1]
		assert.InDelta(t, 1.0, real(last), 0.01, "rates %v", rates)
		assert.InDelta(t, -0.5, imag(last), 0.01, "rates %v", rates)
	}
}

func TestResampler_ConfigureResetsDistance(t *testing.T) {
	r := NewResampler(200000, 48000, 0)
	for i := 0; i < 7; i++ {
		r.Process(1, nil)
	}
	assert.NotZero(t, r.Distance())

	r.Configure(250000, 48000, 0)
	assert.Zero(t, r.Distance())
	assert.InDelta(t, 250000.0/48000.0, r.Ratio(), 1e-12)
}

func TestResampler_ClampsDegenerateRatio(t *testing.T) {
	r := NewResampler(10e6, 1000, 0)
	assert.Equal(t, maxResampleRatio, r.Ratio())
	assert.InDelta(t, 10e6/maxResampleRatio, r.OutputRate(), 1e-6)

	r.Configure(1000, 10e6, 0)
	assert.Equal(t, minResampleRatio, r.Ratio())
}

func TestInterpolator_BranchesHaveUnityGain(t *testing.T) {
	ip := NewInterpolator(DefaultPhaseSteps, DefaultTapsPerPhase, 48000, 20000)
	for p, branch := range ip.bank {
		var sum float64
		for _, c := range branch {
			sum += c
		}
		assert.InDelta(t, 1.0, sum, 0.01, "branch %d", p)
	}
}
