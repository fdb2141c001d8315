package rds

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rdsTestRate = 240000

// modulate differentially encodes bits and returns the biphase symbols on a
// 57 kHz carrier with the given phase, at rdsTestRate.
func modulate(bits []bool, amplitude, carrierPhase float64) []float64 {
	samplesPerBit := rdsTestRate / BitRate
	n := int(float64(len(bits)) * samplesPerBit)
	out := make([]float64, n)
	prev := false
	symbols := make([]float64, len(bits))
	for i, b := range bits {
		prev = prev != b
		if prev {
			symbols[i] = 1
		} else {
			symbols[i] = -1
		}
	}
	for i := range out {
		pos := float64(i) / samplesPerBit
		k := int(pos)
		s := symbols[k]
		if pos-float64(k) >= 0.5 {
			s = -s
		}
		t := float64(i) / rdsTestRate
		out[i] = amplitude * s * math.Sin(2*math.Pi*SubcarrierFrequency*t+carrierPhase)
	}
	return out
}

func TestReceiver_DecodesProgramService(t *testing.T) {
	var groups [][4]uint16
	for i := 0; i < 12; i++ {
		for _, g := range psGroups("TESTFM 1", [4]uint16{}) {
			groups = append(groups, g.Blocks)
		}
	}

	for _, tc := range []struct {
		name  string
		phase float64
	}{
		{"in phase", 0},
		{"quadrature", math.Pi / 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mpx := modulate(encodeGroups(groups...), 0.05, tc.phase)
			r := NewReceiver(rdsTestRate, false)
			var got []Group
			r.OnGroup = func(g Group) { got = append(got, g) }

			for i, x := range mpx {
				ph := 2 * math.Pi * SubcarrierFrequency * float64(i) / rdsTestRate
				r.Process(x, math.Sin(ph), math.Cos(ph))
			}

			st := r.Status()
			require.True(t, st.Synced)
			assert.GreaterOrEqual(t, len(got), 24)
			assert.Equal(t, "TESTFM 1", st.Station.PS)
			assert.True(t, st.Station.PSComplete)
			assert.Equal(t, uint16(testPI), st.Station.PI)
			assert.Greater(t, st.Quality, 0.9)
			assert.Greater(t, st.Demod.Qua, 50.0)
			assert.Equal(t, uint64(len(got)), st.Groups)
		})
	}
}

func TestReceiver_NoiseDoesNotSync(t *testing.T) {
	r := NewReceiver(rdsTestRate, false)
	for i := 0; i < rdsTestRate; i++ {
		r.Process(0, 0, 1)
	}
	st := r.Status()
	assert.False(t, st.Synced)
	assert.Zero(t, st.Groups)
}
