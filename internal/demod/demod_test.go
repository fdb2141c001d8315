package demod

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fm-demod/internal/dsp"
)

func TestRequiredBandwidth(t *testing.T) {
	assert.Equal(t, 48000, RequiredBandwidth(12500))
	assert.Equal(t, 48000, RequiredBandwidth(48000))
	assert.Equal(t, 120000, RequiredBandwidth(80000))
	assert.Equal(t, 375000, RequiredBandwidth(250000))
}

func TestMagSqStore_ReadAndReset(t *testing.T) {
	m := NewMagSqStore()

	l := m.Levels()
	assert.Equal(t, 1e-12, l.Avg)
	assert.Equal(t, 1e-12, l.Peak)
	assert.Equal(t, 1, l.Count)

	m.Add(3, 2, 4)
	m.Add(1, 0.5, 4)
	l = m.Levels()
	assert.InDelta(t, 0.5, l.Avg, 1e-12)
	assert.Equal(t, 2.0, l.Peak)
	assert.Equal(t, 8, l.Count)

	// Nothing new: the previous levels are repeated.
	l = m.Levels()
	assert.InDelta(t, 0.5, l.Avg, 1e-12)
	assert.Equal(t, 2.0, l.Peak)
	assert.Equal(t, 1, l.Count)

	m.Reset()
	assert.Equal(t, 1e-12, m.Levels().Avg)
}

func TestStatusStore(t *testing.T) {
	var s StatusStore
	assert.Equal(t, Status{}, s.Load())

	s.Store(Status{Mode: "nfm", Rebuilds: 1})
	old := s.Swap(Status{Mode: "nfm", Rebuilds: 2})
	assert.Equal(t, uint64(1), old.Rebuilds)
	assert.Equal(t, uint64(2), s.Load().Rebuilds)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s.Store(Status{Rebuilds: uint64(i)})
				_ = s.Load()
			}
		}(i)
	}
	wg.Wait()
}

func TestQueue_DrainInOrder(t *testing.T) {
	q := NewQueue(3)
	require.True(t, q.Post(MsgInputSampleRate{Rate: 1}))
	require.True(t, q.Post(MsgAudioSampleRate{Rate: 2}))
	require.True(t, q.Post(MsgConfigure[int]{Settings: 3, Force: true}))
	assert.False(t, q.Post(MsgInputSampleRate{Rate: 4}), "full queue rejects")
	assert.Equal(t, 3, q.Len())

	var got []any
	q.Drain(func(m any) { got = append(got, m) })
	assert.Equal(t, []any{
		MsgInputSampleRate{Rate: 1},
		MsgAudioSampleRate{Rate: 2},
		MsgConfigure[int]{Settings: 3, Force: true},
	}, got)
	assert.Zero(t, q.Len())
}

func TestFrontend_ShiftsOffsetToBaseband(t *testing.T) {
	const rate = 200000
	const offset = 25000.0
	f := NewFrontend(rate, rate/4, offset, 10000)
	assert.Equal(t, rate/4, f.OutputRate())

	nco := dsp.NewNCO(offset, rate)
	block := make([]complex64, rate/10)
	for i := range block {
		block[i] = nco.NextIQ()
	}
	out := f.Process(block, nil)
	assert.InDelta(t, len(block)/4, len(out), 1)

	// After the filter settles the tone sits at DC with unit magnitude.
	for _, y := range out[len(out)/2:] {
		assert.InDelta(t, 1.0, math.Hypot(float64(real(y)), float64(imag(y))), 0.02)
	}
	last := out[len(out)-1]
	prev := out[len(out)-2]
	dphi := math.Atan2(float64(imag(last*complex(real(prev), -imag(prev)))), float64(real(last*complex(real(prev), -imag(prev)))))
	assert.InDelta(t, 0, dphi, 1e-3)
}

func TestFrontend_Bypass(t *testing.T) {
	f := NewFrontend(48000, 48000, 0, 0)
	in := []complex64{1, 2i, 3}
	assert.Equal(t, in, f.Process(in, nil))
}

func TestAudioStage_ResampleAndConvert(t *testing.T) {
	a := NewAudioStage(8192)
	a.Configure(96000, 48000, 15000)
	for i := 0; i < 9600; i++ {
		a.Push(0.5, -0.25)
	}
	var tapped int
	a.SetTap(func(pcm []int16) { tapped += len(pcm) })
	require.Zero(t, a.Flush())

	n := a.FIFO().Len()
	assert.InDelta(t, 2*4800, n, 2)
	assert.Equal(t, n, tapped)

	frames := a.FIFO().Read(n)
	// Past the filter transient the DC levels come through.
	l, r := frames[n-2], frames[n-1]
	assert.InDelta(t, 0.5*math.MaxInt16, float64(l), 200)
	assert.InDelta(t, -0.25*math.MaxInt16, float64(r), 200)
}

func TestAudioStage_ClipMuteAndDrop(t *testing.T) {
	a := NewAudioStage(8)
	a.SetVolume(2)
	a.Push(0.9, -0.9)
	a.Push(0.1, 0)
	require.Zero(t, a.Flush())
	assert.Equal(t, []int16{math.MaxInt16, math.MinInt16, 6553, 0}, a.FIFO().Read(4))
	assert.Equal(t, uint64(2), a.Clipped())

	a.SetMute(true)
	for i := 0; i < 10; i++ {
		a.PushMono(0.5)
	}
	assert.Equal(t, 2, a.Flush())
	assert.Equal(t, uint64(2), a.Dropped())
	for _, s := range a.FIFO().Read(16) {
		assert.Zero(t, s)
	}
}
