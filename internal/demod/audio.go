package demod

import (
	"math"

	"go-fm-demod/internal/dsp"
	"go-fm-demod/internal/ringbuffer"
)

// AudioChannels is the number of interleaved samples per audio frame.
const AudioChannels = 2

// DefaultAudioSampleRate is the audio device rate used until told otherwise.
const DefaultAudioSampleRate = 48000

// AudioStage collects (L, R) frames at the demodulator rate, resamples them
// to the audio rate, converts to int16 and writes them to a drop-oldest FIFO.
//
// The pair travels through the resampler packed as complex(L, R).
type AudioStage struct {
	fifo      *ringbuffer.RingBuffer
	resampler dsp.Resampler
	bypass    bool
	inRate    int
	outRate   int
	volume    float64
	mute      bool

	frames  []complex64
	pcm     []int16
	clipped uint64
	tap     func(pcm []int16)
}

// NewAudioStage creates a stage whose FIFO holds fifoFrames stereo frames.
func NewAudioStage(fifoFrames int) *AudioStage {
	a := &AudioStage{
		fifo:   ringbuffer.NewAligned(fifoFrames*AudioChannels+1, AudioChannels),
		volume: 1,
	}
	a.Configure(DefaultAudioSampleRate, DefaultAudioSampleRate, 0)
	return a
}

// Configure sets the demodulator and audio rates. cutoffHz bounds the audio
// passband; zero picks a default from the rates.
func (a *AudioStage) Configure(inRate, outRate int, cutoffHz float64) {
	a.inRate, a.outRate = inRate, outRate
	a.bypass = inRate == outRate
	if !a.bypass {
		a.resampler.Configure(float64(inRate), float64(outRate), cutoffHz)
	}
	a.frames = a.frames[:0]
}

// SetVolume sets the linear output gain.
func (a *AudioStage) SetVolume(v float64) {
	a.volume = v
}

// SetMute silences the output while keeping the FIFO fed.
func (a *AudioStage) SetMute(mute bool) {
	a.mute = mute
}

// SetTap registers fn to receive every flushed block of interleaved PCM.
// fn runs on the feeding goroutine and must not block or retain pcm.
func (a *AudioStage) SetTap(fn func(pcm []int16)) {
	a.tap = fn
}

// Reset clears the resampler and pending frames. The FIFO is left alone.
func (a *AudioStage) Reset() {
	a.resampler.Reset()
	a.frames = a.frames[:0]
}

// Push adds one frame at the demodulator rate.
func (a *AudioStage) Push(l, r float64) {
	x := complex(float32(l), float32(r))
	if a.bypass {
		a.frames = append(a.frames, x)
		return
	}
	a.frames = a.resampler.Process(x, a.frames)
}

// PushMono adds one frame carrying x on both channels.
func (a *AudioStage) PushMono(x float64) {
	a.Push(x, x)
}

// Flush converts the pending frames and writes them to the FIFO. It returns
// the number of frames the FIFO discarded to make room.
func (a *AudioStage) Flush() int {
	if len(a.frames) == 0 {
		return 0
	}
	a.pcm = a.pcm[:0]
	gain := a.volume * math.MaxInt16
	if a.mute {
		gain = 0
	}
	for _, f := range a.frames {
		a.pcm = append(a.pcm, a.toPCM(float64(real(f))*gain), a.toPCM(float64(imag(f))*gain))
	}
	a.frames = a.frames[:0]
	if a.tap != nil {
		a.tap(a.pcm)
	}
	dropped, err := a.fifo.Overwrite(a.pcm)
	if err != nil {
		return 0
	}
	return dropped / AudioChannels
}

func (a *AudioStage) toPCM(v float64) int16 {
	if v > math.MaxInt16 {
		a.clipped++
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		a.clipped++
		return math.MinInt16
	}
	return int16(v)
}

// FIFO returns the buffer of interleaved stereo int16 frames.
func (a *AudioStage) FIFO() *ringbuffer.RingBuffer {
	return a.fifo
}

// Clipped returns the number of samples clipped to the int16 range.
func (a *AudioStage) Clipped() uint64 {
	return a.clipped
}

// Dropped returns the number of frames discarded by the FIFO.
func (a *AudioStage) Dropped() uint64 {
	return a.fifo.Dropped() / AudioChannels
}

// OutputRate returns the audio rate.
func (a *AudioStage) OutputRate() int {
	return a.outRate
}
