// Package wfm is the wideband FM channel demodulator: an FFT channel filter,
// a discriminator, squelch and deemphasis, without stereo or RDS.
package wfm

import (
	"log"
	"math"
	"sync"

	"github.com/google/uuid"

	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/dsp"
)

const (
	audioTaps      = 127
	squelchAverage = 16
)

// Demod is a wideband FM demodulator running at RequiredBandwidth(rf).
type Demod struct {
	id     uuid.UUID
	mu     sync.Mutex
	queue  *demod.Queue
	status demod.StatusStore
	levels *demod.MagSqStore

	running     bool
	rebuilds    uint64
	settings    Settings
	inputRate   int
	channelRate int
	audioRate   int

	front    *demod.Frontend
	rfFilter *dsp.FFTFilter
	discri   *dsp.Discriminator
	lowpass  *dsp.FIRFilter
	average  *dsp.MovingAverage
	squelch  *dsp.Squelch
	deemph   *dsp.Deemphasis
	audio    *demod.AudioStage

	channel []complex64
}

var _ demod.Demodulator = (*Demod)(nil)

// New creates a stopped demodulator for IQ at inputRate with default
// settings. fifoFrames sizes the audio FIFO; zero picks one second.
func New(inputRate, fifoFrames int) *Demod {
	if fifoFrames <= 0 {
		fifoFrames = demod.DefaultAudioSampleRate
	}
	d := &Demod{
		id:        uuid.New(),
		queue:     demod.NewQueue(demod.DefaultQueueLen),
		levels:    demod.NewMagSqStore(),
		inputRate: inputRate,
		audioRate: demod.DefaultAudioSampleRate,
		front:     &demod.Frontend{},
		rfFilter:  dsp.NewFFTFilter(dsp.DefaultFFTFilterLen, -0.25, 0.25),
		discri:    dsp.NewDiscriminator(),
		average:   dsp.NewMovingAverage(squelchAverage),
		squelch:   dsp.NewSquelch(0, 1, 1),
		deemph:    &dsp.Deemphasis{},
		audio:     demod.NewAudioStage(fifoFrames),
	}
	d.applySettings(DefaultSettings(), true)
	d.publish()
	return d
}

// ID identifies the channel.
func (d *Demod) ID() uuid.UUID {
	return d.id
}

// Audio returns the audio output stage.
func (d *Demod) Audio() *demod.AudioStage {
	return d.audio
}

// Configure queues new settings.
func (d *Demod) Configure(s Settings, force bool) {
	d.post(demod.MsgConfigure[Settings]{Settings: s, Force: force})
}

// SetInputSampleRate queues a change of the IQ rate.
func (d *Demod) SetInputSampleRate(rate int) {
	d.post(demod.MsgInputSampleRate{Rate: rate})
}

// SetAudioSampleRate queues a change of the audio rate.
func (d *Demod) SetAudioSampleRate(rate int) {
	d.post(demod.MsgAudioSampleRate{Rate: rate})
}

func (d *Demod) post(msg any) {
	if d.queue.Post(msg) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.Drain(d.handle)
	d.handle(msg)
	d.publish()
}

func (d *Demod) handle(msg any) {
	switch m := msg.(type) {
	case demod.MsgConfigure[Settings]:
		d.applySettings(m.Settings, m.Force)
	case demod.MsgInputSampleRate:
		if m.Rate > 0 && m.Rate != d.inputRate {
			d.inputRate = m.Rate
			d.buildFrontend()
			d.rebuilds++
			log.Printf("[WFM] input sample rate %d", m.Rate)
		}
	case demod.MsgAudioSampleRate:
		if m.Rate > 0 && m.Rate != d.audioRate {
			d.audioRate = m.Rate
			d.buildAudio()
			d.rebuilds++
			log.Printf("[WFM] audio sample rate %d", m.Rate)
		}
	default:
		log.Printf("[WFM] unknown message %T", msg)
	}
}

func (d *Demod) applySettings(s Settings, force bool) {
	s.Clamp()
	old := d.settings
	if !force && s == old {
		return
	}
	d.settings = s

	if force || s.RFBandwidth != old.RFBandwidth {
		// The channel rate follows the RF bandwidth, so everything after the
		// front end is rebuilt too.
		d.buildAll()
	} else {
		if s.InputFrequencyOffset != old.InputFrequencyOffset {
			d.front.SetOffset(float64(s.InputFrequencyOffset))
		}
		if s.AFBandwidth != old.AFBandwidth {
			d.buildAudio()
		}
		if s.Squelch != old.Squelch || s.SquelchHoldOpen != old.SquelchHoldOpen || s.SquelchHoldClose != old.SquelchHoldClose {
			d.squelch.Configure(s.SquelchLevel(), s.SquelchHoldOpen, s.SquelchHoldClose)
		}
		if s.Deemphasis != old.Deemphasis {
			d.deemph.SetRC(s.DeemphasisTau(), d.channelRate)
		}
	}
	d.audio.SetVolume(s.Volume)
	d.audio.SetMute(s.AudioMute)
	d.rebuilds++

	log.Printf("[WFM] settings: offset=%d rf=%.0f af=%.0f squelch=%.1fdB deemph=%.0fus force=%v",
		s.InputFrequencyOffset, s.RFBandwidth, s.AFBandwidth, s.Squelch, s.Deemphasis, force)
}

func (d *Demod) buildAll() {
	s := d.settings
	d.channelRate = demod.RequiredBandwidth(int(s.RFBandwidth))
	d.buildFrontend()

	half := s.RFBandwidth / 2 / float64(d.channelRate)
	d.rfFilter.Create(-half, half)
	d.discri.SetScaling(float64(d.channelRate), s.RFBandwidth/2)
	d.discri.Reset()
	d.average.Reset()
	d.squelch.Configure(s.SquelchLevel(), s.SquelchHoldOpen, s.SquelchHoldClose)
	d.squelch.Reset()
	d.deemph.SetRC(s.DeemphasisTau(), d.channelRate)
	d.buildAudio()
}

func (d *Demod) buildFrontend() {
	s := d.settings
	d.front.Configure(d.inputRate, d.channelRate, float64(s.InputFrequencyOffset), s.RFBandwidth/2)
}

func (d *Demod) buildAudio() {
	af := d.settings.AFBandwidth
	d.lowpass = dsp.NewLowpass(audioTaps, float64(d.channelRate), af)
	d.audio.Configure(d.channelRate, d.audioRate, af)
}

// Start resets the signal path and begins accepting blocks.
func (d *Demod) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.Drain(d.handle)
	d.front.Reset()
	d.rfFilter.Reset()
	d.discri.Reset()
	d.lowpass.Reset()
	d.average.Reset()
	d.squelch.Reset()
	d.audio.Reset()
	d.levels.Reset()
	d.running = true
	d.publish()
	log.Printf("[WFM] %s started: input %d S/s, channel %d S/s, audio %d S/s", d.id, d.inputRate, d.channelRate, d.audioRate)
}

// Stop makes Feed ignore blocks until the next Start.
func (d *Demod) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.publish()
	log.Printf("[WFM] %s stopped", d.id)
}

// Feed demodulates one block of IQ samples. The block is not retained.
func (d *Demod) Feed(block []complex64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.Drain(d.handle)
	if !d.running {
		d.publish()
		return
	}

	d.channel = d.front.Process(block, d.channel[:0])
	var sum, peak float64
	var count int
	for _, x := range d.channel {
		filtered := d.rfFilter.Run(complex128(x))
		for _, y := range filtered {
			magsq := real(y)*real(y) + imag(y)*imag(y)
			sum += magsq
			peak = math.Max(peak, magsq)
			count++
			open := d.squelch.Update(d.average.Feed(magsq))

			audio := d.deemph.Filter(d.lowpass.Run(d.discri.Run(complex64(y))))
			if !open {
				audio = 0
			}
			d.audio.PushMono(audio)
		}
	}
	d.levels.Add(sum, peak, count)
	d.audio.Flush()
	d.publish()
}

func (d *Demod) publish() {
	d.status.Store(demod.Status{
		Channel:           d.id,
		Mode:              Mode,
		Running:           d.running,
		InputSampleRate:   d.inputRate,
		ChannelSampleRate: d.channelRate,
		AudioSampleRate:   d.audioRate,
		Squelch:           d.squelch.State(),
		SquelchOpen:       d.squelch.Open(),
		Rebuilds:          d.rebuilds,
		AudioDropped:      d.audio.Dropped(),
		AudioClipped:      d.audio.Clipped(),
		CTCSSIndex:        -1,
	})
}

// Status returns the latest snapshot.
func (d *Demod) Status() demod.Status {
	return d.status.Load()
}

// MagSqLevels returns the channel power since the previous call.
func (d *Demod) MagSqLevels() demod.MagSqLevels {
	return d.levels.Levels()
}

// Settings returns the settings in effect once pending messages are applied.
func (d *Demod) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.Drain(d.handle)
	return d.settings
}

// Serialize returns the current settings as an opaque blob.
func (d *Demod) Serialize() []byte {
	return demod.EncodeSettings(Mode, d.Settings())
}

// Deserialize queues the settings in data, or the defaults when data is
// invalid; the error then wraps demod.ErrInvalidSettings.
func (d *Demod) Deserialize(data []byte) error {
	s := DefaultSettings()
	if err := demod.DecodeSettings(data, Mode, &s); err != nil {
		d.Configure(DefaultSettings(), true)
		return err
	}
	d.Configure(s, true)
	return nil
}
