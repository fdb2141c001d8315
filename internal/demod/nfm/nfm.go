// Package nfm is the narrowband FM channel demodulator with squelch and
// CTCSS tone gating.
package nfm

import (
	"log"
	"math"
	"sync"

	"github.com/google/uuid"

	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/dsp"
)

const (
	// audioTaps is the length of the audio lowpass and bandpass filters.
	audioTaps = 301
	// highPassCutoff is the lower edge of the audio bandpass in Hz.
	highPassCutoff = 300.0
	// squelchAverage is the length of the |x|² moving average.
	squelchAverage = 32
	// discriReferenceRate is the rate at which the discriminator gain is exact.
	discriReferenceRate = 48000
	// minNoise bounds the AF squelch level.
	minNoise = 1e-30
)

// Demod is a narrowband FM demodulator. It runs at the audio rate: the front
// end resamples the input directly to it.
type Demod struct {
	id     uuid.UUID
	mu     sync.Mutex
	queue  *demod.Queue
	status demod.StatusStore
	levels *demod.MagSqStore

	running   bool
	rebuilds  uint64
	settings  Settings
	inputRate int
	audioRate int

	front        *demod.Frontend
	discri       *dsp.Discriminator
	compensation float64
	lowpass      *dsp.FIRFilter
	bandpass     *dsp.FIRFilter
	average      *dsp.MovingAverage
	squelch      *dsp.Squelch
	afSquelch    *dsp.AFSquelch
	squelchDelay *dsp.DelayLine
	deemph       *dsp.Deemphasis
	ctcss        *dsp.CTCSSDetector
	ctcssPhase   int
	ctcssIndex   int
	audio        *demod.AudioStage

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
		id:           uuid.New(),
		queue:        demod.NewQueue(demod.DefaultQueueLen),
		levels:       demod.NewMagSqStore(),
		inputRate:    inputRate,
		audioRate:    demod.DefaultAudioSampleRate,
		front:        &demod.Frontend{},
		discri:       dsp.NewDiscriminator(),
		average:      dsp.NewMovingAverage(squelchAverage),
		squelch:      dsp.NewSquelch(0, 1, 1),
		afSquelch:    dsp.NewAFSquelch(demod.DefaultAudioSampleRate),
		squelchDelay: dsp.NewDelayLine(1),
		deemph:       &dsp.Deemphasis{},
		ctcss:        dsp.NewCTCSSDetector(demod.DefaultAudioSampleRate / dsp.CTCSSDecimation),
		ctcssIndex:   -1,
		audio:        demod.NewAudioStage(fifoFrames),
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

// Configure queues new settings. See demod.MsgConfigure.
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

// post queues msg. A full queue is drained on the caller's goroutine under
// the feed lock so nothing is lost and nothing lands mid-block.
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
			log.Printf("[NFM] input sample rate %d", m.Rate)
		}
	case demod.MsgAudioSampleRate:
		if m.Rate > 0 && m.Rate != d.audioRate {
			d.audioRate = m.Rate
			d.buildAll()
			d.rebuilds++
			log.Printf("[NFM] audio sample rate %d", m.Rate)
		}
	default:
		log.Printf("[NFM] unknown message %T", msg)
	}
}

func (d *Demod) applySettings(s Settings, force bool) {
	s.Clamp()
	old := d.settings
	if !force && s == old {
		return
	}
	d.settings = s

	switch {
	case force:
		d.buildAll()
	default:
		if s.RFBandwidth != old.RFBandwidth {
			d.buildFrontend()
		} else if s.InputFrequencyOffset != old.InputFrequencyOffset {
			d.front.SetOffset(float64(s.InputFrequencyOffset))
		}
		if s.AFBandwidth != old.AFBandwidth {
			d.buildAudioFilters()
		}
		if s.FMDeviation != old.FMDeviation {
			d.buildDiscriminator()
		}
		if s.Squelch != old.Squelch || s.SquelchHoldOpen != old.SquelchHoldOpen ||
			s.SquelchHoldClose != old.SquelchHoldClose || s.AFSquelch != old.AFSquelch {
			d.squelch.Configure(d.squelchThreshold(), s.SquelchHoldOpen, s.SquelchHoldClose)
		}
		if s.AFSquelch != old.AFSquelch {
			d.afSquelch.Reset()
			d.squelch.Reset()
		}
		if s.SquelchHoldOpen != old.SquelchHoldOpen {
			d.squelchDelay.Resize(s.SquelchHoldOpen)
		}
		if s.HighPass != old.HighPass {
			d.lowpass.Reset()
			d.bandpass.Reset()
		}
		if s.Deemphasis != old.Deemphasis {
			d.deemph.SetRC(s.DeemphasisTau(), d.audioRate)
		}
		if s.CTCSSOn != old.CTCSSOn || s.CTCSSIndex != old.CTCSSIndex {
			d.ctcss.Reset()
			d.ctcssIndex = -1
		}
	}
	d.audio.SetVolume(s.Volume)
	d.audio.SetMute(s.AudioMute)
	d.rebuilds++

	log.Printf("[NFM] settings: offset=%d rf=%.0f af=%.0f dev=%.0f squelch=%.1fdB afsquelch=%v ctcss=%v/%d force=%v",
		s.InputFrequencyOffset, s.RFBandwidth, s.AFBandwidth, s.FMDeviation, s.Squelch, s.AFSquelch, s.CTCSSOn, s.CTCSSIndex, force)
}

func (d *Demod) buildAll() {
	s := d.settings
	d.buildFrontend()
	d.buildDiscriminator()
	d.buildAudioFilters()
	d.average.Reset()
	d.squelch.Configure(d.squelchThreshold(), s.SquelchHoldOpen, s.SquelchHoldClose)
	d.squelch.Reset()
	d.afSquelch.SetSampleRate(d.audioRate)
	d.squelchDelay.Resize(s.SquelchHoldOpen)
	d.deemph.SetRC(s.DeemphasisTau(), d.audioRate)
	d.ctcss.SetSampleRate(d.audioRate / dsp.CTCSSDecimation)
	d.ctcssPhase = 0
	d.ctcssIndex = -1
	d.audio.Configure(d.audioRate, d.audioRate, 0)
}

// squelchThreshold is the gate threshold for the selected squelch. The AF
// squelch gate sees the inverse noise level, so it opens as noise falls
// below the squelch level.
func (d *Demod) squelchThreshold() float64 {
	if d.settings.AFSquelch {
		return 1 / d.settings.SquelchLevel()
	}
	return d.settings.SquelchLevel()
}

func (d *Demod) buildFrontend() {
	s := d.settings
	d.front.Configure(d.inputRate, d.audioRate, float64(s.InputFrequencyOffset), s.RFBandwidth/2)
}

func (d *Demod) buildDiscriminator() {
	d.discri.SetScaling(discriReferenceRate, d.settings.FMDeviation)
	d.compensation = dsp.DiscriminatorCompensation(d.audioRate)
}

func (d *Demod) buildAudioFilters() {
	af := d.settings.AFBandwidth
	rate := float64(d.audioRate)
	d.lowpass = dsp.NewLowpass(audioTaps, rate, af)
	d.bandpass = dsp.NewBandpass(audioTaps, rate, highPassCutoff, af)
}

// Start resets the signal path and begins accepting blocks.
func (d *Demod) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.Drain(d.handle)
	d.front.Reset()
	d.discri.Reset()
	d.lowpass.Reset()
	d.bandpass.Reset()
	d.average.Reset()
	d.squelch.Reset()
	d.afSquelch.Reset()
	d.squelchDelay.Reset()
	d.ctcss.Reset()
	d.ctcssPhase = 0
	d.ctcssIndex = -1
	d.audio.Reset()
	d.levels.Reset()
	d.running = true
	d.publish()
	log.Printf("[NFM] %s started: input %d S/s, audio %d S/s", d.id, d.inputRate, d.audioRate)
}

// Stop makes Feed ignore blocks until the next Start.
func (d *Demod) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.publish()
	log.Printf("[NFM] %s stopped", d.id)
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
	s := &d.settings
	var sum, peak float64
	for _, y := range d.channel {
		re, im := float64(real(y)), float64(imag(y))
		magsq := re*re + im*im
		sum += magsq
		peak = math.Max(peak, magsq)
		sample := d.discri.Run(y) * d.compensation

		level := d.average.Feed(magsq)
		if s.AFSquelch {
			level = 1 / math.Max(d.afSquelch.Analyze(sample), minNoise)
		}
		open := d.squelch.Update(level)
		lp := d.lowpass.Run(sample)

		d.ctcssPhase++
		if d.ctcssPhase == dsp.CTCSSDecimation {
			d.ctcssPhase = 0
			if d.ctcss.Analyze(lp) {
				d.ctcssIndex = d.ctcss.Detected()
			}
		}

		audio := lp
		if s.HighPass {
			audio = d.bandpass.Run(sample)
		}
		// Delayed by the open hold so the gate keeps the audio that opened it.
		audio = d.squelchDelay.Process(d.deemph.Filter(audio))

		if !open || (s.CTCSSOn && d.ctcssIndex != s.CTCSSIndex) {
			audio = 0
		}
		d.audio.PushMono(audio)
	}
	d.levels.Add(sum, peak, len(d.channel))
	d.audio.Flush()
	d.publish()
}

func (d *Demod) publish() {
	st := demod.Status{
		Channel:           d.id,
		Mode:              Mode,
		Running:           d.running,
		InputSampleRate:   d.inputRate,
		ChannelSampleRate: d.audioRate,
		AudioSampleRate:   d.audioRate,
		Squelch:           d.squelch.State(),
		SquelchOpen:       d.squelch.Open(),
		Rebuilds:          d.rebuilds,
		AudioDropped:      d.audio.Dropped(),
		AudioClipped:      d.audio.Clipped(),
		CTCSSIndex:        d.ctcssIndex,
	}
	if d.ctcssIndex >= 0 {
		st.CTCSSTone = dsp.CTCSSTones[d.ctcssIndex]
	}
	d.status.Store(st)
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

// Deserialize queues the settings in data. On failure the defaults are
// queued instead and the error wraps demod.ErrInvalidSettings.
func (d *Demod) Deserialize(data []byte) error {
	s := DefaultSettings()
	if err := demod.DecodeSettings(data, Mode, &s); err != nil {
		d.Configure(DefaultSettings(), true)
		return err
	}
	d.Configure(s, true)
	return nil
}
