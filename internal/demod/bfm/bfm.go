// Package bfm is the broadcast FM channel demodulator: mono or stereo audio
// from the multiplex, the 19 kHz pilot PLL and the RDS chain.
package bfm

import (
	"log"
	"math"
	"sync"

	"github.com/google/uuid"

	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/dsp"
	"go-fm-demod/internal/rds"
)

const (
	// Excursion is the peak deviation of a broadcast FM carrier in Hz.
	Excursion = 75000.0

	audioTaps      = 127
	squelchAverage = 16
)

// GroupHandler receives each decoded RDS group with the station data it
// updated. It runs on the feeding goroutine and must not block.
type GroupHandler func(g rds.Group, station rds.Station)

// Demod is a broadcast FM demodulator running at RequiredBandwidth(rf).
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
	average  *dsp.MovingAverage
	squelch  *dsp.Squelch
	pilot    *dsp.PhaseLock
	rds      *rds.Receiver

	// DSB stereo: FIR lowpass on the multiplex and on the 38 kHz product.
	lowpass       *dsp.FIRFilter
	lowpassStereo *dsp.FIRFilter
	// LSB stereo: FFT filters so both paths share the same block delay.
	monoFFT *dsp.FFTFilter
	lsbFFT  *dsp.FFTFilter

	deemphL *dsp.Deemphasis
	deemphR *dsp.Deemphasis
	audio   *demod.AudioStage

	onGroup  GroupHandler
	baseband func(mpx []float32)
	tapBuf   []float32
	channel  []complex64
	open     bool
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
		monoFFT:   dsp.NewFFTFilter(dsp.DefaultFFTFilterLen, -0.05, 0.05),
		lsbFFT:    dsp.NewFFTFilter(dsp.DefaultFFTFilterLen, -0.05, 0),
		deemphL:   &dsp.Deemphasis{},
		deemphR:   &dsp.Deemphasis{},
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

// SetGroupHandler registers fn for decoded RDS groups.
func (d *Demod) SetGroupHandler(fn GroupHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onGroup = fn
}

// SetBasebandTap registers fn to receive the demodulated multiplex (or the
// regenerated pilot with ShowPilot) once per block. fn must not retain mpx.
func (d *Demod) SetBasebandTap(fn func(mpx []float32)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseband = fn
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
			log.Printf("[BFM] input sample rate %d", m.Rate)
		}
	case demod.MsgAudioSampleRate:
		if m.Rate > 0 && m.Rate != d.audioRate {
			d.audioRate = m.Rate
			d.audio.Configure(d.channelRate, d.audioRate, d.settings.AFBandwidth)
			d.rebuilds++
			log.Printf("[BFM] audio sample rate %d", m.Rate)
		}
	default:
		log.Printf("[BFM] unknown message %T", msg)
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
			d.deemphL.SetRC(s.DeemphasisTau(), d.channelRate)
			d.deemphR.SetRC(s.DeemphasisTau(), d.channelRate)
		}
		if s.LSBStereo != old.LSBStereo || s.AudioStereo != old.AudioStereo {
			d.resetAudioPath()
		}
		if s.RDSActive != old.RDSActive {
			d.rds.Reset()
		}
		if s.RBDS != old.RBDS {
			d.rds.SetRBDS(s.RBDS)
		}
	}
	d.audio.SetVolume(s.Volume)
	d.audio.SetMute(s.AudioMute)
	d.rebuilds++

	log.Printf("[BFM] settings: offset=%d rf=%.0f af=%.0f squelch=%.1fdB stereo=%v lsb=%v rds=%v force=%v",
		s.InputFrequencyOffset, s.RFBandwidth, s.AFBandwidth, s.Squelch, s.AudioStereo, s.LSBStereo, s.RDSActive, force)
}

func (d *Demod) buildAll() {
	s := d.settings
	d.channelRate = demod.RequiredBandwidth(int(s.RFBandwidth))
	d.buildFrontend()

	half := s.RFBandwidth / 2 / float64(d.channelRate)
	d.rfFilter.Create(-half, half)
	d.discri.SetScaling(float64(d.channelRate), Excursion)
	d.discri.Reset()
	d.average.Reset()
	d.squelch.Configure(s.SquelchLevel(), s.SquelchHoldOpen, s.SquelchHoldClose)
	d.squelch.Reset()
	d.pilot = dsp.NewPilotPLL(d.channelRate)
	if d.rds == nil {
		d.rds = rds.NewReceiver(d.channelRate, s.RBDS)
		d.rds.OnGroup = d.groupDecoded
	} else {
		d.rds.SetSampleRate(d.channelRate)
		d.rds.SetRBDS(s.RBDS)
	}
	d.deemphL.SetRC(s.DeemphasisTau(), d.channelRate)
	d.deemphR.SetRC(s.DeemphasisTau(), d.channelRate)
	d.buildAudio()
}

func (d *Demod) buildFrontend() {
	s := d.settings
	d.front.Configure(d.inputRate, d.channelRate, float64(s.InputFrequencyOffset), s.RFBandwidth/2)
}

func (d *Demod) buildAudio() {
	af := d.settings.AFBandwidth
	rate := float64(d.channelRate)
	d.lowpass = dsp.NewLowpass(audioTaps, rate, af)
	d.lowpassStereo = dsp.NewLowpass(audioTaps, rate, af)
	d.monoFFT.Create(-af/rate, af/rate)
	d.lsbFFT.Create(-af/rate, 0)
	d.audio.Configure(d.channelRate, d.audioRate, af)
}

func (d *Demod) resetAudioPath() {
	d.lowpass.Reset()
	d.lowpassStereo.Reset()
	d.monoFFT.Reset()
	d.lsbFFT.Reset()
	d.deemphL.SetRC(d.settings.DeemphasisTau(), d.channelRate)
	d.deemphR.SetRC(d.settings.DeemphasisTau(), d.channelRate)
	d.audio.Reset()
}

func (d *Demod) groupDecoded(g rds.Group) {
	if d.onGroup != nil {
		d.onGroup(g, d.rds.Parser().Station())
	}
}

// Start resets the signal path and begins accepting blocks.
func (d *Demod) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.Drain(d.handle)
	d.front.Reset()
	d.rfFilter.Reset()
	d.discri.Reset()
	d.average.Reset()
	d.squelch.Reset()
	d.pilot.Reset()
	d.rds.Reset()
	d.resetAudioPath()
	d.levels.Reset()
	d.running = true
	d.publish()
	log.Printf("[BFM] %s started: input %d S/s, channel %d S/s, audio %d S/s", d.id, d.inputRate, d.channelRate, d.audioRate)
}

// Stop makes Feed ignore blocks until the next Start.
func (d *Demod) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.publish()
	log.Printf("[BFM] %s stopped", d.id)
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

	s := &d.settings
	usePilot := s.AudioStereo || s.RDSActive || s.ShowPilot
	d.tapBuf = d.tapBuf[:0]

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
			d.open = d.squelch.Update(d.average.Feed(magsq))

			mpx := d.discri.Run(complex64(y))

			var refs dsp.PilotRefs
			if usePilot {
				refs = d.pilot.Process(mpx)
			}
			if s.RDSActive {
				d.rds.Process(mpx, refs.Sin3, refs.Cos3)
			}
			if d.baseband != nil {
				if s.ShowPilot {
					d.tapBuf = append(d.tapBuf, float32(refs.Sin))
				} else {
					d.tapBuf = append(d.tapBuf, float32(mpx))
				}
			}

			d.stereo(mpx, refs)
		}
	}
	d.levels.Add(sum, peak, count)
	if d.baseband != nil && len(d.tapBuf) > 0 {
		d.baseband(d.tapBuf)
	}
	d.audio.Flush()
	d.publish()
}

// stereo splits the multiplex sample into L and R and pushes them out.
func (d *Demod) stereo(mpx float64, refs dsp.PilotRefs) {
	s := &d.settings
	stereo := s.AudioStereo && d.pilot.Locked()

	if s.LSBStereo {
		mono := d.monoFFT.Run(complex(mpx, 0))
		// Shift the 38 kHz subcarrier to zero; its lower sideband lands on
		// negative frequencies.
		lsb := d.lsbFFT.Run(complex(mpx*refs.Sin2, mpx*refs.Cos2))
		for i := range mono {
			var diff float64
			if stereo {
				diff = 4 * real(lsb[i])
			}
			d.output(real(mono[i]), diff)
		}
		return
	}

	mono := d.lowpass.Run(mpx)
	diff := 2 * d.lowpassStereo.Run(mpx*refs.Sin2)
	if !stereo {
		diff = 0
	}
	d.output(mono, diff)
}

func (d *Demod) output(mono, diff float64) {
	l := d.deemphL.Filter(mono + diff)
	r := d.deemphR.Filter(mono - diff)
	if !d.open {
		l, r = 0, 0
	}
	d.audio.Push(l, r)
}

func (d *Demod) publish() {
	s := &d.settings
	st := demod.Status{
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
		PilotLocked:       d.pilot.Locked(),
		PilotLevel:        d.pilot.PilotLevel(),
		Stereo:            s.AudioStereo && d.pilot.Locked(),
		CTCSSIndex:        -1,
	}
	if s.RDSActive {
		rs := d.rds.Status()
		st.RDS = &rs
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
