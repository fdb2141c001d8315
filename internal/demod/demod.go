// Package demod holds the pieces shared by the FM-family channel
// demodulators: the capability interface, status snapshots, magnitude
// levels, the configuration message queue, the mixing front end and the
// audio output stage.
//
// Each variant (bfm, nfm, wfm) is a distinct type with its own Settings.
// A single goroutine calls Feed. Configuration arrives as immutable messages
// and is applied by that goroutine before the next block, never mid-block.
package demod

import (
	"errors"
	"sync/atomic"

	"github.com/google/uuid"

	"go-fm-demod/internal/dsp"
	"go-fm-demod/internal/rds"
)

// ErrInvalidSettings is returned (wrapped) when a settings blob cannot be
// decoded. Defaults stay applied in that case.
var ErrInvalidSettings = errors.New("demod: invalid settings")

// Demodulator is the capability set every channel demodulator implements.
// Configure is per variant since each takes its own Settings type.
type Demodulator interface {
	Feed(block []complex64)
	Start()
	Stop()
	Serialize() []byte
	Deserialize(data []byte) error
	Status() Status
	MagSqLevels() MagSqLevels
	SetInputSampleRate(rate int)
	SetAudioSampleRate(rate int)
}

// Status is a copy-out snapshot of a demodulator.
type Status struct {
	Channel uuid.UUID
	Mode    string
	Running bool

	InputSampleRate   int
	ChannelSampleRate int
	AudioSampleRate   int

	Squelch dsp.SquelchState
	// SquelchOpen is true while audio passes the gate, including during
	// the close hold.
	SquelchOpen bool

	// Rebuilds counts applied configurations that changed at least one stage.
	Rebuilds     uint64
	AudioDropped uint64
	AudioClipped uint64

	// Broadcast FM only.
	PilotLocked bool
	PilotLevel  float64
	Stereo      bool
	RDS         *rds.Status

	// Narrowband FM only: index into dsp.CTCSSTones, -1 when none.
	CTCSSIndex int
	CTCSSTone  float64
}

// StatusStore publishes status snapshots between goroutines.
type StatusStore struct {
	p atomic.Pointer[Status]
}

// Store publishes a copy of st.
func (s *StatusStore) Store(st Status) {
	s.p.Store(&st)
}

// Swap publishes st and returns the previous snapshot.
func (s *StatusStore) Swap(st Status) Status {
	old := s.p.Swap(&st)
	if old == nil {
		return Status{}
	}
	return *old
}

// Load returns the latest snapshot, or the zero Status before the first Store.
func (s *StatusStore) Load() Status {
	p := s.p.Load()
	if p == nil {
		return Status{}
	}
	return *p
}

// RequiredBandwidth returns the channel sample rate needed to carry an RF
// bandwidth of rfBW Hz.
func RequiredBandwidth(rfBW int) int {
	if rfBW <= 48000 {
		return 48000
	}
	return (3 * rfBW) / 2
}

// MsgConfigure replaces a variant's settings. With Force every stage is
// rebuilt, otherwise only the stages whose parameters changed.
type MsgConfigure[S any] struct {
	Settings S
	Force    bool
}

// MsgInputSampleRate changes the rate of the IQ blocks given to Feed.
type MsgInputSampleRate struct {
	Rate int
}

// MsgAudioSampleRate changes the audio device rate.
type MsgAudioSampleRate struct {
	Rate int
}

// DefaultQueueLen is the depth of the configuration queue.
const DefaultQueueLen = 16

// Queue carries configuration messages to the feeding goroutine.
type Queue struct {
	ch chan any
}

// NewQueue creates a queue holding up to n pending messages.
func NewQueue(n int) *Queue {
	if n < 1 {
		n = DefaultQueueLen
	}
	return &Queue{ch: make(chan any, n)}
}

// Post enqueues msg without blocking. It returns false when the queue is
// full; the caller then applies the message itself under its lock.
func (q *Queue) Post(msg any) bool {
	select {
	case q.ch <- msg:
		return true
	default:
		return false
	}
}

// Drain calls apply for every pending message, in order.
func (q *Queue) Drain(apply func(msg any)) {
	for {
		select {
		case msg := <-q.ch:
			apply(msg)
		default:
			return
		}
	}
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	return len(q.ch)
}
