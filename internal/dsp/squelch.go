package dsp

// SquelchState is the state of the squelch gate.
type SquelchState int

const (
	SquelchClosed SquelchState = iota
	SquelchOpening
	SquelchOpen
	SquelchClosing
)

func (s SquelchState) String() string {
	switch s {
	case SquelchClosed:
		return "closed"
	case SquelchOpening:
		return "opening"
	case SquelchOpen:
		return "open"
	case SquelchClosing:
		return "closing"
	}
	return "unknown"
}

// Squelch is a hysteretic gate on a signal level (usually an averaged |x|²).
//
// Opening requires holdOpen consecutive levels above the threshold and closing
// requires holdClose consecutive levels at or below it, so the gate never
// toggles faster than once per hold window. Audio passes in SquelchOpen and
// in SquelchClosing: the close hold is a tail, not a mute.
type Squelch struct {
	threshold float64
	holdOpen  int
	holdClose int
	state     SquelchState
	count     int
}

// NewSquelch creates a closed squelch.
func NewSquelch(threshold float64, holdOpen, holdClose int) *Squelch {
	s := &Squelch{}
	s.Configure(threshold, holdOpen, holdClose)
	return s
}

// Configure sets the threshold and hold counts. The gate state is kept.
func (s *Squelch) Configure(threshold float64, holdOpen, holdClose int) {
	s.threshold = threshold
	s.holdOpen = max(holdOpen, 1)
	s.holdClose = max(holdClose, 1)
}

// Update feeds one level and reports whether audio passes (see Open).
func (s *Squelch) Update(level float64) bool {
	above := level > s.threshold
	switch s.state {
	case SquelchClosed:
		if above {
			s.state = SquelchOpening
			s.count = 0
			s.dwellOpen()
		}
	case SquelchOpening:
		if above {
			s.dwellOpen()
		} else {
			s.state = SquelchClosed
		}
	case SquelchOpen:
		if !above {
			s.state = SquelchClosing
			s.count = 0
			s.dwellClose()
		}
	case SquelchClosing:
		if above {
			s.state = SquelchOpen
		} else {
			s.dwellClose()
		}
	}
	return s.state == SquelchOpen || s.state == SquelchClosing
}

func (s *Squelch) dwellOpen() {
	s.count++
	if s.count >= s.holdOpen {
		s.state = SquelchOpen
	}
}

func (s *Squelch) dwellClose() {
	s.count++
	if s.count >= s.holdClose {
		s.state = SquelchClosed
	}
}

// Open reports whether audio passes, which is true in SquelchOpen and in
// SquelchClosing. Use State to tell the two apart.
func (s *Squelch) Open() bool {
	return s.state == SquelchOpen || s.state == SquelchClosing
}

// State returns the current gate state.
func (s *Squelch) State() SquelchState {
	return s.state
}

// Reset closes the gate.
func (s *Squelch) Reset() {
	s.state = SquelchClosed
	s.count = 0
}
