package rds

// Status is a snapshot of the whole RDS chain.
type Status struct {
	Synced  bool
	Quality float64
	Demod   DemodReport
	Blocks  DecoderStats
	Station Station
	Groups  uint64
}

// Receiver chains Demod, Decoder and Parser.
type Receiver struct {
	demod   *Demod
	decoder *Decoder
	parser  *Parser
	// OnGroup, when set, is called with every decoded group.
	OnGroup func(Group)
}

// NewReceiver creates a receiver for a multiplex at sampleRate.
func NewReceiver(sampleRate int, rbds bool) *Receiver {
	return &Receiver{
		demod:   NewDemod(sampleRate),
		decoder: NewDecoder(),
		parser:  NewParser(rbds),
	}
}

// SetSampleRate reconfigures the demodulator; decoded data is kept.
func (r *Receiver) SetSampleRate(sampleRate int) {
	r.demod.SetSampleRate(sampleRate)
	r.decoder.Reset()
}

// SetRBDS selects the North American PTY table.
func (r *Receiver) SetRBDS(rbds bool) {
	r.parser.SetRBDS(rbds)
}

// Reset clears the whole chain, including the station data.
func (r *Receiver) Reset() {
	r.demod.Reset()
	r.decoder.Reset()
	r.parser.Reset()
}

// Process takes one multiplex sample with the 57 kHz references and reports
// whether a new group was parsed.
func (r *Receiver) Process(x, sin3, cos3 float64) bool {
	bit, ok := r.demod.Process(x, sin3, cos3)
	if !ok {
		return false
	}
	g, ready := r.decoder.Bit(bit)
	if !ready {
		return false
	}
	r.parser.Parse(g)
	if r.OnGroup != nil {
		r.OnGroup(g)
	}
	return true
}

// Status returns a snapshot of the chain.
func (r *Receiver) Status() Status {
	return Status{
		Synced:  r.decoder.Synced(),
		Quality: r.decoder.Quality(),
		Demod:   r.demod.Report(),
		Blocks:  r.decoder.Stats(),
		Station: r.parser.Station(),
		Groups:  r.parser.Total(),
	}
}

// Parser returns the group parser.
func (r *Receiver) Parser() *Parser {
	return r.parser
}
