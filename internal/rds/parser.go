package rds

import (
	"slices"
	"strings"
	"time"
)

const (
	psLen   = 8
	rtLen   = 64
	ptynLen = 8

	// AF codes; 205 is a filler and the rest are unassigned.
	afFirst     = 1
	afLast      = 204
	afCountBase = 224
	afCountLast = 249
)

// Station is a snapshot of the data accumulated for one programme.
type Station struct {
	PI       uint16
	CallSign string
	PTY      int
	PTYName  string
	TP       bool
	TA       bool
	Music    bool
	// DI holds the four decoder identification bits (stereo, artificial
	// head, compressed, dynamic PTY) in d3..d0 order.
	DI uint8

	PS         string
	PSComplete bool
	RT         string
	RTComplete bool
	AF         []float64 // MHz
	AFCount    int
	ECC        uint8
	PTYN       string
	ClockTime  time.Time
}

// Parser accumulates the station data carried by RDS groups. State is keyed
// by the programme identification code; a PI change starts over.
type Parser struct {
	rbds bool

	havePI bool
	pi     uint16
	pty    int
	tp     bool
	ta     bool
	music  bool
	di     uint8

	ps       [psLen]byte
	psSeen   uint8
	rt       [rtLen]byte
	rtSeen   uint16
	rtEnd    int
	rtAB     int
	rtB      bool
	af       []float64
	afCount  int
	ecc      uint8
	ptyn     [ptynLen]byte
	ptynAB   int
	clock    time.Time
	counters [32]uint64
	unparsed uint64
	total    uint64
}

// NewParser creates a parser. rbds selects the North American PTY table.
func NewParser(rbds bool) *Parser {
	p := &Parser{rbds: rbds}
	p.clearStation()
	return p
}

// SetRBDS selects the North American PTY table.
func (p *Parser) SetRBDS(rbds bool) {
	p.rbds = rbds
}

// Reset forgets the station and the counters.
func (p *Parser) Reset() {
	p.havePI = false
	p.pi = 0
	p.clearStation()
	p.counters = [32]uint64{}
	p.unparsed = 0
	p.total = 0
}

func (p *Parser) clearStation() {
	p.pty, p.tp, p.ta, p.music, p.di = 0, false, false, false, 0
	for i := range p.ps {
		p.ps[i] = ' '
	}
	for i := range p.rt {
		p.rt[i] = ' '
	}
	for i := range p.ptyn {
		p.ptyn[i] = ' '
	}
	p.psSeen = 0
	p.rtSeen = 0
	p.rtEnd = -1
	p.rtAB = -1
	p.rtB = false
	p.ptynAB = -1
	p.af = p.af[:0]
	p.afCount = 0
	p.ecc = 0
	p.clock = time.Time{}
}

// Parse updates the station with one group. It returns false for group types
// that are counted but not decoded.
func (p *Parser) Parse(g Group) bool {
	a, b, c, d := g.Blocks[0], g.Blocks[1], g.Blocks[2], g.Blocks[3]
	gt := g.Type()
	vb := g.VersionB()

	p.total++
	idx := gt * 2
	if vb {
		idx++
	}
	p.counters[idx]++

	if !p.havePI || a != p.pi {
		p.clearStation()
		p.pi = a
		p.havePI = true
	}
	p.tp = b&0x0400 != 0
	p.pty = int(b>>5) & 0x1f

	switch {
	case gt == 0:
		p.parsePS(b, c, d, vb)
	case gt == 1 && !vb:
		p.parseECC(c)
	case gt == 2:
		p.parseRT(b, c, d, vb)
	case gt == 4 && !vb:
		p.parseClock(b, c, d)
	case gt == 10 && !vb:
		p.parsePTYN(b, c, d)
	default:
		p.unparsed++
		return false
	}
	return true
}

func (p *Parser) parsePS(b, c, d uint16, vb bool) {
	p.ta = b&0x0010 != 0
	p.music = b&0x0008 != 0
	seg := int(b & 0x3)
	if b&0x0004 != 0 {
		p.di |= 1 << (3 - seg)
	} else {
		p.di &^= 1 << (3 - seg)
	}
	p.ps[seg*2] = rdsChar(byte(d >> 8))
	p.ps[seg*2+1] = rdsChar(byte(d))
	p.psSeen |= 1 << seg

	if vb {
		return
	}
	for _, code := range []uint16{c >> 8, c & 0xff} {
		switch {
		case code >= afFirst && code <= afLast:
			f := 87.5 + float64(code)*0.1
			f = float64(int(f*10+0.5)) / 10
			if !slices.Contains(p.af, f) {
				p.af = append(p.af, f)
			}
		case code >= afCountBase && code <= afCountLast:
			p.afCount = int(code - afCountBase)
		}
	}
}

func (p *Parser) parseRT(b, c, d uint16, vb bool) {
	ab := int(b>>4) & 1
	if p.rtAB >= 0 && ab != p.rtAB {
		for i := range p.rt {
			p.rt[i] = ' '
		}
		p.rtSeen = 0
		p.rtEnd = -1
	}
	p.rtAB = ab
	p.rtB = vb

	seg := int(b & 0xf)
	var chars []byte
	if vb {
		// Version B carries two characters per segment in block D.
		chars = []byte{byte(d >> 8), byte(d)}
	} else {
		chars = []byte{byte(c >> 8), byte(c), byte(d >> 8), byte(d)}
	}
	pos := seg * len(chars)
	for i, ch := range chars {
		if ch == 0x0d {
			p.rtEnd = pos + i
			break
		}
		p.rt[pos+i] = rdsChar(ch)
	}
	p.rtSeen |= 1 << seg
}

func (p *Parser) parseECC(c uint16) {
	// Variant 0 of the slow labelling codes carries the extended country code.
	if (c>>12)&0x7 == 0 {
		p.ecc = uint8(c)
	}
}

func (p *Parser) parseClock(b, c, d uint16) {
	mjd := int(b&0x3)<<15 | int(c>>1)
	hour := int(c&1)<<4 | int(d>>12)
	minute := int(d>>6) & 0x3f
	if hour > 23 || minute > 59 || mjd == 0 {
		return
	}
	offset := time.Duration(d&0x1f) * 30 * time.Minute
	if d&0x20 != 0 {
		offset = -offset
	}
	utc := time.Date(1858, time.November, 17, hour, minute, 0, 0, time.UTC).AddDate(0, 0, mjd)
	p.clock = utc.In(time.FixedZone("", int(offset.Seconds())))
}

func (p *Parser) parsePTYN(b, c, d uint16) {
	ab := int(b>>4) & 1
	if p.ptynAB >= 0 && ab != p.ptynAB {
		for i := range p.ptyn {
			p.ptyn[i] = ' '
		}
	}
	p.ptynAB = ab
	seg := int(b & 1)
	for i, ch := range []byte{byte(c >> 8), byte(c), byte(d >> 8), byte(d)} {
		p.ptyn[seg*4+i] = rdsChar(ch)
	}
}

// Station returns a copy of the accumulated station data.
func (p *Parser) Station() Station {
	if !p.havePI {
		return Station{}
	}
	rt := p.rt[:]
	if p.rtEnd >= 0 {
		rt = p.rt[:p.rtEnd]
	}
	s := Station{
		PI:         p.pi,
		PTY:        p.pty,
		PTYName:    PTYName(p.pty, p.rbds),
		TP:         p.tp,
		TA:         p.ta,
		Music:      p.music,
		DI:         p.di,
		PS:         string(p.ps[:]),
		PSComplete: p.psSeen == 0xf,
		RT:         strings.TrimRight(string(rt), " "),
		RTComplete: p.rtComplete(),
		AF:         slices.Clone(p.af),
		AFCount:    p.afCount,
		ECC:        p.ecc,
		PTYN:       strings.TrimRight(string(p.ptyn[:]), " "),
		ClockTime:  p.clock,
	}
	if p.rbds {
		s.CallSign = CallSign(p.pi)
	}
	return s
}

func (p *Parser) rtComplete() bool {
	per := 4
	if p.rtB {
		per = 2
	}
	segs := 16
	if p.rtEnd >= 0 {
		segs = p.rtEnd/per + 1
	}
	mask := uint16(1<<segs - 1)
	return p.rtSeen != 0 && p.rtSeen&mask == mask
}

// Counters returns the number of groups received per type: index 2·type for
// version A and 2·type+1 for version B.
func (p *Parser) Counters() [32]uint64 {
	return p.counters
}

// Unparsed returns the number of groups whose type is not decoded.
func (p *Parser) Unparsed() uint64 {
	return p.unparsed
}

// Total returns the number of groups parsed.
func (p *Parser) Total() uint64 {
	return p.total
}

// rdsChar maps the printable part of the RDS character set; the rest is
// shown as a space.
func rdsChar(c byte) byte {
	if c >= 0x20 && c < 0x7f {
		return c
	}
	return ' '
}
