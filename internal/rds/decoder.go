// Package rds recovers Radio Data System groups from the 57 kHz subcarrier of
// a broadcast FM multiplex and accumulates the station data they carry.
package rds

import "log"

// Offset identifies the offset word added to the check bits of a block.
type Offset int

const (
	OffsetA Offset = iota
	OffsetB
	OffsetC
	OffsetD
	OffsetCPrime
)

func (o Offset) String() string {
	return [...]string{"A", "B", "C", "D", "C'"}[o]
}

// Code parameters of the shortened cyclic (26,16) block code.
const (
	poly       = 0x5B9
	polyLen    = 10
	checkMask  = 1<<polyLen - 1
	blockBits  = 26
	blockMask  = 1<<blockBits - 1
	groupBlock = 4
)

var (
	offsetWord = [5]uint32{252, 408, 360, 436, 848}
	// offsetPos is the position inside a group of the block carrying each offset.
	offsetPos = [5]int{0, 1, 2, 3, 2}
	// offsetSyndrome is the syndrome of a valid block carrying each offset.
	offsetSyndrome [5]uint32
	// errorPatterns maps the syndrome of a correctable error to the error.
	errorPatterns map[uint32]uint32
)

func init() {
	for i, w := range offsetWord {
		offsetSyndrome[i] = syndrome(w, blockBits)
	}

	// All single-bit errors and 2-bit bursts. The code corrects bursts up to
	// 5 bits, so these syndromes are distinct, and distinct from 3 to 5 bit
	// bursts which are therefore rejected rather than miscorrected.
	errorPatterns = make(map[uint32]uint32, 2*blockBits)
	for i := 0; i < blockBits; i++ {
		errorPatterns[syndrome(1<<i, blockBits)] = 1 << i
	}
	for i := 0; i < blockBits-1; i++ {
		errorPatterns[syndrome(3<<i, blockBits)] = 3 << i
	}
}

// syndrome divides the mlen-bit message, followed by polyLen zero bits, by the
// generator polynomial and returns the remainder.
func syndrome(message uint32, mlen int) uint32 {
	var reg uint32
	for i := mlen; i > 0; i-- {
		reg = reg<<1 | (message>>(i-1))&1
		if reg&(1<<polyLen) != 0 {
			reg ^= poly
		}
	}
	for i := polyLen; i > 0; i-- {
		reg <<= 1
		if reg&(1<<polyLen) != 0 {
			reg ^= poly
		}
	}
	return reg & checkMask
}

// CheckWord returns the 10 check bits of a data word before the offset is added.
func CheckWord(data uint16) uint16 {
	return uint16(syndrome(uint32(data), 16))
}

// Encode builds the 26-bit block carrying data with the given offset.
func Encode(data uint16, off Offset) uint32 {
	return uint32(data)<<polyLen | (uint32(CheckWord(data)) ^ offsetWord[off])
}

// CorrectBlock checks a 26-bit block against the expected offset. It returns
// the data word and the number of corrected bits; ok is false when the block
// carries an error the code cannot correct.
func CorrectBlock(block uint32, off Offset) (data uint16, corrected int, ok bool) {
	s := syndrome(block&blockMask, blockBits) ^ offsetSyndrome[off]
	if s == 0 {
		return uint16(block >> polyLen), 0, true
	}
	e, found := errorPatterns[s]
	if !found {
		return 0, 0, false
	}
	block ^= e
	if e&(e-1) == 0 {
		corrected = 1
	} else {
		corrected = 2
	}
	return uint16(block >> polyLen), corrected, true
}

// Group is one 104-bit RDS group: four data words in A, B, C, D order.
type Group struct {
	Blocks [groupBlock]uint16
	// CPrime reports that the third block carried offset C' (version B).
	CPrime bool
	// Corrected is the number of bits repaired across the four blocks.
	Corrected int
}

// Type returns the group type code 0..15.
func (g Group) Type() int {
	return int(g.Blocks[1] >> 12)
}

// VersionB reports whether the group is a version B group.
func (g Group) VersionB() bool {
	return g.Blocks[1]&0x0800 != 0
}

// DecoderStats are the block level counters of a Decoder.
type DecoderStats struct {
	Groups     uint64
	GoodBlocks uint64
	BadBlocks  uint64
	Corrected  uint64
	SyncLosses uint64
}

// Sync loss thresholds.
const (
	maxConsecutiveBad = 6
	qualityWindow     = 50
	maxBadInWindow    = 35
)

// Decoder synchronizes to block boundaries in the demodulated bit stream,
// corrects blocks and assembles groups.
//
// Without sync, every bit position is tested for an exact offset match; two
// matches whose distance agrees with their block positions establish sync.
// In sync, each 26-bit block is checked against the offset expected at its
// position. Sync is dropped, and the bit-by-bit search resumes, after too many
// uncorrectable blocks.
type Decoder struct {
	reg uint32

	// search
	bitCounter   uint64
	presync      bool
	lastOffset   int
	lastSeenAt   uint64
	synced       bool
	blockBit     int
	blockNumber  int
	consecBad    int
	windowBlocks int
	windowBad    int
	quality      float64

	// group assembly
	assembling bool
	group      Group
	goodBlocks int

	stats DecoderStats
}

// NewDecoder creates a decoder searching for sync.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Reset drops sync and clears all counters.
func (d *Decoder) Reset() {
	*d = Decoder{}
}

// Synced reports whether the decoder is locked to block boundaries.
func (d *Decoder) Synced() bool {
	return d.synced
}

// Stats returns the block counters.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Quality returns the fraction of good blocks in the current window, or 0
// when not in sync.
func (d *Decoder) Quality() float64 {
	if !d.synced {
		return 0
	}
	return d.quality
}

// Bit shifts in one bit. It returns a group and true when the bit completed
// a group whose four blocks were all valid.
func (d *Decoder) Bit(bit bool) (Group, bool) {
	d.reg <<= 1
	if bit {
		d.reg |= 1
	}
	d.reg &= blockMask
	defer func() { d.bitCounter++ }()

	if !d.synced {
		d.search()
		return Group{}, false
	}

	if d.blockBit < blockBits-1 {
		d.blockBit++
		return Group{}, false
	}
	d.blockBit = 0
	return d.block()
}

func (d *Decoder) search() {
	s := syndrome(d.reg, blockBits)
	for j, os := range offsetSyndrome {
		if s != os {
			continue
		}
		if !d.presync {
			d.lastOffset = j
			d.lastSeenAt = d.bitCounter
			d.presync = true
			return
		}
		bitDistance := d.bitCounter - d.lastSeenAt
		blockDistance := offsetPos[j] - offsetPos[d.lastOffset]
		if blockDistance <= 0 {
			blockDistance += groupBlock
		}
		if uint64(blockDistance*blockBits) != bitDistance {
			// Keep the newest match as the reference.
			d.lastOffset = j
			d.lastSeenAt = d.bitCounter
			return
		}
		d.synced = true
		d.blockBit = 0
		d.blockNumber = (offsetPos[j] + 1) % groupBlock
		d.consecBad = 0
		d.windowBlocks = 0
		d.windowBad = 0
		d.quality = 1
		d.assembling = false
		log.Printf("[RDS] sync acquired at bit %d", d.bitCounter)
		return
	}
}

func (d *Decoder) block() (Group, bool) {
	var (
		data      uint16
		corrected int
		good      bool
		cprime    bool
	)
	switch d.blockNumber {
	case 2:
		// Block C carries either offset C or C'. Exact matches first, so a
		// C' block is never repaired into a C block.
		if data, corrected, good = exactBlock(d.reg, OffsetC); !good {
			if data, corrected, good = exactBlock(d.reg, OffsetCPrime); good {
				cprime = true
			} else if data, corrected, good = CorrectBlock(d.reg, OffsetC); !good {
				data, corrected, good = CorrectBlock(d.reg, OffsetCPrime)
				cprime = good
			}
		}
	default:
		data, corrected, good = CorrectBlock(d.reg, Offset(d.blockNumber))
	}

	var out Group
	ready := false
	if good {
		d.stats.GoodBlocks++
		d.stats.Corrected += uint64(corrected)
		d.consecBad = 0
	} else {
		d.stats.BadBlocks++
		d.consecBad++
		d.windowBad++
	}

	if d.blockNumber == 0 && good {
		d.assembling = true
		d.goodBlocks = 0
		d.group = Group{}
	}
	if d.assembling {
		if !good {
			d.assembling = false
		} else {
			d.group.Blocks[d.blockNumber] = data
			d.group.Corrected += corrected
			if d.blockNumber == 2 {
				d.group.CPrime = cprime
			}
			d.goodBlocks++
			if d.goodBlocks == groupBlock {
				out = d.group
				ready = true
				d.assembling = false
				d.stats.Groups++
			}
		}
	}

	d.blockNumber = (d.blockNumber + 1) % groupBlock
	d.windowBlocks++
	d.quality = 1 - float64(d.windowBad)/float64(d.windowBlocks)
	lost := d.consecBad >= maxConsecutiveBad
	if d.windowBlocks == qualityWindow {
		if d.windowBad > maxBadInWindow {
			lost = true
		}
		d.windowBlocks = 0
		d.windowBad = 0
	}
	if lost {
		d.synced = false
		d.presync = false
		d.assembling = false
		d.stats.SyncLosses++
		log.Printf("[RDS] sync lost at bit %d", d.bitCounter)
	}
	return out, ready
}

func exactBlock(block uint32, off Offset) (uint16, int, bool) {
	if syndrome(block, blockBits) != offsetSyndrome[off] {
		return 0, 0, false
	}
	return uint16(block >> polyLen), 0, true
}
