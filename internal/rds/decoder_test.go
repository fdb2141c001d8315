package rds

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockBitsOf returns the 26 bits of a block, most significant first.
func blockBitsOf(block uint32) []bool {
	bits := make([]bool, blockBits)
	for i := range bits {
		bits[i] = block>>(blockBits-1-i)&1 == 1
	}
	return bits
}

// encodeGroups returns the bit stream of the groups. Version B groups carry
// offset C' in the third block.
func encodeGroups(groups ...[4]uint16) []bool {
	var bits []bool
	for _, g := range groups {
		for i, w := range g {
			off := Offset(i)
			if i == 2 && g[1]&0x0800 != 0 {
				off = OffsetCPrime
			}
			bits = append(bits, blockBitsOf(Encode(w, off))...)
		}
	}
	return bits
}

func feed(d *Decoder, bits []bool) []Group {
	var out []Group
	for _, b := range bits {
		if g, ok := d.Bit(b); ok {
			out = append(out, g)
		}
	}
	return out
}

func TestSyndromeOfOffsets(t *testing.T) {
	assert.Equal(t, [5]uint32{383, 14, 303, 663, 748}, offsetSyndrome)
}

func TestCorrectBlock_Clean(t *testing.T) {
	for off := OffsetA; off <= OffsetCPrime; off++ {
		data, corrected, ok := CorrectBlock(Encode(0xBEEF, off), off)
		require.True(t, ok, "offset %s", off)
		assert.Equal(t, uint16(0xBEEF), data)
		assert.Zero(t, corrected)
	}
}

func TestCorrectBlock_SingleBit(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for off := OffsetA; off <= OffsetCPrime; off++ {
		for i := 0; i < blockBits; i++ {
			data := uint16(rng.Intn(1 << 16))
			block := Encode(data, off) ^ 1<<i
			got, corrected, ok := CorrectBlock(block, off)
			require.True(t, ok, "offset %s bit %d", off, i)
			assert.Equal(t, data, got, "offset %s bit %d", off, i)
			assert.Equal(t, 1, corrected)
		}
	}
}

func TestCorrectBlock_TwoBitBurst(t *testing.T) {
	for i := 0; i < blockBits-1; i++ {
		block := Encode(0x1234, OffsetB) ^ 3<<i
		got, corrected, ok := CorrectBlock(block, OffsetB)
		require.True(t, ok, "burst at %d", i)
		assert.Equal(t, uint16(0x1234), got)
		assert.Equal(t, 2, corrected)
	}
}

func TestCorrectBlock_RejectsLongerBursts(t *testing.T) {
	for _, pattern := range []uint32{0b111, 0b101, 0b1001, 0b1111, 0b10001, 0b11011, 0b11111} {
		for i := 0; (pattern << i) < 1<<blockBits; i++ {
			block := Encode(0xA5A5, OffsetD) ^ pattern<<i
			_, _, ok := CorrectBlock(block, OffsetD)
			assert.False(t, ok, "pattern %b at %d must be rejected", pattern, i)
		}
	}
}

func TestCorrectBlock_WrongOffsetRejected(t *testing.T) {
	_, _, ok := CorrectBlock(Encode(0x1111, OffsetC), OffsetCPrime)
	assert.False(t, ok)
}

func TestDecoder_SyncAndGroups(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var bits []bool
	for i := 0; i < 37; i++ {
		bits = append(bits, rng.Intn(2) == 1)
	}
	var groups [][4]uint16
	for i := 0; i < 10; i++ {
		groups = append(groups, [4]uint16{0xC201, 0x2000 | uint16(i), 0x4142, 0x4344})
	}
	groups = append(groups, [4]uint16{0xC201, 0x0800, 0xC201, 0x5758})
	bits = append(bits, encodeGroups(groups...)...)

	d := NewDecoder()
	got := feed(d, bits)
	require.True(t, d.Synced())

	// The first group is consumed by the search.
	require.GreaterOrEqual(t, len(got), 9)
	last := got[len(got)-1]
	assert.Equal(t, [4]uint16{0xC201, 0x0800, 0xC201, 0x5758}, last.Blocks)
	assert.True(t, last.CPrime)
	assert.True(t, last.VersionB())
	assert.Equal(t, 0, last.Type())
	for _, g := range got[:len(got)-1] {
		assert.False(t, g.CPrime)
		assert.Equal(t, 2, g.Type())
	}
	assert.InDelta(t, 1.0, d.Quality(), 1e-12)
}

func TestDecoder_CorrectsInSync(t *testing.T) {
	group := [4]uint16{0xC201, 0x2005, 0x4142, 0x4344}
	bits := encodeGroups(group, group, group)

	d := NewDecoder()
	feed(d, bits)
	require.True(t, d.Synced())

	// Flip one bit in block C of the next group.
	next := encodeGroups(group)
	next[2*blockBits+9] = !next[2*blockBits+9]
	got := feed(d, next)
	require.Len(t, got, 1)
	assert.Equal(t, group, got[0].Blocks)
	assert.Equal(t, 1, got[0].Corrected)
	assert.Equal(t, uint64(1), d.Stats().Corrected)
}

func TestDecoder_BurstDropsGroupAndResyncs(t *testing.T) {
	group := [4]uint16{0xC201, 0x2005, 0x4142, 0x4344}
	d := NewDecoder()
	feed(d, encodeGroups(group, group, group))
	require.True(t, d.Synced())

	// A 3-bit burst in block B is not repairable: the group is dropped.
	bad := encodeGroups(group)
	for i := 0; i < 3; i++ {
		bad[blockBits+4+i] = !bad[blockBits+4+i]
	}
	assert.Empty(t, feed(d, bad))
	assert.Equal(t, uint64(1), d.Stats().BadBlocks)

	// Noise long enough to lose sync.
	rng := rand.New(rand.NewSource(11))
	noise := make([]bool, 40*blockBits)
	for i := range noise {
		noise[i] = rng.Intn(2) == 1
	}
	feed(d, noise)
	assert.GreaterOrEqual(t, d.Stats().SyncLosses, uint64(1))

	// A clean stream at a different bit alignment is found again.
	clean := make([][4]uint16, 8)
	for i := range clean {
		clean[i] = group
	}
	got := feed(d, encodeGroups(clean...))
	assert.True(t, d.Synced())
	require.NotEmpty(t, got)
	for _, g := range got {
		assert.Equal(t, group, g.Blocks)
	}
}
