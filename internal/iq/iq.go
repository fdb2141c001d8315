// Package iq reads interleaved 16 bit IQ recordings, WAV or headerless, into
// the ring buffer that feeds the demodulator.
package iq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"go-fm-demod/internal/ringbuffer"
)

// ErrUnsupported is returned for WAV files that are not 16 bit stereo.
var ErrUnsupported = errors.New("unsupported IQ file")

// File is an open IQ recording.
type File struct {
	file       *os.File
	decoder    *wav.Decoder
	sampleRate int
}

// Open opens path. WAV files carry their sample rate; anything else is read
// as raw little-endian int16 I/Q pairs at rawRate.
func Open(path string, rawRate int) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open IQ file: %w", err)
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to rewind IQ file: %w", err)
		}
		log.Printf("[IQ] %s: not a WAV file, reading raw IQ at %d S/s", path, rawRate)
		return &File{file: file, sampleRate: rawRate}, nil
	}

	if err := decoder.FwdToPCM(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to seek to PCM data: %w", err)
	}
	log.Printf("[IQ] %s: WAV format: Bit Depth: %d, Sample Rate: %d, Channels: %d",
		path, decoder.BitDepth, decoder.SampleRate, decoder.NumChans)
	if decoder.BitDepth != 16 || decoder.NumChans != 2 {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %d-bit %d channel, want 16-bit I/Q", ErrUnsupported, decoder.BitDepth, decoder.NumChans)
	}
	return &File{file: file, decoder: decoder, sampleRate: int(decoder.SampleRate)}, nil
}

// SampleRate returns the complex sample rate.
func (f *File) SampleRate() int {
	return f.sampleRate
}

// IsWAV reports whether the file has a WAV header.
func (f *File) IsWAV() bool {
	return f.decoder != nil
}

// Pump copies the whole file into rb in chunks of chunkSize bytes and closes
// rb at the end. It returns early, without error, when rb is closed by the
// reader.
func (f *File) Pump(rb *ringbuffer.RingBuffer, chunkSize int) error {
	defer rb.Close()
	var err error
	if f.decoder != nil {
		err = ReadWAV(f.decoder, rb, chunkSize/4)
	} else {
		err = ReadRaw(f.file, rb, chunkSize)
	}
	if errors.Is(err, ringbuffer.ErrClosed) {
		return nil
	}
	return err
}

// Close closes the file.
func (f *File) Close() error {
	return f.file.Close()
}

// ReadRaw copies little-endian int16 samples from r into rb until EOF.
func ReadRaw(r io.Reader, rb *ringbuffer.RingBuffer, chunkSize int) error {
	buf := make([]byte, chunkSize)
	samples := make([]int16, chunkSize/2)
	var carry int
	for {
		n, err := r.Read(buf[carry:])
		n += carry
		whole := n &^ 1
		if whole > 0 {
			for i := 0; i < whole/2; i++ {
				samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			}
			if werr := rb.Write(samples[:whole/2]); werr != nil {
				return werr
			}
		}
		carry = n - whole
		if carry > 0 {
			buf[0] = buf[whole]
		}
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("file read error: %w", err)
		}
	}
}

// ReadWAV copies the PCM data of a decoder positioned at its data chunk into
// rb, frames I/Q pairs at a time.
func ReadWAV(decoder *wav.Decoder, rb *ringbuffer.RingBuffer, frames int) error {
	buf := &audio.IntBuffer{
		Format: decoder.Format(),
		Data:   make([]int, max(frames, 1)*2),
	}
	samples := make([]int16, len(buf.Data))
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read IQ data: %w", err)
		}
		if n == 0 {
			return nil
		}
		n &^= 1
		for i, v := range buf.Data[:n] {
			samples[i] = int16(v)
		}
		if werr := rb.Write(samples[:n]); werr != nil {
			return werr
		}
	}
}

// Blocks reads complex blocks from a ring buffer of interleaved I/Q.
type Blocks struct {
	rb    *ringbuffer.RingBuffer
	size  int
	block []complex64
}

// NewBlocks reads blocks of size complex samples from rb.
func NewBlocks(rb *ringbuffer.RingBuffer, size int) *Blocks {
	return &Blocks{rb: rb, size: size, block: make([]complex64, size)}
}

// Next blocks for the next block, scaled to ±1. The final block may be short.
// It returns nil at the end of the stream. The block is reused by the next call.
func (b *Blocks) Next() []complex64 {
	raw := b.rb.Read(2 * b.size)
	if raw == nil {
		return nil
	}
	return ToComplex(b.block[:0], raw)
}

// ToComplex appends the I/Q pairs in raw to dst as complex samples in ±1.
func ToComplex(dst []complex64, raw []int16) []complex64 {
	for i := 0; i+1 < len(raw); i += 2 {
		dst = append(dst, complex(float32(raw[i])/32768.0, float32(raw[i+1])/32768.0))
	}
	return dst
}
