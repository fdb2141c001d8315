package ringbuffer

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned when writing to a closed buffer.
var ErrClosed = errors.New("ringbuffer: write to closed buffer")

// RingBuffer is a concurrent-safe ring buffer for int16 samples.
//
// Write blocks until space is available and is used where the producer may
// wait (IQ file input). Overwrite never blocks: it drops the oldest samples to
// make room, and is used by the real-time audio path. Interleaved frames stay
// aligned when the buffer is created with NewAligned.
type RingBuffer struct {
	buf        []int16
	size       int
	align      int
	readIndex  int
	writeIndex int
	closed     bool
	dropped    uint64
	mu         sync.Mutex
	cond       *sync.Cond
}

// New creates a new RingBuffer of a given size.
func New(size int) *RingBuffer {
	return NewAligned(size, 1)
}

// NewAligned creates a buffer holding interleaved frames of align samples.
// Capacity is rounded so that a full buffer holds whole frames.
func NewAligned(size, align int) *RingBuffer {
	if align < 1 {
		align = 1
	}
	if size < align+1 {
		size = align + 1
	}
	// One slot stays empty to tell full from empty.
	size = (size-1)/align*align + 1
	rb := &RingBuffer{
		buf:   make([]int16, size),
		size:  size,
		align: align,
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// availableWrite returns the number of samples that can be written to the buffer.
func (rb *RingBuffer) availableWrite() int {
	if rb.writeIndex >= rb.readIndex {
		return rb.size - (rb.writeIndex - rb.readIndex) - 1
	}
	return rb.readIndex - rb.writeIndex - 1
}

// availableRead returns the number of samples available for reading.
func (rb *RingBuffer) availableRead() int {
	if rb.writeIndex >= rb.readIndex {
		return rb.writeIndex - rb.readIndex
	}
	return rb.size - rb.readIndex + rb.writeIndex
}

// Len returns the number of samples waiting to be read.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.availableRead()
}

// Cap returns the number of samples the buffer can hold.
func (rb *RingBuffer) Cap() int {
	return rb.size - 1
}

// Dropped returns the number of samples discarded by Overwrite.
func (rb *RingBuffer) Dropped() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}

// Close marks the buffer as closed, indicating no more writes will occur.
// It broadcasts to all waiting readers to wake them up.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.cond.Broadcast() // Wake up any readers waiting for data.
}

// Reset discards all buffered samples.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readIndex = 0
	rb.writeIndex = 0
	rb.cond.Broadcast()
}

// Write adds data to the buffer, blocking until space is available.
func (rb *RingBuffer) Write(data []int16) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(data)
	for i := 0; i < n; {
		// Wait for space to become available.
		for !rb.closed && rb.availableWrite() == 0 {
			rb.cond.Wait()
		}
		if rb.closed {
			return ErrClosed
		}

		i += rb.copyIn(data[i:])
		rb.cond.Broadcast() // Signal reader that data is available.
	}
	return nil
}

// Overwrite adds data without blocking. When there is not enough room the
// oldest frames are discarded first. It returns the number of samples dropped.
func (rb *RingBuffer) Overwrite(data []int16) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return 0, ErrClosed
	}

	dropped := 0
	// Data larger than the buffer: only its newest part can survive.
	if excess := len(data) - (rb.size - 1); excess > 0 {
		excess = (excess + rb.align - 1) / rb.align * rb.align
		dropped += excess + rb.availableRead()
		data = data[excess:]
		rb.readIndex = rb.writeIndex
	}
	if free := rb.availableWrite(); free < len(data) {
		need := len(data) - free
		need = (need + rb.align - 1) / rb.align * rb.align
		rb.readIndex = (rb.readIndex + need) % rb.size
		dropped += need
	}
	for i := 0; i < len(data); {
		i += rb.copyIn(data[i:])
	}
	rb.dropped += uint64(dropped)
	rb.cond.Broadcast()
	return dropped, nil
}

// copyIn copies as much of data as fits in one contiguous chunk.
func (rb *RingBuffer) copyIn(data []int16) int {
	var written int
	if rb.writeIndex >= rb.readIndex {
		// Write up to the end of the buffer, keeping one slot free when the
		// reader sits at the start.
		end := rb.size
		if rb.readIndex == 0 {
			end = rb.size - 1
		}
		written = copy(rb.buf[rb.writeIndex:end], data)
		rb.writeIndex = (rb.writeIndex + written) % rb.size
	} else {
		// Write up to the read index.
		written = copy(rb.buf[rb.writeIndex:rb.readIndex-1], data)
		rb.writeIndex += written
	}
	return written
}

// Read retrieves n samples from the buffer, blocking until they are available.
// If the buffer is closed and no more data is available, it returns nil.
func (rb *RingBuffer) Read(n int) []int16 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	// Wait for data, but stop waiting if the buffer is closed.
	// Once closed, the reader should proceed to read whatever is left.
	for !rb.closed && rb.availableRead() < n {
		rb.cond.Wait()
	}

	data := make([]int16, min(n, rb.availableRead()))
	if len(data) == 0 {
		return nil
	}
	rb.copyOut(data)
	return data
}

// ReadAvailable blocks until at least one frame is buffered, then copies as
// many whole frames as fit into dst. It returns 0 once the buffer is closed
// and drained.
func (rb *RingBuffer) ReadAvailable(dst []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for !rb.closed && rb.availableRead() < rb.align {
		rb.cond.Wait()
	}
	n := min(len(dst), rb.availableRead())
	n -= n % rb.align
	if n == 0 {
		return 0
	}
	rb.copyOut(dst[:n])
	return n
}

func (rb *RingBuffer) copyOut(data []int16) {
	readSize := len(data)
	if rb.readIndex+readSize <= rb.size {
		copy(data, rb.buf[rb.readIndex:rb.readIndex+readSize])
	} else {
		part1 := rb.size - rb.readIndex
		copy(data, rb.buf[rb.readIndex:])
		copy(data[part1:], rb.buf[0:readSize-part1])
	}
	rb.readIndex = (rb.readIndex + readSize) % rb.size
	rb.cond.Broadcast()
}

// Reader adapts a RingBuffer to an io.Reader producing signed 16-bit
// little-endian samples, the format an audio device consumes.
type Reader struct {
	rb  *RingBuffer
	tmp []int16
}

// NewReader creates an S16LE reader over rb.
func NewReader(rb *RingBuffer) *Reader {
	return &Reader{rb: rb}
}

// Read fills p with whole frames, blocking until at least one is available.
// It returns io.EOF once the buffer is closed and drained.
func (r *Reader) Read(p []byte) (int, error) {
	want := len(p) / 2
	want -= want % r.rb.align
	if want == 0 {
		return 0, io.ErrShortBuffer
	}
	if cap(r.tmp) < want {
		r.tmp = make([]int16, want)
	}
	n := r.rb.ReadAvailable(r.tmp[:want])
	if n == 0 {
		return 0, io.EOF
	}
	for i, s := range r.tmp[:n] {
		binary.LittleEndian.PutUint16(p[2*i:], uint16(s))
	}
	return 2 * n, nil
}
