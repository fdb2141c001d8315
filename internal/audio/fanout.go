// Package audio holds the sinks for demodulated PCM: the sound card, WAV
// recording and RTP over UDP.
package audio

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
)

// Sink consumes interleaved int16 PCM.
type Sink interface {
	WritePCM(pcm []int16) error
	Close() error
}

// Fanout copies PCM from the demodulator's tap to sinks, each served by its
// own goroutine. A sink that falls behind loses blocks instead of stalling the
// demodulator.
type Fanout struct {
	mu      sync.Mutex
	sinks   []*fanoutSink
	dropped atomic.Uint64
	closed  bool
}

type fanoutSink struct {
	name string
	sink Sink
	ch   chan []int16
	done chan error
}

// NewFanout creates an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add starts serving s with a queue of depth blocks.
func (f *Fanout) Add(name string, s Sink, depth int) {
	fs := &fanoutSink{
		name: name,
		sink: s,
		ch:   make(chan []int16, max(depth, 1)),
		done: make(chan error, 1),
	}
	go fs.run()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, fs)
}

func (fs *fanoutSink) run() {
	var failed error
	for pcm := range fs.ch {
		if failed != nil {
			continue
		}
		if err := fs.sink.WritePCM(pcm); err != nil {
			log.Printf("[AUDIO] %s: %v, sink disabled", fs.name, err)
			failed = err
		}
	}
	fs.done <- failed
}

// Tap hands a copy of pcm to every sink. It never blocks.
func (f *Fanout) Tap(pcm []int16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.sinks) == 0 {
		return
	}
	block := make([]int16, len(pcm))
	copy(block, pcm)
	for _, fs := range f.sinks {
		select {
		case fs.ch <- block:
		default:
			f.dropped.Add(1)
		}
	}
}

// Dropped returns the number of blocks not delivered to a full sink.
func (f *Fanout) Dropped() uint64 {
	return f.dropped.Load()
}

// Close flushes the queued blocks and closes every sink.
func (f *Fanout) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	sinks := f.sinks
	f.mu.Unlock()

	var errs []error
	for _, fs := range sinks {
		close(fs.ch)
		if err := <-fs.done; err != nil {
			errs = append(errs, err)
		}
		if err := fs.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
