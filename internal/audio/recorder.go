package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes 16 bit PCM to a WAV file.
type Recorder struct {
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
	frames  int64
}

// NewRecorder creates path and writes a WAV header for the given format.
func NewRecorder(path string, sampleRate, channels int) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	return &Recorder{
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, 16, channels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// WritePCM appends interleaved samples.
func (r *Recorder) WritePCM(pcm []int16) error {
	r.buf.Data = r.buf.Data[:0]
	for _, s := range pcm {
		r.buf.Data = append(r.buf.Data, int(s))
	}
	if err := r.encoder.Write(r.buf); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}
	r.frames += int64(len(pcm) / r.buf.Format.NumChannels)
	return nil
}

// Frames returns the number of frames written.
func (r *Recorder) Frames() int64 {
	return r.frames
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	if err := r.encoder.Close(); err != nil {
		_ = r.file.Close()
		return fmt.Errorf("failed to finalize recording: %w", err)
	}
	return r.file.Close()
}
