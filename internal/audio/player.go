package audio

import (
	"fmt"

	"github.com/ebitengine/oto/v3"

	"go-fm-demod/internal/ringbuffer"
)

// Player plays a stereo PCM FIFO on the default output device.
type Player struct {
	player *oto.Player
}

// NewPlayer opens the output device at sampleRate and starts playing fifo.
// Only one Player may exist per process.
func NewPlayer(sampleRate int, fifo *ringbuffer.RingBuffer) (*Player, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	<-ready

	p := ctx.NewPlayer(ringbuffer.NewReader(fifo))
	p.Play()
	return &Player{player: p}, nil
}

// Close stops playback.
func (p *Player) Close() error {
	return p.player.Close()
}
