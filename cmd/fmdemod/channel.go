package main

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"go-fm-demod/internal/config"
	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/demod/bfm"
	"go-fm-demod/internal/demod/nfm"
	"go-fm-demod/internal/demod/wfm"
	"go-fm-demod/internal/region"
)

// channel is a configured demodulator with the accessors the command needs
// beyond demod.Demodulator.
type channel struct {
	demod.Demodulator
	id     uuid.UUID
	audio  *demod.AudioStage
	common demod.Common
	// setGroupHandler is nil unless the mode decodes RDS.
	setGroupHandler func(bfm.GroupHandler)
}

type channelOptions struct {
	mode       string
	inputRate  int
	cfg        *config.Config
	preset     *config.Preset
	offset     int64
	haveOffset bool
}

func deemphasis(cfg *config.Config) float64 {
	if cfg.Deemphasis > 0 {
		return cfg.Deemphasis
	}
	return region.Deemphasis()
}

// newChannel builds the demodulator for opts.mode. Preset values override the
// defaults, and an explicit offset overrides the preset.
func newChannel(opts channelOptions) (*channel, error) {
	cfg := opts.cfg
	switch opts.mode {
	case nfm.Mode:
		s := nfm.DefaultSettings()
		if cfg.Deemphasis > 0 {
			s.Deemphasis = cfg.Deemphasis
		}
		if opts.preset != nil {
			if err := opts.preset.ApplyNFM(&s); err != nil {
				return nil, err
			}
		}
		if opts.haveOffset {
			s.InputFrequencyOffset = opts.offset
		}
		d := nfm.New(opts.inputRate, cfg.AudioBufferFrames)
		d.SetAudioSampleRate(cfg.AudioSampleRate)
		d.Configure(s, false)
		s = d.Settings()
		return &channel{Demodulator: d, id: d.ID(), audio: d.Audio(), common: s.Common}, nil

	case wfm.Mode:
		s := wfm.DefaultSettings()
		s.Deemphasis = deemphasis(cfg)
		if opts.preset != nil {
			if err := opts.preset.ApplyWFM(&s); err != nil {
				return nil, err
			}
		}
		if opts.haveOffset {
			s.InputFrequencyOffset = opts.offset
		}
		d := wfm.New(opts.inputRate, cfg.AudioBufferFrames)
		d.SetAudioSampleRate(cfg.AudioSampleRate)
		d.Configure(s, false)
		s = d.Settings()
		return &channel{Demodulator: d, id: d.ID(), audio: d.Audio(), common: s.Common}, nil

	case bfm.Mode:
		s := bfm.DefaultSettings()
		s.Deemphasis = deemphasis(cfg)
		if opts.preset != nil {
			if err := opts.preset.ApplyBFM(&s); err != nil {
				return nil, err
			}
		}
		if opts.haveOffset {
			s.InputFrequencyOffset = opts.offset
		}
		d := bfm.New(opts.inputRate, cfg.AudioBufferFrames)
		d.SetAudioSampleRate(cfg.AudioSampleRate)
		d.Configure(s, false)
		s = d.Settings()
		log.Printf("[BFM] deemphasis %.0f µs, stereo %v, RDS %v", s.Deemphasis, s.AudioStereo, s.RDSActive)
		return &channel{
			Demodulator:     d,
			id:              d.ID(),
			audio:           d.Audio(),
			common:          s.Common,
			setGroupHandler: d.SetGroupHandler,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown mode %q", config.ErrInvalidConfig, opts.mode)
}
