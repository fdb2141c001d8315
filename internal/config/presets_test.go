package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fm-demod/internal/demod/bfm"
	"go-fm-demod/internal/demod/nfm"
	"go-fm-demod/internal/demod/wfm"
)

const testPresets = `
volume = 0.5
squelch = -45

[marine16]
mode = nfm
offset = -25000
fm_deviation = 2500
ctcss_on = true
ctcss_index = 12
af_squelch = on
title = Marine 16

[radio1]
mode = bfm
volume = 1.5
lsb_stereo = yes
rds = false
udp_copy = true
udp_port = 7355
color = 16711935

[wide]
rf_bandwidth = 120000

[broken]
squelch = loud
`

func loadTestPresets(t *testing.T) *Presets {
	t.Helper()
	p, err := LoadPresets([]byte(testPresets))
	require.NoError(t, err)
	return p
}

func TestPresets_Names(t *testing.T) {
	assert.Equal(t, []string{"marine16", "radio1", "wide", "broken"}, loadTestPresets(t).Names())
}

func TestPresets_ApplyNFM(t *testing.T) {
	p, err := loadTestPresets(t).Get("marine16")
	require.NoError(t, err)
	assert.Equal(t, "nfm", p.Mode("bfm"))

	s := nfm.DefaultSettings()
	require.NoError(t, p.ApplyNFM(&s))
	assert.Equal(t, int64(-25000), s.InputFrequencyOffset)
	assert.Equal(t, 2500.0, s.FMDeviation)
	assert.True(t, s.CTCSSOn)
	assert.Equal(t, 12, s.CTCSSIndex)
	assert.True(t, s.AFSquelch)
	assert.Equal(t, "Marine 16", s.Title)
	// From the unnamed section.
	assert.Equal(t, 0.5, s.Volume)
	assert.Equal(t, -45.0, s.Squelch)
	// Unset keys keep the defaults.
	assert.Equal(t, nfm.DefaultSettings().RFBandwidth, s.RFBandwidth)
}

func TestPresets_ApplyBFM(t *testing.T) {
	p, err := loadTestPresets(t).Get("radio1")
	require.NoError(t, err)

	s := bfm.DefaultSettings()
	require.NoError(t, p.ApplyBFM(&s))
	assert.Equal(t, 1.5, s.Volume)
	assert.True(t, s.LSBStereo)
	assert.False(t, s.RDSActive)
	assert.True(t, s.AudioStereo)
	assert.True(t, s.CopyAudioToUDP)
	assert.Equal(t, uint16(7355), s.UDPPort)
	assert.Equal(t, uint32(0xff00ff), s.RGBColor)
}

func TestPresets_ApplyWFM(t *testing.T) {
	p, err := loadTestPresets(t).Get("wide")
	require.NoError(t, err)
	assert.Equal(t, "wfm", p.Mode("wfm"))

	s := wfm.DefaultSettings()
	require.NoError(t, p.ApplyWFM(&s))
	assert.Equal(t, 120000.0, s.RFBandwidth)
}

func TestPresets_Errors(t *testing.T) {
	presets := loadTestPresets(t)

	_, err := presets.Get("missing")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = presets.Get("")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := presets.Get("broken")
	require.NoError(t, err)
	s := wfm.DefaultSettings()
	assert.ErrorIs(t, p.ApplyWFM(&s), ErrInvalidConfig)

	bad, err := LoadPresets([]byte("[radio1]\nudp_port = 70000\n"))
	require.NoError(t, err)
	p, err = bad.Get("radio1")
	require.NoError(t, err)
	b := bfm.DefaultSettings()
	assert.ErrorIs(t, p.ApplyBFM(&b), ErrInvalidConfig)
}
