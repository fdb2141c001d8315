package nfm

import (
	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/dsp"
)

// Mode names the variant in settings blobs and logs.
const Mode = "nfm"

// RF bandwidth limits.
const (
	MinRFBandwidth = 1000.0
	MaxRFBandwidth = 40000.0
)

// Settings configures a narrowband FM demodulator.
type Settings struct {
	demod.Common `yaml:",inline"`

	// FMDeviation is the peak deviation in Hz that reads as full scale.
	FMDeviation float64 `yaml:"fmDeviation"`
	// CTCSSOn gates the squelch on the tone at CTCSSIndex.
	CTCSSOn    bool `yaml:"ctcssOn"`
	CTCSSIndex int  `yaml:"ctcssIndex"`
	// HighPass removes sub-audible tones from the audio.
	HighPass bool `yaml:"highPass"`
	// AFSquelch gates on discriminator noise above the voice band instead
	// of channel power. Squelch is then the tolerated noise level in dB.
	AFSquelch bool `yaml:"afSquelch"`
}

// DefaultSettings returns the settings a new channel starts with.
func DefaultSettings() Settings {
	return Settings{
		Common: demod.Common{
			RFBandwidth:      12500,
			AFBandwidth:      3000,
			Volume:           1.0,
			Squelch:          -30,
			SquelchHoldOpen:  480,
			SquelchHoldClose: 480,
			UDPAddress:       "127.0.0.1",
			UDPPort:          9999,
			RGBColor:         0xff0000,
			Title:            "NFM Demodulator",
		},
		FMDeviation: 5000,
		HighPass:    true,
	}
}

// Clamp forces every field into range.
func (s *Settings) Clamp() {
	s.Common.Clamp(MinRFBandwidth, MaxRFBandwidth)
	s.FMDeviation = demod.ClampFloat(s.FMDeviation, 100, s.RFBandwidth/2)
	s.CTCSSIndex = min(max(s.CTCSSIndex, 0), len(dsp.CTCSSTones)-1)
}
