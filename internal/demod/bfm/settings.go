package bfm

import "go-fm-demod/internal/demod"

// Mode names the variant in settings blobs and logs.
const Mode = "bfm"

// RF bandwidth limits. The channel rate must carry the 57 kHz RDS subcarrier.
const (
	MinRFBandwidth = 100000.0
	MaxRFBandwidth = 300000.0
)

// Settings configures a broadcast FM demodulator.
type Settings struct {
	demod.Common `yaml:",inline"`

	AudioStereo bool `yaml:"audioStereo"`
	// LSBStereo decodes L-R from its lower sideband only.
	LSBStereo bool `yaml:"lsbStereo"`
	// ShowPilot sends the regenerated pilot to the baseband tap instead of
	// the multiplex.
	ShowPilot bool `yaml:"showPilot"`
	RDSActive bool `yaml:"rdsActive"`
	// RBDS selects the North American programme type names.
	RBDS bool `yaml:"rbds"`
}

// DefaultSettings returns the settings a new channel starts with.
func DefaultSettings() Settings {
	return Settings{
		Common: demod.Common{
			RFBandwidth:      200000,
			AFBandwidth:      15000,
			Volume:           1.0,
			Squelch:          -60,
			SquelchHoldOpen:  3000,
			SquelchHoldClose: 3000,
			Deemphasis:       50,
			UDPAddress:       "127.0.0.1",
			UDPPort:          9999,
			RGBColor:         0x8080ff,
			Title:            "Broadcast FM Demod",
		},
		AudioStereo: true,
		RDSActive:   true,
	}
}

// Clamp forces every field into range.
func (s *Settings) Clamp() {
	s.Common.Clamp(MinRFBandwidth, MaxRFBandwidth)
	s.AFBandwidth = min(s.AFBandwidth, 15000)
}
