package wfm

import "go-fm-demod/internal/demod"

// Mode names the variant in settings blobs and logs.
const Mode = "wfm"

// RF bandwidth limits.
const (
	MinRFBandwidth = 10000.0
	MaxRFBandwidth = 300000.0
)

// Settings configures a wideband FM demodulator. The peak deviation is half
// the RF bandwidth.
type Settings struct {
	demod.Common `yaml:",inline"`
}

// DefaultSettings returns the settings a new channel starts with.
func DefaultSettings() Settings {
	return Settings{
		Common: demod.Common{
			RFBandwidth:      80000,
			AFBandwidth:      15000,
			Volume:           1.0,
			Squelch:          -60,
			SquelchHoldOpen:  1200,
			SquelchHoldClose: 1200,
			Deemphasis:       50,
			UDPAddress:       "127.0.0.1",
			UDPPort:          9999,
			RGBColor:         0x00ff00,
			Title:            "WFM Demodulator",
		},
	}
}

// Clamp forces every field into range.
func (s *Settings) Clamp() {
	s.Common.Clamp(MinRFBandwidth, MaxRFBandwidth)
}
