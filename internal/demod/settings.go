package demod

import (
	"fmt"
	"log"
	"math"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"
)

// SettingsVersion is written into every serialized settings blob.
const SettingsVersion = "1.1.0"

// settingsCompat lists the blob versions Deserialize accepts.
var settingsCompat = mustConstraint(">= 1.0, < 2.0")

func mustConstraint(c string) version.Constraints {
	cs, err := version.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

// Common holds the settings shared by all FM variants.
type Common struct {
	InputFrequencyOffset int64   `yaml:"inputFrequencyOffset"`
	RFBandwidth          float64 `yaml:"rfBandwidth"`
	AFBandwidth          float64 `yaml:"afBandwidth"`
	Volume               float64 `yaml:"volume"`
	AudioMute            bool    `yaml:"audioMute"`

	// Squelch is the gate threshold in dB relative to full scale.
	Squelch float64 `yaml:"squelch"`
	// Hold counts are in channel-rate samples.
	SquelchHoldOpen  int `yaml:"squelchHoldOpen"`
	SquelchHoldClose int `yaml:"squelchHoldClose"`

	// Deemphasis is the time constant in microseconds; 0 disables it.
	Deemphasis float64 `yaml:"deemphasis"`

	CopyAudioToUDP bool   `yaml:"copyAudioToUDP"`
	UDPAddress     string `yaml:"udpAddress"`
	UDPPort        uint16 `yaml:"udpPort"`

	RGBColor uint32 `yaml:"rgbColor"`
	Title    string `yaml:"title"`
}

// Bounds shared by all variants.
const (
	MinSquelchDB  = -100.0
	MaxSquelchDB  = 0.0
	MaxVolume     = 10.0
	MaxDeemphasis = 1000.0 // µs
	maxHold       = 1 << 20
)

// Clamp forces the fields into range, with the RF bandwidth limited to
// [minRF, maxRF].
func (c *Common) Clamp(minRF, maxRF float64) {
	c.RFBandwidth = ClampFloat(c.RFBandwidth, minRF, maxRF)
	c.AFBandwidth = ClampFloat(c.AFBandwidth, 100, c.RFBandwidth/2)
	c.Volume = ClampFloat(c.Volume, 0, MaxVolume)
	c.Squelch = ClampFloat(c.Squelch, MinSquelchDB, MaxSquelchDB)
	c.SquelchHoldOpen = min(max(c.SquelchHoldOpen, 1), maxHold)
	c.SquelchHoldClose = min(max(c.SquelchHoldClose, 1), maxHold)
	c.Deemphasis = ClampFloat(c.Deemphasis, 0, MaxDeemphasis)
	if c.UDPAddress == "" {
		c.UDPAddress = "127.0.0.1"
	}
	if c.UDPPort == 0 {
		c.UDPPort = 9999
	}
	c.RGBColor &= 0xffffff
}

// SquelchLevel converts the dB threshold to a linear |x|² level.
func (c Common) SquelchLevel() float64 {
	return math.Pow(10, c.Squelch/10)
}

// DeemphasisTau returns the deemphasis time constant in seconds.
func (c Common) DeemphasisTau() float64 {
	return c.Deemphasis * 1e-6
}

// ClampFloat limits v to [lo, hi]; NaN becomes lo.
func ClampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

type settingsBlob struct {
	Version  string    `yaml:"version"`
	Mode     string    `yaml:"mode"`
	Settings yaml.Node `yaml:"settings"`
}

// EncodeSettings serializes settings of the given mode into a versioned blob.
func EncodeSettings(mode string, settings any) []byte {
	var node yaml.Node
	if err := node.Encode(settings); err != nil {
		log.Printf("[%s] encode settings: %v", mode, err)
		return nil
	}
	data, err := yaml.Marshal(settingsBlob{Version: SettingsVersion, Mode: mode, Settings: node})
	if err != nil {
		log.Printf("[%s] encode settings: %v", mode, err)
		return nil
	}
	return data
}

// DecodeSettings parses a blob written by EncodeSettings into out. Fields
// missing from the blob keep the values already in out. Errors wrap
// ErrInvalidSettings.
func DecodeSettings(data []byte, mode string, out any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty blob", ErrInvalidSettings)
	}
	var blob settingsBlob
	if err := yaml.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	v, err := version.NewVersion(blob.Version)
	if err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrInvalidSettings, blob.Version, err)
	}
	if !settingsCompat.Check(v) {
		return fmt.Errorf("%w: unsupported version %s", ErrInvalidSettings, v)
	}
	if blob.Mode != mode {
		return fmt.Errorf("%w: blob is for %q, not %q", ErrInvalidSettings, blob.Mode, mode)
	}
	if blob.Settings.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: missing settings", ErrInvalidSettings)
	}
	if err := blob.Settings.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}
