package config

import (
	"fmt"
	"slices"

	"gopkg.in/ini.v1"

	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/demod/bfm"
	"go-fm-demod/internal/demod/nfm"
	"go-fm-demod/internal/demod/wfm"
)

// Presets is a set of named channel presets read from an INI file. Keys in
// the unnamed section apply to every preset that does not set them.
//
//	volume = 0.8
//
//	[marine16]
//	mode = nfm
//	offset = -25000
//	ctcss_on = false
type Presets struct {
	file     *ini.File
	defaults *ini.Section
}

// LoadPresets reads presets from a file name, a []byte or an io.Reader.
func LoadPresets(source any) (*Presets, error) {
	f, err := ini.LoadSources(ini.LoadOptions{}, source)
	if err != nil {
		return nil, fmt.Errorf("%w: presets: %v", ErrInvalidConfig, err)
	}
	f.BlockMode = false
	return &Presets{file: f, defaults: f.Section(ini.DefaultSection)}, nil
}

// Names lists the presets in file order.
func (p *Presets) Names() []string {
	names := p.file.SectionStrings()
	return slices.DeleteFunc(names, func(s string) bool { return s == ini.DefaultSection })
}

// Get returns the named preset.
func (p *Presets) Get(name string) (*Preset, error) {
	if name == "" || name == ini.DefaultSection {
		return nil, fmt.Errorf("%w: preset name required", ErrInvalidConfig)
	}
	s, err := p.file.GetSection(name)
	if err != nil {
		return nil, fmt.Errorf("%w: preset %q not found", ErrInvalidConfig, name)
	}
	return &Preset{Name: name, section: s, defaults: p.defaults}, nil
}

// Preset is one channel preset. Unset keys leave settings unchanged.
type Preset struct {
	Name     string
	section  *ini.Section
	defaults *ini.Section
}

func (p *Preset) key(setting string) (*ini.Key, bool) {
	if p.section.HasKey(setting) {
		return p.section.Key(setting), true
	}
	if p.defaults.HasKey(setting) {
		return p.defaults.Key(setting), true
	}
	return nil, false
}

// Mode returns the preset's demodulator, or fallback when unset.
func (p *Preset) Mode(fallback string) string {
	if k, ok := p.key("mode"); ok {
		return k.String()
	}
	return fallback
}

func (p *Preset) getString(setting string, dst *string) {
	if k, ok := p.key(setting); ok {
		*dst = k.String()
	}
}

func (p *Preset) getFloat64(setting string, dst *float64) error {
	k, ok := p.key(setting)
	if !ok {
		return nil
	}
	v, err := k.Float64()
	if err != nil {
		return fmt.Errorf("%w: preset %s: %s: %v", ErrInvalidConfig, p.Name, setting, err)
	}
	*dst = v
	return nil
}

func (p *Preset) getInt64(setting string, dst *int64) error {
	k, ok := p.key(setting)
	if !ok {
		return nil
	}
	v, err := k.Int64()
	if err != nil {
		return fmt.Errorf("%w: preset %s: %s: %v", ErrInvalidConfig, p.Name, setting, err)
	}
	*dst = v
	return nil
}

func (p *Preset) getInt(setting string, dst *int) error {
	k, ok := p.key(setting)
	if !ok {
		return nil
	}
	v, err := k.Int()
	if err != nil {
		return fmt.Errorf("%w: preset %s: %s: %v", ErrInvalidConfig, p.Name, setting, err)
	}
	*dst = v
	return nil
}

func (p *Preset) getUint32(setting string, dst *uint32) error {
	k, ok := p.key(setting)
	if !ok {
		return nil
	}
	v, err := k.Uint64()
	if err != nil || v > 1<<32-1 {
		return fmt.Errorf("%w: preset %s: %s: %q is not a 32 bit unsigned value", ErrInvalidConfig, p.Name, setting, k.String())
	}
	*dst = uint32(v)
	return nil
}

func (p *Preset) getBool(setting string, dst *bool) error {
	k, ok := p.key(setting)
	if !ok {
		return nil
	}
	v, err := k.Bool()
	if err != nil {
		return fmt.Errorf("%w: preset %s: %s: %v", ErrInvalidConfig, p.Name, setting, err)
	}
	*dst = v
	return nil
}

// ApplyCommon overlays the settings shared by every demodulator.
func (p *Preset) ApplyCommon(c *demod.Common) error {
	port := uint32(c.UDPPort)
	errs := []error{
		p.getInt64("offset", &c.InputFrequencyOffset),
		p.getFloat64("rf_bandwidth", &c.RFBandwidth),
		p.getFloat64("af_bandwidth", &c.AFBandwidth),
		p.getFloat64("volume", &c.Volume),
		p.getBool("mute", &c.AudioMute),
		p.getFloat64("squelch", &c.Squelch),
		p.getInt("squelch_hold_open", &c.SquelchHoldOpen),
		p.getInt("squelch_hold_close", &c.SquelchHoldClose),
		p.getFloat64("deemphasis", &c.Deemphasis),
		p.getBool("udp_copy", &c.CopyAudioToUDP),
		p.getUint32("udp_port", &port),
		p.getUint32("color", &c.RGBColor),
	}
	p.getString("udp_address", &c.UDPAddress)
	p.getString("title", &c.Title)
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	if port > 65535 {
		return fmt.Errorf("%w: preset %s: udp_port %d out of range", ErrInvalidConfig, p.Name, port)
	}
	c.UDPPort = uint16(port)
	return nil
}

// ApplyNFM overlays the preset on NFM settings.
func (p *Preset) ApplyNFM(s *nfm.Settings) error {
	if err := p.ApplyCommon(&s.Common); err != nil {
		return err
	}
	for _, err := range []error{
		p.getFloat64("fm_deviation", &s.FMDeviation),
		p.getBool("ctcss_on", &s.CTCSSOn),
		p.getInt("ctcss_index", &s.CTCSSIndex),
		p.getBool("high_pass", &s.HighPass),
		p.getBool("af_squelch", &s.AFSquelch),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyWFM overlays the preset on WFM settings.
func (p *Preset) ApplyWFM(s *wfm.Settings) error {
	return p.ApplyCommon(&s.Common)
}

// ApplyBFM overlays the preset on BFM settings.
func (p *Preset) ApplyBFM(s *bfm.Settings) error {
	if err := p.ApplyCommon(&s.Common); err != nil {
		return err
	}
	for _, err := range []error{
		p.getBool("stereo", &s.AudioStereo),
		p.getBool("lsb_stereo", &s.LSBStereo),
		p.getBool("show_pilot", &s.ShowPilot),
		p.getBool("rds", &s.RDSActive),
		p.getBool("rbds", &s.RBDS),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
