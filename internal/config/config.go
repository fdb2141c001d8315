package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation and parse error.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all the configuration parameters for the application.
type Config struct {
	Mode            string `yaml:"mode"`
	IQSampleRate    int    `yaml:"iqSampleRate"`
	AudioSampleRate int    `yaml:"audioSampleRate"`
	// SampleBlockSize is the number of complex samples per Feed.
	SampleBlockSize int `yaml:"sampleBlockSize"`
	// RingBufferSize is the IQ buffer between the reader and the pipeline,
	// in int16 values (I and Q counted separately).
	RingBufferSize int `yaml:"ringBufferSize"`
	// AudioBufferFrames sizes the audio FIFO in stereo frames.
	AudioBufferFrames int `yaml:"audioBufferFrames"`
	// ChunkSize is the read size of raw IQ files in bytes.
	ChunkSize int `yaml:"chunkSize"`
	// Realtime paces the pipeline to the IQ sample rate.
	Realtime bool `yaml:"realtime"`
	// Deemphasis in µs; zero picks the regional value.
	Deemphasis float64 `yaml:"deemphasis"`

	Audio   AudioConfig   `yaml:"audio"`
	Metrics MetricsConfig `yaml:"metrics"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// AudioConfig selects the audio sinks.
type AudioConfig struct {
	Play   bool   `yaml:"play"`
	Record string `yaml:"record"` // WAV path
	RTP    string `yaml:"rtp"`    // host:port
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

// MQTTConfig contains the broker settings for RDS publishing.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // tcp://host:1883
	ClientID    string `yaml:"clientId"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topicPrefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// New returns a new Config with default values.
func New() *Config {
	return &Config{
		Mode:              "bfm",
		IQSampleRate:      2_000_000,
		AudioSampleRate:   48_000,
		SampleBlockSize:   4096,
		RingBufferSize:    2 * 2_000_000 * 2, // 2s of IQ (I+Q)
		AudioBufferFrames: 48_000,
		ChunkSize:         8192,
		Realtime:          true,
		Metrics: MetricsConfig{
			Namespace: "fmdemod",
		},
		MQTT: MQTTConfig{
			ClientID:    "fmdemod",
			TopicPrefix: "fmdemod/rds",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse overlays YAML data on the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields a pipeline cannot start without.
func (c *Config) Validate() error {
	switch c.Mode {
	case "bfm", "nfm", "wfm":
	default:
		return fmt.Errorf("%w: mode %q must be bfm, nfm or wfm", ErrInvalidConfig, c.Mode)
	}
	if c.IQSampleRate < 8000 {
		return fmt.Errorf("%w: iqSampleRate must be at least 8000", ErrInvalidConfig)
	}
	if c.AudioSampleRate < 8000 {
		return fmt.Errorf("%w: audioSampleRate must be at least 8000", ErrInvalidConfig)
	}
	if c.SampleBlockSize < 64 {
		return fmt.Errorf("%w: sampleBlockSize must be at least 64", ErrInvalidConfig)
	}
	if c.RingBufferSize < 4*c.SampleBlockSize {
		return fmt.Errorf("%w: ringBufferSize must hold at least two blocks", ErrInvalidConfig)
	}
	if c.AudioBufferFrames < 1024 {
		return fmt.Errorf("%w: audioBufferFrames must be at least 1024", ErrInvalidConfig)
	}
	if c.ChunkSize < 4 || c.ChunkSize%4 != 0 {
		return fmt.Errorf("%w: chunkSize must be a positive multiple of 4", ErrInvalidConfig)
	}
	if c.Deemphasis < 0 || c.Deemphasis > 1000 {
		return fmt.Errorf("%w: deemphasis must be within 0..1000 µs", ErrInvalidConfig)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalidConfig)
	}
	return nil
}
