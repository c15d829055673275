package config

import (
	"math"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const (
	DefaultSamplingRate       = 0.1
	DefaultBatchSize          = 50
	DefaultSendInterval       = 30000 // ms
	DefaultMaxRetries         = 3
	DefaultFailOpenConfidence = 0.5
	DefaultRequestTimeout     = 10000 // ms
)

// Collector holds the embedding options of one collector instance. Keys
// match the host-facing option names.
type Collector struct {
	APIEndpoint string `mapstructure:"apiEndpoint" yaml:"apiEndpoint"`
	ScriptToken string `mapstructure:"scriptToken" yaml:"scriptToken"`
	WebsiteURL  string `mapstructure:"websiteUrl" yaml:"websiteUrl"`

	CollectMouseMovements   bool `mapstructure:"collectMouseMovements" yaml:"collectMouseMovements"`
	CollectKeyboardPatterns bool `mapstructure:"collectKeyboardPatterns" yaml:"collectKeyboardPatterns"`
	CollectScrollBehavior   bool `mapstructure:"collectScrollBehavior" yaml:"collectScrollBehavior"`
	CollectTouchPatterns    bool `mapstructure:"collectTouchPatterns" yaml:"collectTouchPatterns"`
	CollectTimingData       bool `mapstructure:"collectTimingData" yaml:"collectTimingData"`
	CollectDeviceInfo       bool `mapstructure:"collectDeviceInfo" yaml:"collectDeviceInfo"`

	SamplingRate float64 `mapstructure:"samplingRate" yaml:"samplingRate"`
	BatchSize    int     `mapstructure:"batchSize" yaml:"batchSize"`
	SendInterval int64   `mapstructure:"sendInterval" yaml:"sendInterval"` // ms
	MaxRetries   int     `mapstructure:"maxRetries" yaml:"maxRetries"`
	DebugMode    bool    `mapstructure:"debugMode" yaml:"debugMode"`

	FailOpenConfidence float64 `mapstructure:"failOpenConfidence" yaml:"failOpenConfidence"`
	RequestTimeout     int64   `mapstructure:"requestTimeout" yaml:"requestTimeout"` // ms
}

// CollectorDefaults enables every channel.
func CollectorDefaults() Collector {
	return Collector{
		CollectMouseMovements:   true,
		CollectKeyboardPatterns: true,
		CollectScrollBehavior:   true,
		CollectTouchPatterns:    true,
		CollectTimingData:       true,
		CollectDeviceInfo:       true,
		SamplingRate:            DefaultSamplingRate,
		BatchSize:               DefaultBatchSize,
		SendInterval:            DefaultSendInterval,
		MaxRetries:              DefaultMaxRetries,
		FailOpenConfidence:      DefaultFailOpenConfidence,
		RequestTimeout:          DefaultRequestTimeout,
	}
}

// CollectorFromOptions decodes host options over the defaults. Unknown keys
// are ignored and string values are coerced ("0.5", "true").
func CollectorFromOptions(opts map[string]any) (Collector, error) {
	cfg := CollectorDefaults()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Collector{}, errors.Wrap(err, "options decoder")
	}
	if err := dec.Decode(opts); err != nil {
		return Collector{}, errors.Wrap(err, "decode collector options")
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize clamps out-of-range values back into their domain.
func (c *Collector) Normalize() {
	switch {
	case math.IsNaN(c.SamplingRate) || c.SamplingRate < 0:
		c.SamplingRate = 0
	case c.SamplingRate > 1:
		c.SamplingRate = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SendInterval <= 0 {
		c.SendInterval = DefaultSendInterval
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if math.IsNaN(c.FailOpenConfidence) || c.FailOpenConfidence < 0 || c.FailOpenConfidence > 1 {
		c.FailOpenConfidence = DefaultFailOpenConfidence
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

func (c Collector) Interval() time.Duration {
	return time.Duration(c.SendInterval) * time.Millisecond
}

func (c Collector) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}
