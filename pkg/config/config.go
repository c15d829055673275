package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the relay server configuration.
type Config struct {
	ServerAddr   string   `yaml:"server_addr"`
	TrustProxy   bool     `yaml:"trust_proxy"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"` // bytes for a verification payload
	Outputs      []string `yaml:"outputs"`        // enabled sinks: log, kafka, postgres, nats

	// Site tokens accepted in X-Script-Token / X-Passive-Captcha-Token.
	// Empty means any token is accepted.
	SiteTokens     []string `yaml:"site_tokens"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	ClassifierURL      string        `yaml:"classifier_url"` // upstream verdict endpoint; empty = always fail open
	ClassifierTimeout  time.Duration `yaml:"classifier_timeout"`
	FailOpenConfidence float64       `yaml:"fail_open_confidence"`

	RedisAddr     string        `yaml:"redis_addr"` // empty = in-memory submission tracker
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int64         `yaml:"redis_db"`
	TrackerTTL    time.Duration `yaml:"tracker_ttl"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}
func getInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
func getFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
func getDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getStringSlice(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Defaults is the configuration used when neither file nor env set a value.
func Defaults() Config {
	return Config{
		ServerAddr:         ":19890",
		MaxBodyBytes:       1 << 20, // 1 MiB
		Outputs:            []string{"log"},
		ClassifierTimeout:  5 * time.Second,
		FailOpenConfidence: DefaultFailOpenConfidence,
		TrackerTTL:         30 * time.Minute,
		MetricsAddr:        ":9090",
	}
}

// Load reads the configuration from the environment only.
func Load() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

// LoadFile reads a YAML file over the defaults, then applies env overrides.
// A missing file is not an error.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "parse config %s", path)
			}
		case !os.IsNotExist(err):
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ServerAddr = getOr("SERVER_ADDR", cfg.ServerAddr)
	cfg.TrustProxy = getBool("TRUST_PROXY", cfg.TrustProxy)
	cfg.MaxBodyBytes = getInt64("MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.Outputs = getStringSlice("OUTPUTS", strings.Join(cfg.Outputs, ","))
	cfg.SiteTokens = getStringSlice("SITE_TOKENS", strings.Join(cfg.SiteTokens, ","))
	cfg.AllowedOrigins = getStringSlice("ALLOWED_ORIGINS", strings.Join(cfg.AllowedOrigins, ","))
	cfg.ClassifierURL = getOr("CLASSIFIER_URL", cfg.ClassifierURL)
	cfg.ClassifierTimeout = getDuration("CLASSIFIER_TIMEOUT", cfg.ClassifierTimeout)
	cfg.FailOpenConfidence = getFloat("FAIL_OPEN_CONFIDENCE", cfg.FailOpenConfidence)
	cfg.RedisAddr = getOr("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getOr("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getInt64("REDIS_DB", cfg.RedisDB)
	cfg.TrackerTTL = getDuration("TRACKER_TTL", cfg.TrackerTTL)
	cfg.MetricsEnabled = getBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = getOr("METRICS_ADDR", cfg.MetricsAddr)
}
