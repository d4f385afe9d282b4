package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Recognizer.SampleRate == 0 {
		cfg.Recognizer.SampleRate = 16000
	}
	if cfg.Recognizer.Channels == 0 {
		cfg.Recognizer.Channels = 1
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = 16000
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Recognizer.AccessKeyID == "" {
		errs = append(errs, fmt.Errorf("recognizer.access_key_id is required"))
	}
	if cfg.Recognizer.AccessKeySecret == "" {
		errs = append(errs, fmt.Errorf("recognizer.access_key_secret is required"))
	}
	if cfg.Recognizer.AppKey == "" {
		errs = append(errs, fmt.Errorf("recognizer.app_key is required"))
	}
	if cfg.Recognizer.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("recognizer.sample_rate %d is unsupported; the gateway requires 16000", cfg.Recognizer.SampleRate))
	}
	if cfg.Recognizer.Channels != 1 {
		errs = append(errs, fmt.Errorf("recognizer.channels %d is unsupported; the gateway requires mono", cfg.Recognizer.Channels))
	}

	if cfg.Capture.Command == "" {
		errs = append(errs, fmt.Errorf("capture.command is required"))
	}
	if cfg.Capture.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is invalid; must be a positive rate in Hz", cfg.Capture.SampleRate))
	}

	return errors.Join(errs...)
}
