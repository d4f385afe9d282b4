// Package config provides the configuration schema and loader for the
// RoadScribe voice logger.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Capture    CaptureConfig    `yaml:"capture"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ServerConfig holds logging and metrics settings.
type ServerConfig struct {
	// MetricsAddr is the TCP address the Prometheus /metrics endpoint
	// listens on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// RecognizerConfig holds the cloud recognition service credentials and audio
// format. Immutable for the lifetime of a connection; changing it requires
// tearing down and re-establishing the streaming session.
type RecognizerConfig struct {
	// AccessKeyID and AccessKeySecret sign the CreateToken request.
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`

	// AppKey identifies the recognition project.
	AppKey string `yaml:"app_key"`

	// SampleRate is the PCM sample rate in Hz. Only 16000 is supported.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the channel count. Only mono (1) is supported.
	Channels int `yaml:"channels"`
}

// CaptureConfig configures the microphone source.
type CaptureConfig struct {
	// Command is the capture command spawned to read the microphone, writing
	// raw 32-bit little-endian float mono samples to stdout.
	// Example: "arecord -q -f FLOAT_LE -r 16000 -c 1 -t raw"
	Command string `yaml:"command"`

	// SampleRate is the rate the capture command delivers, in Hz. When it
	// differs from the recognizer's 16 kHz the pipeline resamples. Devices
	// that can only open at 44100 or 48000 set it here.
	SampleRate int `yaml:"sample_rate"`
}

// StorageConfig configures record/session persistence.
type StorageConfig struct {
	// Path is the SQLite database file. Empty keeps everything in memory.
	Path string `yaml:"path"`
}
