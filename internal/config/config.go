// Package config provides configuration loading and validation for adbcam.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultDeviceNr        = 0
	defaultCardLabel       = "AdbCam"
	defaultSinkName        = "AdbCam"
	defaultLoopbackLatency = 20
	defaultStopTimeout     = 3 * time.Second
	defaultReleaseTimeout  = 5 * time.Second

	// DefaultMirrorPort is the localhost port scrcpy tunnels the device
	// connection over. Exported so the CLI flag default stays in sync.
	DefaultMirrorPort = 27183
)

// Config holds all configuration for the application.
type Config struct {
	Video   VideoConfig   `mapstructure:"video"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// VideoConfig holds virtual video device configuration.
type VideoConfig struct {
	// DeviceNr is the v4l2loopback video_nr parameter; the device node
	// materializes at /dev/video<DeviceNr>.
	DeviceNr int `mapstructure:"device_nr"`
	// CardLabel is the name other applications see for the virtual camera.
	CardLabel string `mapstructure:"card_label"`
	// ExclusiveCaps makes the device report capture-only caps once a
	// producer is attached; Chrome and most browsers require it.
	ExclusiveCaps bool `mapstructure:"exclusive_caps"`
}

// AudioConfig holds virtual audio sink configuration.
type AudioConfig struct {
	// SinkName is the PulseAudio null-sink name; the virtual microphone
	// is exposed as <SinkName>.monitor.
	SinkName string `mapstructure:"sink_name"`
	// LoopbackLatencyMs is the latency_msec parameter of module-loopback.
	LoopbackLatencyMs int `mapstructure:"loopback_latency_ms"`
}

// MirrorConfig holds mirroring process configuration.
type MirrorConfig struct {
	// Port is the localhost port scrcpy tunnels the device connection over.
	Port int `mapstructure:"port"`
	// StopTimeout is how long a graceful stop may take before the mirror
	// process is killed.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// ReleaseTimeout bounds every individual teardown action.
	ReleaseTimeout time.Duration `mapstructure:"release_timeout"`
	// ShowWindow keeps the scrcpy preview window open while mirroring.
	ShowWindow bool `mapstructure:"show_window"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with ADBCAM_ and use underscores for
// nesting. Example: ADBCAM_MIRROR_PORT=27200.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName(".adbcam")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/adbcam")
	}

	v.SetEnvPrefix("ADBCAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("video.device_nr", defaultDeviceNr)
	v.SetDefault("video.card_label", defaultCardLabel)
	v.SetDefault("video.exclusive_caps", true)

	v.SetDefault("audio.sink_name", defaultSinkName)
	v.SetDefault("audio.loopback_latency_ms", defaultLoopbackLatency)

	v.SetDefault("mirror.port", DefaultMirrorPort)
	v.SetDefault("mirror.stop_timeout", defaultStopTimeout)
	v.SetDefault("mirror.release_timeout", defaultReleaseTimeout)
	v.SetDefault("mirror.show_window", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Video.DeviceNr < 0 {
		return fmt.Errorf("video.device_nr must not be negative")
	}
	if c.Video.CardLabel == "" {
		return fmt.Errorf("video.card_label is required")
	}

	if c.Audio.SinkName == "" {
		return fmt.Errorf("audio.sink_name is required")
	}
	if c.Audio.LoopbackLatencyMs < 1 {
		return fmt.Errorf("audio.loopback_latency_ms must be at least 1")
	}

	const maxPort = 65535
	if c.Mirror.Port < 1 || c.Mirror.Port > maxPort {
		return fmt.Errorf("mirror.port must be between 1 and %d", maxPort)
	}
	if c.Mirror.StopTimeout <= 0 {
		return fmt.Errorf("mirror.stop_timeout must be positive")
	}
	if c.Mirror.ReleaseTimeout <= 0 {
		return fmt.Errorf("mirror.release_timeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// DevicePath returns the expected device node for the configured video_nr.
func (c *VideoConfig) DevicePath() string {
	return fmt.Sprintf("/dev/video%d", c.DeviceNr)
}

// MonitorSource returns the PulseAudio source name applications select as
// the virtual microphone.
func (c *AudioConfig) MonitorSource() string {
	return c.SinkName + ".monitor"
}
