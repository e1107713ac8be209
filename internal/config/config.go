// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"
)

// Configuration defaults.
const (
	DefaultWebPort            = 8080
	DefaultWebBind            = "127.0.0.1"
	DefaultBackend            = "exec"
	DefaultSampleRate         = 48000
	DefaultChannels           = 1
	DefaultBufferMs           = 20
	DefaultStorageDir         = "recordings"
	DefaultMeterIntervalMs    = 100
	DefaultWaveformResolution = 200
	DefaultWaveformMode       = "peak"
	DefaultMicrophone         = "granted"
	DefaultLogLevel           = "info"
	DefaultLogMaxSizeMB       = 10
	DefaultLogMaxBackups      = 3
	DefaultLogMaxAgeDays      = 28
)

// WebConfig contains web server configuration.
type WebConfig struct {
	Port int    `json:"port"`
	Bind string `json:"bind"`
}

// AudioConfig contains audio device configuration.
type AudioConfig struct {
	Backend    string `json:"backend"`
	Input      string `json:"input,omitempty"`
	Output     string `json:"output,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BufferMs   int    `json:"buffer_ms"`
}

// StorageConfig contains recording storage configuration.
type StorageConfig struct {
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

// MeterConfig contains live meter and position reporting configuration.
type MeterConfig struct {
	IntervalMs int `json:"interval_ms"`
}

// WaveformConfig contains envelope analysis configuration.
type WaveformConfig struct {
	Resolution int    `json:"resolution"`
	Mode       string `json:"mode"`
}

// PermissionConfig contains the microphone access policy.
type PermissionConfig struct {
	Microphone string `json:"microphone"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level      string `json:"level"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	Web        WebConfig        `json:"web"`
	Audio      AudioConfig      `json:"audio"`
	Storage    StorageConfig    `json:"storage"`
	Meter      MeterConfig      `json:"meter"`
	Waveform   WaveformConfig   `json:"waveform"`
	Permission PermissionConfig `json:"permission"`
	Log        LogConfig        `json:"log"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	c := &Config{filePath: filePath}
	c.applyDefaults()
	return c
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()
	return c.validateLocked()
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	c.Web.Port = cmp.Or(c.Web.Port, DefaultWebPort)
	c.Web.Bind = cmp.Or(c.Web.Bind, DefaultWebBind)
	c.Audio.Backend = cmp.Or(c.Audio.Backend, DefaultBackend)
	c.Audio.SampleRate = cmp.Or(c.Audio.SampleRate, DefaultSampleRate)
	c.Audio.Channels = cmp.Or(c.Audio.Channels, DefaultChannels)
	c.Audio.BufferMs = cmp.Or(c.Audio.BufferMs, DefaultBufferMs)
	c.Storage.Path = cmp.Or(c.Storage.Path, c.relative(DefaultStorageDir))
	c.Meter.IntervalMs = cmp.Or(c.Meter.IntervalMs, DefaultMeterIntervalMs)
	c.Waveform.Resolution = cmp.Or(c.Waveform.Resolution, DefaultWaveformResolution)
	c.Waveform.Mode = cmp.Or(c.Waveform.Mode, DefaultWaveformMode)
	c.Permission.Microphone = cmp.Or(c.Permission.Microphone, DefaultMicrophone)
	c.Log.Level = cmp.Or(c.Log.Level, DefaultLogLevel)
}

// relative resolves name against the directory holding the config file.
func (c *Config) relative(name string) string {
	if c.filePath == "" {
		return name
	}
	return filepath.Join(filepath.Dir(c.filePath), name)
}

// validateLocked checks value ranges. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	err := util.FirstInvalid(
		util.ValidatePort("web.port", c.Web.Port),
		util.ValidateOneOf("audio.backend", c.Audio.Backend, "exec", "malgo", "null"),
		util.ValidateRange("audio.sample_rate", c.Audio.SampleRate, 8000, 192000),
		util.ValidateRange("audio.channels", c.Audio.Channels, 1, 2),
		util.ValidateRange("audio.buffer_ms", c.Audio.BufferMs, 5, 100),
		util.ValidateRequired("storage.path", c.Storage.Path),
		util.ValidateRange("storage.retention_days", c.Storage.RetentionDays, 0, 3650),
		// 1/30 s to 1/10 s.
		util.ValidateRange("meter.interval_ms", c.Meter.IntervalMs, 33, 100),
		util.ValidateRange("waveform.resolution", c.Waveform.Resolution, 100, 500),
		util.ValidateOneOf("waveform.mode", c.Waveform.Mode, "peak", "rms"),
		util.ValidateOneOf("permission.microphone", c.Permission.Microphone, "granted", "denied", "prompt"),
		util.ValidateOneOf("log.level", c.Log.Level, "debug", "info", "warn", "error"),
	)
	if err != nil {
		return util.WrapError("validate config", err)
	}
	return nil
}

// Validate checks that all values are within their allowed ranges.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateLocked()
}

// Save writes the configuration to file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// SetAudioInput updates the audio input device and saves the configuration.
func (c *Config) SetAudioInput(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Input = input
	return c.saveLocked()
}

// SetWaveformResolution updates the envelope resolution and saves the configuration.
func (c *Config) SetWaveformResolution(n int) error {
	if err := util.ValidateRange("waveform.resolution", n, 100, 500); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Waveform.Resolution = n
	return c.saveLocked()
}

// Snapshot is a point-in-time copy of configuration values with defaults applied.
type Snapshot struct {
	WebAddr string

	Backend       string
	AudioInput    string
	AudioOutput   string
	Format        types.Format
	Buffer        time.Duration
	StoragePath   string
	RetentionDays int
	MeterInterval time.Duration

	WaveformResolution int
	WaveformMode       string

	Microphone string

	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebAddr: fmt.Sprintf("%s:%d", c.Web.Bind, c.Web.Port),

		Backend:     c.Audio.Backend,
		AudioInput:  c.Audio.Input,
		AudioOutput: c.Audio.Output,
		Format: types.Format{
			SampleRate: c.Audio.SampleRate,
			Channels:   c.Audio.Channels,
		},
		Buffer:        time.Duration(c.Audio.BufferMs) * time.Millisecond,
		StoragePath:   c.Storage.Path,
		RetentionDays: c.Storage.RetentionDays,
		MeterInterval: time.Duration(c.Meter.IntervalMs) * time.Millisecond,

		WaveformResolution: c.Waveform.Resolution,
		WaveformMode:       c.Waveform.Mode,

		Microphone: c.Permission.Microphone,

		LogLevel:      c.Log.Level,
		LogPath:       c.Log.Path,
		LogMaxSizeMB:  cmp.Or(c.Log.MaxSizeMB, DefaultLogMaxSizeMB),
		LogMaxBackups: cmp.Or(c.Log.MaxBackups, DefaultLogMaxBackups),
		LogMaxAgeDays: cmp.Or(c.Log.MaxAgeDays, DefaultLogMaxAgeDays),
	}
}

// HasLogPath returns true if a log file path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}
