package config

import (
	"errors"
	"time"
)

// Config holds relay configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	MaxMessageBytes int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer      int      `mapstructure:"send_buffer" yaml:"send_buffer"`
	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ReplyErrors     bool     `mapstructure:"reply_errors" yaml:"reply_errors"`
	// RateLimit caps inbound frames per connection per minute; 0 disables it.
	RateLimit       int      `mapstructure:"rate_limit" yaml:"rate_limit"`

	// AggregationWindow is the trailing window used for average focus and member activity.
	AggregationWindow time.Duration `mapstructure:"aggregation_window" yaml:"aggregation_window"`
	// ReaperInterval enables the stale member reaper when non-zero.
	ReaperInterval time.Duration `mapstructure:"reaper_interval" yaml:"reaper_interval"`
	StaleAfter     time.Duration `mapstructure:"stale_after" yaml:"stale_after"`

	SnapshotInterval    time.Duration `mapstructure:"snapshot_interval" yaml:"snapshot_interval"`
	NATSURL             string        `mapstructure:"nats_url" yaml:"nats_url"`
	NATSSnapshotSubject string        `mapstructure:"nats_snapshot_subject" yaml:"nats_snapshot_subject"`
	NATSIngestSubject   string        `mapstructure:"nats_ingest_subject" yaml:"nats_ingest_subject"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                ":8080",
		ReadHeaderTimeout:   5 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		LogLevel:            "info",
		MaxMessageBytes:     64 << 10,
		SendBuffer:          32,
		AggregationWindow:   30 * time.Second,
		StaleAfter:          2 * time.Minute,
		NATSSnapshotSubject: "focusrelay.snapshot",
		NATSIngestSubject:   "focusrelay.ingest",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendBuffer != 0 {
		c.SendBuffer = other.SendBuffer
	}
	if other.AggregationWindow != 0 {
		c.AggregationWindow = other.AggregationWindow
	}
	if other.NATSURL != "" {
		c.NATSURL = other.NATSURL
	}
}

// Validate reports configuration values the relay cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.AggregationWindow <= 0 {
		errs = append(errs, errors.New("aggregation_window must be positive"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max_message_bytes must be positive"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate_limit must not be negative"))
	}
	if c.ReaperInterval < 0 || c.SnapshotInterval < 0 {
		errs = append(errs, errors.New("intervals must not be negative"))
	}
	if c.ReaperInterval > 0 && c.StaleAfter <= 0 {
		errs = append(errs, errors.New("stale_after must be positive when the reaper is enabled"))
	}
	return errors.Join(errs...)
}
