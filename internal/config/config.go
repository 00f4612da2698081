// Package config loads the soundsight configuration: built-in defaults,
// optionally overlaid by a TOML file, then by CLI flags in main.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/1ureka/soundsight/internal/link"
	"github.com/1ureka/soundsight/internal/protocol"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type DeviceConfig struct {
	Host        string
	Port        int
	Variant     protocol.Variant
	DialTimeout time.Duration
	MaxBuffer   int
	Reconnect   bool // supervise the link instead of connecting once
}

type DispatchConfig struct {
	Tick time.Duration
}

type RelayConfig struct {
	Listen string // empty disables the WebSocket relay
}

type MetricsConfig struct {
	Listen string // empty disables /metrics
}

type MQTTConfig struct {
	Broker   string // empty disables MQTT publication
	Topic    string
	ClientID string
	QoS      byte
}

type LogConfig struct {
	Debug bool
}

// Config stores every runtime parameter.
type Config struct {
	Device   DeviceConfig
	Backoff  link.BackoffConfig
	Dispatch DispatchConfig
	Relay    RelayConfig
	Metrics  MetricsConfig
	MQTT     MQTTConfig
	Log      LogConfig
}

func Default() Config {
	return Config{
		Device: DeviceConfig{
			Host:        "192.168.4.1",
			Port:        8080,
			Variant:     protocol.VariantB,
			DialTimeout: 5 * time.Second,
			MaxBuffer:   protocol.DefaultMaxBuffer,
			Reconnect:   true,
		},
		Backoff:  link.DefaultBackoff(),
		Dispatch: DispatchConfig{Tick: 30 * time.Millisecond},
		MQTT:     MQTTConfig{Topic: "soundsight"},
	}
}

// LinkConfig returns the link.Client settings.
func (c Config) LinkConfig() link.Config {
	return link.Config{
		Variant:     c.Device.Variant,
		MaxBuffer:   c.Device.MaxBuffer,
		DialTimeout: c.Device.DialTimeout,
	}
}

// Validate reports the first invalid value, wrapped in ErrInvalid.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Device.Host) == "":
		return fmt.Errorf("%w: device.host is empty", ErrInvalid)
	case c.Device.Port < 1 || c.Device.Port > 65535:
		return fmt.Errorf("%w: device.port %d out of range", ErrInvalid, c.Device.Port)
	case c.Device.Variant != protocol.VariantA && c.Device.Variant != protocol.VariantB:
		return fmt.Errorf("%w: device.variant %d unknown", ErrInvalid, c.Device.Variant)
	case c.Device.DialTimeout < 0:
		return fmt.Errorf("%w: device.dial_timeout is negative", ErrInvalid)
	case c.Device.MaxBuffer <= 0:
		return fmt.Errorf("%w: device.max_buffer must be positive", ErrInvalid)
	case c.Backoff.InitialDelay <= 0:
		return fmt.Errorf("%w: backoff.initial must be positive", ErrInvalid)
	case c.Backoff.MaxDelay < c.Backoff.InitialDelay:
		return fmt.Errorf("%w: backoff.max below backoff.initial", ErrInvalid)
	case c.Backoff.Multiplier < 1:
		return fmt.Errorf("%w: backoff.multiplier below 1", ErrInvalid)
	case c.Dispatch.Tick <= 0:
		return fmt.Errorf("%w: dispatch.tick must be positive", ErrInvalid)
	case c.MQTT.QoS > 2:
		return fmt.Errorf("%w: mqtt.qos %d not in 0..2", ErrInvalid, c.MQTT.QoS)
	}
	return nil
}

type fileConfig struct {
	Device struct {
		Host        string `toml:"host"`
		Port        int    `toml:"port"`
		Variant     string `toml:"variant"`
		DialTimeout string `toml:"dial_timeout"`
		MaxBuffer   int    `toml:"max_buffer"`
		Reconnect   bool   `toml:"reconnect"`
	} `toml:"device"`
	Backoff struct {
		Initial    string  `toml:"initial"`
		Max        string  `toml:"max"`
		Multiplier float64 `toml:"multiplier"`
		Jitter     bool    `toml:"jitter"`
	} `toml:"backoff"`
	Dispatch struct {
		Tick string `toml:"tick"`
	} `toml:"dispatch"`
	Relay struct {
		Listen string `toml:"listen"`
	} `toml:"relay"`
	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
	MQTT struct {
		Broker   string `toml:"broker"`
		Topic    string `toml:"topic"`
		ClientID string `toml:"client_id"`
		QoS      int    `toml:"qos"`
	} `toml:"mqtt"`
	Log struct {
		Debug bool `toml:"debug"`
	} `toml:"log"`
}

// Load returns Default() overlaid with the keys present in the TOML file at
// path. The result is validated.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
	}

	cfg := Default()
	if err := overlay(&cfg, &raw, meta); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlay(cfg *Config, raw *fileConfig, meta toml.MetaData) error {
	if meta.IsDefined("device", "host") {
		cfg.Device.Host = strings.TrimSpace(raw.Device.Host)
	}
	if meta.IsDefined("device", "port") {
		cfg.Device.Port = raw.Device.Port
	}
	if meta.IsDefined("device", "variant") {
		v, err := protocol.ParseVariant(raw.Device.Variant)
		if err != nil {
			return fmt.Errorf("%w: device.variant: %v", ErrInvalid, err)
		}
		cfg.Device.Variant = v
	}
	if meta.IsDefined("device", "max_buffer") {
		cfg.Device.MaxBuffer = raw.Device.MaxBuffer
	}
	if meta.IsDefined("device", "reconnect") {
		cfg.Device.Reconnect = raw.Device.Reconnect
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Backoff.Jitter = raw.Backoff.Jitter
	}
	if meta.IsDefined("relay", "listen") {
		cfg.Relay.Listen = strings.TrimSpace(raw.Relay.Listen)
	}
	if meta.IsDefined("metrics", "listen") {
		cfg.Metrics.Listen = strings.TrimSpace(raw.Metrics.Listen)
	}
	if meta.IsDefined("mqtt", "broker") {
		cfg.MQTT.Broker = strings.TrimSpace(raw.MQTT.Broker)
	}
	if meta.IsDefined("mqtt", "topic") {
		cfg.MQTT.Topic = strings.TrimSpace(raw.MQTT.Topic)
	}
	if meta.IsDefined("mqtt", "client_id") {
		cfg.MQTT.ClientID = strings.TrimSpace(raw.MQTT.ClientID)
	}
	if meta.IsDefined("mqtt", "qos") {
		if raw.MQTT.QoS < 0 || raw.MQTT.QoS > 2 {
			return fmt.Errorf("%w: mqtt.qos %d not in 0..2", ErrInvalid, raw.MQTT.QoS)
		}
		cfg.MQTT.QoS = byte(raw.MQTT.QoS)
	}
	if meta.IsDefined("log", "debug") {
		cfg.Log.Debug = raw.Log.Debug
	}

	durations := []struct {
		key  []string
		raw  string
		dest *time.Duration
	}{
		{[]string{"device", "dial_timeout"}, raw.Device.DialTimeout, &cfg.Device.DialTimeout},
		{[]string{"backoff", "initial"}, raw.Backoff.Initial, &cfg.Backoff.InitialDelay},
		{[]string{"backoff", "max"}, raw.Backoff.Max, &cfg.Backoff.MaxDelay},
		{[]string{"dispatch", "tick"}, raw.Dispatch.Tick, &cfg.Dispatch.Tick},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dest = v
	}
	return nil
}
