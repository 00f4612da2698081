package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/1ureka/soundsight/internal/protocol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soundsight.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Device.Variant != protocol.VariantB {
		t.Errorf("default variant = %s", cfg.Device.Variant)
	}
	if cfg.Device.MaxBuffer != protocol.DefaultMaxBuffer {
		t.Errorf("default max buffer = %d", cfg.Device.MaxBuffer)
	}
}

func TestLoadOverlaysDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
[device]
host = "10.0.0.7"
port = 9000
variant = "A"
dial_timeout = "2s"
reconnect = false

[backoff]
initial = "100ms"
max = "1s"

[dispatch]
tick = "50ms"

[relay]
listen = ":8765"

[mqtt]
broker = "localhost:1883"
qos = 1

[log]
debug = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := Default()
	if cfg.Device.Host != "10.0.0.7" || cfg.Device.Port != 9000 {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.Device.Variant != protocol.VariantA {
		t.Errorf("variant = %s", cfg.Device.Variant)
	}
	if cfg.Device.DialTimeout != 2*time.Second || cfg.Device.Reconnect {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.Device.MaxBuffer != def.Device.MaxBuffer {
		t.Errorf("max_buffer changed without being set: %d", cfg.Device.MaxBuffer)
	}
	if cfg.Backoff.InitialDelay != 100*time.Millisecond || cfg.Backoff.MaxDelay != time.Second {
		t.Errorf("backoff = %+v", cfg.Backoff)
	}
	if cfg.Backoff.Multiplier != def.Backoff.Multiplier {
		t.Errorf("multiplier changed without being set: %v", cfg.Backoff.Multiplier)
	}
	if cfg.Dispatch.Tick != 50*time.Millisecond {
		t.Errorf("tick = %s", cfg.Dispatch.Tick)
	}
	if cfg.Relay.Listen != ":8765" || cfg.Metrics.Listen != "" {
		t.Errorf("relay = %+v, metrics = %+v", cfg.Relay, cfg.Metrics)
	}
	if cfg.MQTT.Broker != "localhost:1883" || cfg.MQTT.QoS != 1 || cfg.MQTT.Topic != "soundsight" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if !cfg.Log.Debug {
		t.Error("log.debug not applied")
	}

	lc := cfg.LinkConfig()
	if lc.Variant != protocol.VariantA || lc.DialTimeout != 2*time.Second {
		t.Errorf("LinkConfig = %+v", lc)
	}
}

func TestLoadRejects(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		invalid bool // expect ErrInvalid
	}{
		{"port out of range", "[device]\nport = 70000\n", true},
		{"empty host", "[device]\nhost = \"  \"\n", true},
		{"bad variant", "[device]\nvariant = \"C\"\n", true},
		{"bad qos", "[mqtt]\nqos = 3\n", true},
		{"max below initial", "[backoff]\ninitial = \"2s\"\nmax = \"1s\"\n", true},
		{"unknown key", "[device]\nbaud = 9600\n", true},
		{"bad duration", "[dispatch]\ntick = \"soon\"\n", false},
		{"bad toml", "[device\n", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if errors.Is(err, ErrInvalid) != tc.invalid {
				t.Errorf("errors.Is(err, ErrInvalid) = %v, want %v (err: %v)", !tc.invalid, tc.invalid, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}
