package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such-config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.DMX.FrameRate != 44 {
		t.Errorf("frame rate = %v, want 44", cfg.DMX.FrameRate)
	}
	if cfg.ShowsDir != "shows" || cfg.ScriptsDir != "scripts" {
		t.Errorf("dirs = %q %q", cfg.ShowsDir, cfg.ScriptsDir)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("broker = %q", cfg.MQTT.Broker)
	}
	if cfg.MIDI.PlayNote != 60 || cfg.MIDI.PanicNote != 72 {
		t.Errorf("midi notes = %d %d", cfg.MIDI.PlayNote, cfg.MIDI.PanicNote)
	}
}

func TestLoadFileOverridesAndSanitizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"server": {"port": " 9000 "},
		"dmx": {"broadcast_addr": "192.168.1.255:6454 ", "frame_rate": 30},
		"shows_dir": " myshows "
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("port = %q, want trimmed 9000", cfg.Server.Port)
	}
	if cfg.DMX.BroadcastAddr != "192.168.1.255:6454" {
		t.Errorf("broadcast = %q", cfg.DMX.BroadcastAddr)
	}
	if cfg.DMX.FrameRate != 30 {
		t.Errorf("frame rate = %v, want 30", cfg.DMX.FrameRate)
	}
	if cfg.ShowsDir != "myshows" {
		t.Errorf("shows dir = %q", cfg.ShowsDir)
	}
	// Untouched sections still get defaults.
	if cfg.MQTT.ClientID != "lightshow-agent" {
		t.Errorf("client id = %q", cfg.MQTT.ClientID)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"frame rate too high", `{"dmx": {"frame_rate": 200}}`},
		{"ble without mirror fixture", `{"ble": {"enabled": true}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.json), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestBLEDurationsFallBackOnTypos(t *testing.T) {
	b := BLEConfig{
		ScanTimeout:       "banana",
		ConnectTimeout:    "10s",
		HeartbeatInterval: "-5s",
		RetryDelay:        "2s",
	}
	scan, connect, heartbeat, retry := b.Durations()
	if scan != 30*time.Second {
		t.Errorf("scan = %v, want default 30s", scan)
	}
	if connect != 10*time.Second {
		t.Errorf("connect = %v, want 10s", connect)
	}
	if heartbeat != 60*time.Second {
		t.Errorf("heartbeat = %v, want default 60s", heartbeat)
	}
	if retry != 2*time.Second {
		t.Errorf("retry = %v, want 2s", retry)
	}
}
