package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// ServerConfig holds the HTTP/WebSocket server settings.
type ServerConfig struct {
	Port           string   `json:"port"`
	WebFilesDir    string   `json:"web_files_dir"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// DMXConfig holds the Art-Net output settings.
type DMXConfig struct {
	BroadcastAddr string  `json:"broadcast_addr"` // subnet broadcast, empty for 255.255.255.255
	FrameRate     float64 `json:"frame_rate"`
}

// MIDIConfig holds the MIDI transport controller settings.
type MIDIConfig struct {
	Enabled  bool   `json:"enabled"`
	PortName string `json:"port_name"`
	// Note numbers bound to transport actions.
	PlayNote  uint8 `json:"play_note"`
	StopNote  uint8 `json:"stop_note"`
	PauseNote uint8 `json:"pause_note"`
	PanicNote uint8 `json:"panic_note"` // stop all effects + blackout
}

// MQTTConfig holds the MQTT bridge settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"` // tcp://IP:PORT
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// BLEConfig holds the settings of the optional BLEDOM mirror, which
// repeats one fixture's composed color onto a BLE LED strip.
type BLEConfig struct {
	Enabled           bool     `json:"enabled"`
	MirrorFixture     string   `json:"mirror_fixture"`
	DeviceNames       []string `json:"device_names"`
	ScanTimeout       string   `json:"scan_timeout"`
	ConnectTimeout    string   `json:"connect_timeout"`
	HeartbeatInterval string   `json:"heartbeat_interval"`
	RetryDelay        string   `json:"retry_delay"`
	RateLimit         float64  `json:"command_rate_limit"`
	RateBurst         int      `json:"command_rate_burst"`
}

// Durations returns the parsed timeout values. Defaults were applied at
// load time so parsing only fails on user typos, which fall back to the
// stock values.
func (b BLEConfig) Durations() (scan, connect, heartbeat, retry time.Duration) {
	return parseDuration(b.ScanTimeout, 30*time.Second),
		parseDuration(b.ConnectTimeout, 7*time.Second),
		parseDuration(b.HeartbeatInterval, 60*time.Second),
		parseDuration(b.RetryDelay, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Config is the root configuration.
type Config struct {
	Server ServerConfig `json:"server"`
	DMX    DMXConfig    `json:"dmx"`
	MIDI   MIDIConfig   `json:"midi"`
	MQTT   MQTTConfig   `json:"mqtt"`
	BLE    BLEConfig    `json:"ble"`

	// File system settings
	ShowsDir      string `json:"shows_dir"`
	ScriptsDir    string `json:"scripts_dir"`
	SchedulesFile string `json:"schedules_file"`
	DefaultShow   string `json:"default_show"`
}

// Load reads the file, parses the JSON and applies sanitize/defaults/validate.
// A missing file yields a fully defaulted config.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			cfg.setDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}
	defer file.Close()

	cfg := &Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) sanitize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.WebFilesDir = strings.TrimSpace(c.Server.WebFilesDir)
	c.DMX.BroadcastAddr = strings.TrimSpace(c.DMX.BroadcastAddr)
	c.ShowsDir = strings.TrimSpace(c.ShowsDir)
	c.ScriptsDir = strings.TrimSpace(c.ScriptsDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
	c.DefaultShow = strings.TrimSpace(c.DefaultShow)
	// BLE device names keep their whitespace: some BLEDOM firmwares pad
	// the advertised name with trailing spaces and matching needs them.
}

func (c *Config) setDefaults() {
	// Server
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}

	// DMX
	if c.DMX.FrameRate <= 0 {
		c.DMX.FrameRate = 44
	}

	// MIDI
	if c.MIDI.PlayNote == 0 {
		c.MIDI.PlayNote = 60 // C4
	}
	if c.MIDI.StopNote == 0 {
		c.MIDI.StopNote = 62 // D4
	}
	if c.MIDI.PauseNote == 0 {
		c.MIDI.PauseNote = 64 // E4
	}
	if c.MIDI.PanicNote == 0 {
		c.MIDI.PanicNote = 72 // C5
	}

	// Files
	if c.ShowsDir == "" {
		c.ShowsDir = "shows"
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = "scripts"
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}

	// MQTT
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "lightshow-agent"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "lightshow"
	}

	// BLE mirror
	if len(c.BLE.DeviceNames) == 0 {
		c.BLE.DeviceNames = []string{"ELK-BLEDOM   ", "BLEDOM"}
	}
	if c.BLE.ScanTimeout == "" {
		c.BLE.ScanTimeout = "30s"
	}
	if c.BLE.ConnectTimeout == "" {
		c.BLE.ConnectTimeout = "7s"
	}
	if c.BLE.HeartbeatInterval == "" {
		c.BLE.HeartbeatInterval = "60s"
	}
	if c.BLE.RetryDelay == "" {
		c.BLE.RetryDelay = "5s"
	}
	if c.BLE.RateLimit <= 0 {
		c.BLE.RateLimit = 25.0
	}
	if c.BLE.RateBurst <= 0 {
		c.BLE.RateBurst = 25
	}
}

func (c *Config) validate() error {
	if c.DMX.FrameRate > 100 {
		return fmt.Errorf("config error: 'frame_rate' above 100 fps floods the network")
	}
	if c.BLE.Enabled && c.BLE.MirrorFixture == "" {
		return fmt.Errorf("config error: 'mirror_fixture' is required when the BLE mirror is enabled")
	}
	return nil
}
