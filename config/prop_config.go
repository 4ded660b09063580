package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalLogConfig holds optional global log file settings
type GlobalLogConfig struct {
	Filename   string `yaml:"Filename,omitempty"`
	MaxSize    int    `yaml:"MaxSize,omitempty"` // megabytes
	MaxBackups int    `yaml:"MaxBackups,omitempty"`
	MaxAge     int    `yaml:"MaxAge,omitempty"` // days
	Compress   bool   `yaml:"Compress,omitempty"`
	Verbose    bool   `yaml:"Verbose,omitempty"`
}

// DurationString supports "40ms", "10s", "5m". Bare integers are seconds.
type DurationString time.Duration

func (d *DurationString) UnmarshalYAML(value *yaml.Node) error {
	s := value.Value
	if value.Tag == "!!int" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*d = DurationString(time.Duration(v) * time.Second)
		return nil
	}
	if !(strings.HasSuffix(s, "s") || strings.HasSuffix(s, "m")) {
		return fmt.Errorf("invalid duration: %s (must end with 'ms', 's' or 'm')", s)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = DurationString(dur)
	return nil
}

func (d DurationString) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d DurationString) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, time.Duration(d).String()), nil
}

func (d DurationString) Duration() time.Duration {
	return time.Duration(d)
}

func (d DurationString) String() string {
	return time.Duration(d).String()
}

// SizeString supports "10K", "10M", "1G" (bits, uppercase only) and
// "10KB", "10MB", "1GB" (bytes). Values are stored in bytes.
type SizeString int64

func (s *SizeString) UnmarshalYAML(value *yaml.Node) error {
	raw := value.Value
	if value.Tag == "!!int" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		*s = SizeString(v)
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("empty size string")
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(raw, "KB"):
		multiplier = 1024
		raw = strings.TrimSuffix(raw, "KB")
	case strings.HasSuffix(raw, "K"):
		multiplier = 1000 / 8
		raw = strings.TrimSuffix(raw, "K")
	case strings.HasSuffix(raw, "MB"):
		multiplier = 1024 * 1024
		raw = strings.TrimSuffix(raw, "MB")
	case strings.HasSuffix(raw, "M"):
		multiplier = (1000 * 1000) / 8
		raw = strings.TrimSuffix(raw, "M")
	case strings.HasSuffix(raw, "GB"):
		multiplier = 1024 * 1024 * 1024
		raw = strings.TrimSuffix(raw, "GB")
	case strings.HasSuffix(raw, "G"):
		multiplier = (1000 * 1000 * 1000) / 8
		raw = strings.TrimSuffix(raw, "G")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size string: %s (must end with 'K','M','G','KB','MB','GB')", value.Value)
	}
	*s = SizeString(v * multiplier)
	return nil
}

// DeviceConfig describes how to reach one propeller display.
type DeviceConfig struct {
	Host        string `yaml:"DHost"`
	CommandPort int    `yaml:"DCommandPort,omitempty"` // default 5233
	DataPort    int    `yaml:"DDataPort,omitempty"`    // default 5499
	PacketSize  int    `yaml:"DPacketSize,omitempty"`  // default 1460

	InterPacketDelay  DurationString `yaml:"DInterPacketDelay,omitempty"`  // default "40ms"
	ConnectTimeout    DurationString `yaml:"DConnectTimeout,omitempty"`    // default "3s"
	AnnounceTimeout   DurationString `yaml:"DAnnounceTimeout,omitempty"`   // default "1s"
	DrainTimeout      DurationString `yaml:"DDrainTimeout,omitempty"`      // default "100ms"
	FinalDrainTimeout DurationString `yaml:"DFinalDrainTimeout,omitempty"` // default "200ms"
	ReplyTimeout      DurationString `yaml:"DReplyTimeout,omitempty"`      // default 0, block
	InterfaceName     string         `yaml:"DInterfaceName,omitempty"`     // default ""
	BandwidthLimit    SizeString     `yaml:"DBandwidthLimit,omitempty"`    // default unlimited
}

// CommandAddr is the host:port of the command channel.
func (d DeviceConfig) CommandAddr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.CommandPort)
}

// DataAddr is the host:port of the data channel.
func (d DeviceConfig) DataAddr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.DataPort)
}

// PropctlConfig is the top level configuration file.
type PropctlConfig struct {
	Device       DeviceConfig     `yaml:"Device"`
	GlobalLog    *GlobalLogConfig `yaml:"GlobalLog,omitempty"`
	StatusListen string           `yaml:"StatusListen,omitempty"`
}

// SetDefaults sets default values for optional device fields
func (d *DeviceConfig) SetDefaults() {
	if len(d.Host) == 0 {
		d.Host = "192.168.4.1"
	}
	if d.CommandPort == 0 {
		d.CommandPort = 5233
	}
	if d.DataPort == 0 {
		d.DataPort = 5499
	}
	if d.PacketSize == 0 {
		d.PacketSize = 1460
	}
	if d.InterPacketDelay == 0 {
		d.InterPacketDelay = DurationString(40 * time.Millisecond)
	}
	if d.ConnectTimeout == 0 {
		d.ConnectTimeout = DurationString(3 * time.Second)
	}
	if d.AnnounceTimeout == 0 {
		d.AnnounceTimeout = DurationString(time.Second)
	}
	if d.DrainTimeout == 0 {
		d.DrainTimeout = DurationString(100 * time.Millisecond)
	}
	if d.FinalDrainTimeout == 0 {
		d.FinalDrainTimeout = DurationString(200 * time.Millisecond)
	}
	if d.BandwidthLimit == 0 {
		d.BandwidthLimit = -1
	}
}

// SetDefaults sets default values for optional fields
func (c *PropctlConfig) SetDefaults() {
	c.Device.SetDefaults()

	// Set global log defaults if not provided
	if c.GlobalLog == nil {
		c.GlobalLog = &GlobalLogConfig{
			Filename:   "", // Empty string means log to stderr
			MaxSize:    1,
			MaxBackups: 1,
			MaxAge:     1,
			Compress:   false,
		}
	} else {
		if c.GlobalLog.MaxSize == 0 {
			c.GlobalLog.MaxSize = 20
		}
		if c.GlobalLog.MaxBackups == 0 {
			c.GlobalLog.MaxBackups = 5
		}
		if c.GlobalLog.MaxAge == 0 {
			c.GlobalLog.MaxAge = 28
		}
	}
}

// Validate rejects values the device or the protocol cannot work with.
func (d DeviceConfig) Validate() error {
	if d.CommandPort <= 0 || d.CommandPort > 65535 {
		return fmt.Errorf("invalid command port %d", d.CommandPort)
	}
	if d.DataPort <= 0 || d.DataPort > 65535 {
		return fmt.Errorf("invalid data port %d", d.DataPort)
	}
	// 9 byte header + 11 byte trailer must leave room for payload
	if d.PacketSize <= 20 {
		return fmt.Errorf("packet size %d too small", d.PacketSize)
	}
	if d.InterPacketDelay < 0 || d.ConnectTimeout < 0 || d.AnnounceTimeout < 0 ||
		d.DrainTimeout < 0 || d.FinalDrainTimeout < 0 || d.ReplyTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Default returns a configuration populated with defaults only.
func Default() *PropctlConfig {
	cfg := &PropctlConfig{}
	cfg.SetDefaults()
	return cfg
}

// LoadConfig loads config from YAML file and parses it
func LoadConfig(path string) (*PropctlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg PropctlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Device.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}
