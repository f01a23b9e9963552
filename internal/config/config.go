package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Focus position bounds accepted by the camera firmware.
const (
	MinFocusPosition = 0
	MaxFocusPosition = 255
)

// CameraConfig describes how to reach the camera control channel.
type CameraConfig struct {
	Mock          bool   `yaml:"mock"`           // use the in-process simulated camera
	VendorID      uint16 `yaml:"vendor_id"`      // USB vendor ID (e.g. 0x03e7)
	ProductID     uint16 `yaml:"product_id"`     // USB product ID of the booted device
	BoardSocket   string `yaml:"board_socket"`   // CAM_A, CAM_B or CAM_C
	ControlStream string `yaml:"control_stream"` // XLinkIn stream name for control input
	SettleMs      int    `yaml:"settle_ms"`      // hold time after sending before release (ms)
	IOTimeoutMs   int    `yaml:"io_timeout_ms"`  // bound on a single USB transfer (ms)
}

// PreviewConfig describes the V4L2 device used for the focus preview.
type PreviewConfig struct {
	Mock       bool     `yaml:"mock"`       // synthetic frames instead of a real device
	Device     string   `yaml:"device"`     // e.g. /dev/video2, or "auto" to search candidates
	Candidates []string `yaml:"candidates"` // devices tried when device is missing or delivers another size
	WidthPx    int      `yaml:"width_px"`   // expected frame width
	HeightPx   int      `yaml:"height_px"`  // expected frame height
}

// GPIOConfig is optional: a status LED lit while a control session holds the device.
type GPIOConfig struct {
	Mock         bool `yaml:"mock"`          // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	IndicatorPin int  `yaml:"indicator_pin"` // BCM pin of the LED. 0 = not used.
}

// JournalConfig selects where control sessions are recorded.
type JournalConfig struct {
	Path string `yaml:"path"` // CBOR journal file; empty disables journaling
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	FocusPosition int `yaml:"focus_position"` // manual position used when none is given
	DebugLevel    int `yaml:"debug_level"`    // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Preview  PreviewConfig  `yaml:"preview"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Journal  JournalConfig  `yaml:"journal"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// EnvOverrides holds values read from the environment. Unset variables stay nil.
type EnvOverrides struct {
	DebugLevel    *int    `env:"OPALFOCUS_DEBUG_LEVEL"`
	MockCamera    *bool   `env:"OPALFOCUS_MOCK_CAMERA"`
	MockGPIO      *bool   `env:"OPALFOCUS_MOCK_GPIO"`
	MockPreview   *bool   `env:"OPALFOCUS_MOCK_PREVIEW"`
	JournalPath   *string `env:"OPALFOCUS_JOURNAL_PATH"`
	PreviewDevice *string `env:"OPALFOCUS_PREVIEW_DEVICE"`
	SettleMs      *int    `env:"OPALFOCUS_SETTLE_MS"`
}

// unsetSettleMs marks settle_ms as absent so an explicit 0 survives defaults.
const unsetSettleMs = -1 << 31

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Camera: CameraConfig{
			Mock:     true,
			SettleMs: unsetSettleMs,
		},
		Preview: PreviewConfig{
			Mock: true,
		},
		GPIO: GPIOConfig{
			Mock: true,
		},
		Defaults: DefaultsConfig{
			FocusPosition: 130,
			DebugLevel:    1,
		},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Config{
		Camera:   CameraConfig{SettleMs: unsetSettleMs},
		Defaults: DefaultsConfig{FocusPosition: -1},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Camera.VendorID == 0 {
		cfg.Camera.VendorID = 0x03e7
	}
	if cfg.Camera.ProductID == 0 {
		cfg.Camera.ProductID = 0xf63b
	}
	if cfg.Camera.BoardSocket == "" {
		cfg.Camera.BoardSocket = "CAM_A"
	}
	if cfg.Camera.ControlStream == "" {
		cfg.Camera.ControlStream = "control"
	}
	if cfg.Camera.SettleMs == unsetSettleMs {
		cfg.Camera.SettleMs = 500 // let the firmware apply before release
	}
	if cfg.Camera.IOTimeoutMs <= 0 {
		cfg.Camera.IOTimeoutMs = 2000
	}
	if cfg.Preview.Device == "" {
		cfg.Preview.Device = "/dev/video2"
	}
	if cfg.Preview.Candidates == nil {
		cfg.Preview.Candidates = []string{"/dev/video2", "/dev/video0", "/dev/video1", "/dev/video3"}
	}
	if cfg.Preview.WidthPx <= 0 {
		cfg.Preview.WidthPx = 1280
	}
	if cfg.Preview.HeightPx <= 0 {
		cfg.Preview.HeightPx = 720
	}
	if cfg.Defaults.FocusPosition < 0 {
		cfg.Defaults.FocusPosition = 130
	}
}

// Validate checks value ranges after defaults are applied.
func (c *Config) Validate() error {
	switch c.Camera.BoardSocket {
	case "CAM_A", "CAM_B", "CAM_C":
	default:
		return fmt.Errorf("camera.board_socket must be CAM_A, CAM_B or CAM_C, got %q", c.Camera.BoardSocket)
	}
	if c.Camera.SettleMs < 0 || c.Camera.SettleMs > 1000 {
		return fmt.Errorf("camera.settle_ms must be between 0 and 1000, got %d", c.Camera.SettleMs)
	}
	if c.Defaults.FocusPosition < MinFocusPosition || c.Defaults.FocusPosition > MaxFocusPosition {
		return fmt.Errorf("defaults.focus_position must be between %d and %d, got %d",
			MinFocusPosition, MaxFocusPosition, c.Defaults.FocusPosition)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.GPIO.IndicatorPin < 0 {
		return fmt.Errorf("gpio.indicator_pin must be >= 0, got %d", c.GPIO.IndicatorPin)
	}
	return nil
}

// ApplyEnv overlays OPALFOCUS_* environment variables onto cfg and re-validates it.
func ApplyEnv(cfg *Config) error {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.DebugLevel != nil {
		cfg.Defaults.DebugLevel = *o.DebugLevel
	}
	if o.MockCamera != nil {
		cfg.Camera.Mock = *o.MockCamera
	}
	if o.MockGPIO != nil {
		cfg.GPIO.Mock = *o.MockGPIO
	}
	if o.MockPreview != nil {
		cfg.Preview.Mock = *o.MockPreview
	}
	if o.JournalPath != nil {
		cfg.Journal.Path = *o.JournalPath
	}
	if o.PreviewDevice != nil {
		cfg.Preview.Device = *o.PreviewDevice
	}
	if o.SettleMs != nil {
		cfg.Camera.SettleMs = *o.SettleMs
	}
	return cfg.Validate()
}

// ValidateConfigPath rejects paths that are not a .yaml file directly inside a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// SettleDelay returns how long a session holds the device after sending.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Camera.SettleMs) * time.Millisecond
}

// IOTimeout returns the bound on a single USB transfer.
func (c *Config) IOTimeout() time.Duration {
	return time.Duration(c.Camera.IOTimeoutMs) * time.Millisecond
}
