package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type PlaybackMode string

const (
	ModeInterleaved PlaybackMode = "Interleaved"
	ModeBuffered    PlaybackMode = "Buffered"
)

type DecoderType string

const (
	DecoderGoCV   DecoderType = "gocv"
	DecoderFFmpeg DecoderType = "ffmpeg"
)

type DetectorBackend string

const (
	BackendNet    DetectorBackend = "net"
	BackendRemote DetectorBackend = "remote"
)

const (
	DefaultConfigPath string = "config.json"
	DefaultModelPath  string = "model/model.onnx"
	DefaultRemoteAddr string = "localhost:8080"

	EnvPrefix string = "TREES"
)

var ModesList = [...]string{
	string(ModeInterleaved),
	string(ModeBuffered),
}

type WindowConfig struct {
	Title   string `json:"title" mapstructure:"title"`
	Width   int    `json:"width" mapstructure:"width"`
	Height  int    `json:"height" mapstructure:"height"`
	MarginX int    `json:"margin_x" mapstructure:"margin_x"`
	MarginY int    `json:"margin_y" mapstructure:"margin_y"`
}

// DisplaySize is the area the annotated frame is scaled into.
func (w WindowConfig) DisplaySize() (int, int) {
	return w.Width - w.MarginX, w.Height - w.MarginY
}

type DetectorConfig struct {
	Backend       DetectorBackend `json:"backend" mapstructure:"backend"`
	ModelPath     string          `json:"model_path" mapstructure:"model_path"`
	RemoteAddr    string          `json:"remote_addr" mapstructure:"remote_addr"`
	TimeoutMs     uint            `json:"timeout_ms" mapstructure:"timeout_ms"`
	Device        string          `json:"device" mapstructure:"device"`
	Labels        []string        `json:"labels" mapstructure:"labels"`
	ConfThreshold float32         `json:"conf_threshold" mapstructure:"conf_threshold"`
	IoU           float32         `json:"iou" mapstructure:"iou"`
	Augment       bool            `json:"augment" mapstructure:"augment"`
	GPUImageSize  int             `json:"gpu_image_size" mapstructure:"gpu_image_size"`
	CPUImageSize  int             `json:"cpu_image_size" mapstructure:"cpu_image_size"`
}

type Config struct {
	mu sync.RWMutex

	Mode             PlaybackMode `json:"mode" mapstructure:"mode"`
	ReplayIntervalMs uint         `json:"replay_interval_ms" mapstructure:"replay_interval_ms"`
	FrameWidth       int          `json:"frame_width" mapstructure:"frame_width"`
	FrameHeight      int          `json:"frame_height" mapstructure:"frame_height"`
	Decoder          DecoderType  `json:"decoder" mapstructure:"decoder"`
	LogMode          string       `json:"log_mode" mapstructure:"log_mode"`

	Window   WindowConfig   `json:"window" mapstructure:"window"`
	Detector DetectorConfig `json:"detector" mapstructure:"detector"`
}

func (c *Config) GetMode() PlaybackMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Mode
}

func (c *Config) SetMode(mode PlaybackMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mode = mode
}

func (c *Config) GetReplayInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.ReplayIntervalMs) * time.Millisecond
}

func (c *Config) SetReplayIntervalMs(ms uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReplayIntervalMs = ms
}

func (c *Config) GetFrameSize() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.FrameWidth, c.FrameHeight
}

func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}

	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}

// Load reads path (when present) over the defaults and applies TREES_*
// environment overrides, e.g. TREES_DETECTOR_DEVICE=cpu.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadConfigFile never fails: a broken file falls back to the defaults.
func LoadConfigFile(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return NewDefaultConfig()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("mode", string(d.Mode))
	v.SetDefault("replay_interval_ms", d.ReplayIntervalMs)
	v.SetDefault("frame_width", d.FrameWidth)
	v.SetDefault("frame_height", d.FrameHeight)
	v.SetDefault("decoder", string(d.Decoder))
	v.SetDefault("log_mode", d.LogMode)

	v.SetDefault("window.title", d.Window.Title)
	v.SetDefault("window.width", d.Window.Width)
	v.SetDefault("window.height", d.Window.Height)
	v.SetDefault("window.margin_x", d.Window.MarginX)
	v.SetDefault("window.margin_y", d.Window.MarginY)

	v.SetDefault("detector.backend", string(d.Detector.Backend))
	v.SetDefault("detector.model_path", d.Detector.ModelPath)
	v.SetDefault("detector.remote_addr", d.Detector.RemoteAddr)
	v.SetDefault("detector.timeout_ms", d.Detector.TimeoutMs)
	v.SetDefault("detector.device", d.Detector.Device)
	v.SetDefault("detector.labels", d.Detector.Labels)
	v.SetDefault("detector.conf_threshold", d.Detector.ConfThreshold)
	v.SetDefault("detector.iou", d.Detector.IoU)
	v.SetDefault("detector.augment", d.Detector.Augment)
	v.SetDefault("detector.gpu_image_size", d.Detector.GPUImageSize)
	v.SetDefault("detector.cpu_image_size", d.Detector.CPUImageSize)
}

func NewDefaultConfig() *Config {
	return &Config{
		Mode:             ModeBuffered,
		ReplayIntervalMs: 17,
		FrameWidth:       1920,
		FrameHeight:      1080,
		Decoder:          DecoderGoCV,
		LogMode:          "debug",
		Window: WindowConfig{
			Title:   "Trees detection",
			Width:   1080,
			Height:  720,
			MarginX: 300,
			MarginY: 200,
		},
		Detector: DetectorConfig{
			Backend:       BackendNet,
			ModelPath:     DefaultModelPath,
			RemoteAddr:    DefaultRemoteAddr,
			TimeoutMs:     5000,
			Device:        "auto",
			Labels:        []string{"tree"},
			ConfThreshold: 0.25,
			IoU:           0.2,
			Augment:       true,
			GPUImageSize:  960,
			CPUImageSize:  640,
		},
	}
}
