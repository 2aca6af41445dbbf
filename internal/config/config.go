// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface is the read-only view of the configuration handed to components.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Capture() CaptureConfig
	Storage() StorageConfig
	Export() ExportConfig
	Tracker() TrackerConfig
	Monitor() MonitorConfig
}

// Config holds the application configuration. Sections are exported for
// viper's decoder; components read them through Interface.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	CaptureCfg CaptureConfig `mapstructure:"capture" yaml:"capture"`
	StorageCfg StorageConfig `mapstructure:"storage" yaml:"storage"`
	ExportCfg  ExportConfig  `mapstructure:"export" yaml:"export"`
	TrackerCfg TrackerConfig `mapstructure:"tracker" yaml:"tracker"`
	MonitorCfg MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
}

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Capture() CaptureConfig { return c.CaptureCfg }
func (c *Config) Storage() StorageConfig { return c.StorageCfg }
func (c *Config) Export() ExportConfig   { return c.ExportCfg }
func (c *Config) Tracker() TrackerConfig { return c.TrackerCfg }
func (c *Config) Monitor() MonitorConfig { return c.MonitorCfg }

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the Chrome process the host drives.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir     string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	WindowWidth     int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int      `mapstructure:"window_height" yaml:"window_height"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// CaptureConfig tunes report generation.
type CaptureConfig struct {
	// Settle is how long `capture` waits after navigation before generating.
	Settle            time.Duration `mapstructure:"settle" yaml:"settle"`
	PrivilegedSchemes []string      `mapstructure:"privileged_schemes" yaml:"privileged_schemes"`
	ScreenshotRate    float64       `mapstructure:"screenshot_rate" yaml:"screenshot_rate"`
}

// StorageConfig selects the durable key-value backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// ExportConfig controls where archives go.
type ExportConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Prompt bool   `mapstructure:"prompt" yaml:"prompt"`
	Format string `mapstructure:"format" yaml:"format"`
}

type TrackerConfig struct {
	RedactHeaders []string `mapstructure:"redact_headers" yaml:"redact_headers"`
}

type MonitorConfig struct {
	MirrorConsole bool `mapstructure:"mirror_console" yaml:"mirror_console"`
}

// NewDefaultConfig returns a configuration populated only from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "bugreport")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)

	v.SetDefault("capture.settle", "2s")
	v.SetDefault("capture.privileged_schemes", []string{"chrome://", "chrome-extension://", "devtools://", "edge://", "about:"})
	v.SetDefault("capture.screenshot_rate", 2.0)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "~/.bugreport/storage.db")

	v.SetDefault("export.dir", "~/Downloads")
	v.SetDefault("export.prompt", true)
	v.SetDefault("export.format", "")

	v.SetDefault("tracker.redact_headers", []string{})
	v.SetDefault("monitor.mirror_console", false)
}

// NewConfigFromViper decodes and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	_ = v.BindEnv("storage.dsn", "BUGREPORT_STORAGE_DSN", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.StorageCfg.Driver) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.StorageCfg.Driver)
	}
	if c.StorageCfg.Driver == "postgres" && c.StorageCfg.DSN == "" {
		return fmt.Errorf("storage.dsn is required for the postgres driver")
	}
	switch c.ExportCfg.Format {
	case "", "zip", "json", "text":
	default:
		return fmt.Errorf("export.format must be zip, json or text, got %q", c.ExportCfg.Format)
	}
	if c.CaptureCfg.Settle < 0 {
		return fmt.Errorf("capture.settle must not be negative")
	}
	if c.CaptureCfg.ScreenshotRate <= 0 {
		return fmt.Errorf("capture.screenshot_rate must be positive")
	}
	if c.BrowserCfg.WindowWidth < 0 || c.BrowserCfg.WindowHeight < 0 {
		return fmt.Errorf("browser window size must not be negative")
	}
	return nil
}
