// Package config loads FaceGate settings from a YAML file and FACEGATE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/facegate/internal/loop"
)

// Config is the complete FaceGate configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Display  DisplayConfig  `yaml:"display"`
	Detector DetectorConfig `yaml:"detector"`
	Kiosk    KioskConfig    `yaml:"kiosk"`
	Store    StoreConfig    `yaml:"store"`
	AuthSvc  AuthSvcConfig  `yaml:"authsvc"`
	Hooks    HooksConfig    `yaml:"hooks"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig points at the remote authentication service.
type ServerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CameraConfig selects the video device.
type CameraConfig struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DisplayConfig is the size the overlay is drawn at.
type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DetectorConfig locates the face detection model.
type DetectorConfig struct {
	ModelPath     string        `yaml:"model_path"`
	ConfigPath    string        `yaml:"config_path"`
	ModelURL      string        `yaml:"model_url"`
	ConfigURL     string        `yaml:"config_url"`
	CacheDir      string        `yaml:"cache_dir"`
	MinConfidence float64       `yaml:"min_confidence"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	Interval      time.Duration `yaml:"interval"` // detection period; development override only
}

// KioskConfig configures the kiosk UI server.
type KioskConfig struct {
	Listen    string `yaml:"listen"`
	StaticDir string `yaml:"static_dir"`
	Tray      bool   `yaml:"tray"`
}

// StoreConfig locates the kiosk's audit database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AuthSvcConfig configures the reference authentication service.
type AuthSvcConfig struct {
	Listen        string `yaml:"listen"`
	DBPath        string `yaml:"db_path"`
	MatchDistance int    `yaml:"match_distance"`
}

// HooksConfig locates the attempt hooks. An empty Dir disables them.
type HooksConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DataDir returns ~/.facegate, or .facegate when the home directory is
// unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".facegate"
	}
	return filepath.Join(home, ".facegate")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DataDir()
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:5000",
			Timeout: 30 * time.Second,
		},
		Camera:  CameraConfig{Device: 0, Width: 640, Height: 480},
		Display: DisplayConfig{Width: 640, Height: 480},
		Detector: DetectorConfig{
			CacheDir:      filepath.Join(dir, "models"),
			MinConfidence: 0.5,
			FetchTimeout:  30 * time.Second,
			Interval:      loop.DefaultInterval,
		},
		Kiosk:   KioskConfig{Listen: ":8080"},
		Store:   StoreConfig{Path: filepath.Join(dir, "facegate.db")},
		AuthSvc: AuthSvcConfig{Listen: ":5000", DBPath: filepath.Join(dir, "authsvc.db"), MatchDistance: 10},
		Hooks:   HooksConfig{Timeout: 5 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. An empty path falls back to FACEGATE_CONFIG; a
// missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("FACEGATE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("FACEGATE_SERVER_URL", &c.Server.URL)
	envString("FACEGATE_LISTEN", &c.Kiosk.Listen)
	envString("FACEGATE_STATIC_DIR", &c.Kiosk.StaticDir)
	envString("FACEGATE_DB_PATH", &c.Store.Path)
	envString("FACEGATE_LOG_LEVEL", &c.Logging.Level)
	envString("FACEGATE_LOG_FORMAT", &c.Logging.Format)
	envString("FACEGATE_DETECTOR_MODEL", &c.Detector.ModelPath)
	envString("FACEGATE_DETECTOR_CONFIG", &c.Detector.ConfigPath)
	envString("FACEGATE_DETECTOR_MODEL_URL", &c.Detector.ModelURL)
	envString("FACEGATE_DETECTOR_CONFIG_URL", &c.Detector.ConfigURL)
	envString("FACEGATE_AUTHSVC_LISTEN", &c.AuthSvc.Listen)
	envString("FACEGATE_AUTHSVC_DB_PATH", &c.AuthSvc.DBPath)
	envString("FACEGATE_HOOKS_DIR", &c.Hooks.Dir)

	for _, v := range []struct {
		key string
		dst *int
	}{
		{"FACEGATE_CAMERA_ID", &c.Camera.Device},
		{"FACEGATE_CAMERA_WIDTH", &c.Camera.Width},
		{"FACEGATE_CAMERA_HEIGHT", &c.Camera.Height},
		{"FACEGATE_AUTHSVC_MATCH_DISTANCE", &c.AuthSvc.MatchDistance},
	} {
		if err := envInt(v.key, v.dst); err != nil {
			return err
		}
	}

	if err := envDuration("FACEGATE_SERVER_TIMEOUT", &c.Server.Timeout); err != nil {
		return err
	}
	if s := os.Getenv("FACEGATE_TRAY"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("FACEGATE_TRAY: %w", err)
		}
		c.Kiosk.Tray = b
	}
	return nil
}

func envString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

// envInt overrides dst when key is set. A malformed value is an error
// rather than a silent fallback.
func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if u, err := url.Parse(c.Server.URL); c.Server.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		add("server.url must be an http(s) URL, got %q", c.Server.URL)
	}
	if c.Server.Timeout <= 0 {
		add("server.timeout must be positive")
	}
	if c.Camera.Device < 0 {
		add("camera.device must not be negative")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		add("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		add("display size must be positive, got %dx%d", c.Display.Width, c.Display.Height)
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		add("detector.min_confidence must be within [0, 1]")
	}
	if c.Detector.Interval <= 0 {
		add("detector.interval must be positive")
	}
	if c.Kiosk.Listen == "" {
		add("kiosk.listen is required")
	}
	if c.Store.Path == "" {
		add("store.path is required")
	}
	if c.AuthSvc.MatchDistance < 0 || c.AuthSvc.MatchDistance > 64 {
		add("authsvc.match_distance must be within [0, 64]")
	}
	if c.Hooks.Dir != "" && c.Hooks.Timeout <= 0 {
		add("hooks.timeout must be positive")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		add("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
