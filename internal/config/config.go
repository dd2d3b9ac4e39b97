// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ayusman/nailosophy/internal/capture"
	"github.com/ayusman/nailosophy/internal/detector"
	"github.com/ayusman/nailosophy/internal/overlay"
)

// Prefix is prepended to every environment variable name.
const Prefix = "NAIL_"

// Config holds every runtime setting.
type Config struct {
	Addr      string
	DataDir   string
	StaticDir string

	FrontDevice  int
	BackDevice   int
	CameraWidth  int
	CameraHeight int
	FPS          int

	Detector detector.Config
	Viewport overlay.Viewport

	Skeleton bool
	Tray     bool
	Debug    bool
}

// Default returns the built-in settings.
func Default() *Config {
	dataDir := ".nailosophy"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".nailosophy")
	}

	return &Config{
		Addr:         ":8080",
		DataDir:      dataDir,
		FrontDevice:  0,
		BackDevice:   1,
		CameraWidth:  capture.DefaultWidth,
		CameraHeight: capture.DefaultHeight,
		FPS:          capture.DefaultFPS,
		Detector:     detector.DefaultConfig(),
		Viewport:     overlay.Viewport{Width: 1280, Height: 720},
	}
}

// Load reads the given .env files (".env" when none are named), then the
// environment. Variables already set in the environment win over the files.
// Missing files are not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	p := parser{}

	p.stringVar("ADDR", &cfg.Addr)
	p.stringVar("DATA_DIR", &cfg.DataDir)
	p.stringVar("STATIC_DIR", &cfg.StaticDir)
	p.intVar("FRONT_DEVICE", &cfg.FrontDevice)
	p.intVar("BACK_DEVICE", &cfg.BackDevice)
	p.intVar("CAMERA_WIDTH", &cfg.CameraWidth)
	p.intVar("CAMERA_HEIGHT", &cfg.CameraHeight)
	p.intVar("FPS", &cfg.FPS)
	p.intVar("MAX_HANDS", &cfg.Detector.MaxHands)

	complexity := int(cfg.Detector.Complexity)
	p.intVar("MODEL_COMPLEXITY", &complexity)
	cfg.Detector.Complexity = detector.ModelComplexity(complexity)

	p.floatVar("DETECTION_CONFIDENCE", &cfg.Detector.MinConfidence)
	p.floatVar("TRACKING_CONFIDENCE", &cfg.Detector.MinTrackingConf)
	p.intVar("VIEWPORT_WIDTH", &cfg.Viewport.Width)
	p.intVar("VIEWPORT_HEIGHT", &cfg.Viewport.Height)
	p.boolVar("SKELETON", &cfg.Skeleton)
	p.boolVar("TRAY", &cfg.Tray)
	p.boolVar("DEBUG", &cfg.Debug)

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that cannot be expressed by the parsed types.
func (c *Config) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		return fmt.Errorf("camera size must be positive, got %dx%d", c.CameraWidth, c.CameraHeight)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if err := c.Viewport.Check(); err != nil {
		return fmt.Errorf("viewport %dx%d: %w", c.Viewport.Width, c.Viewport.Height, err)
	}
	if c.DataDir == "" {
		return errors.New("data dir must be set")
	}
	return nil
}

// DBPath returns the SQLite database location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "nailosophy.db")
}

// parser records the first malformed variable and skips the rest.
type parser struct {
	err error
}

func (p *parser) lookup(name string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(Prefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (p *parser) stringVar(name string, dst *string) {
	if v, ok := p.lookup(name); ok {
		*dst = v
	}
}

func (p *parser) intVar(name string, dst *int) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("%s%s: %w", Prefix, name, err)
		return
	}
	*dst = n
}

func (p *parser) floatVar(name string, dst *float64) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = fmt.Errorf("%s%s: %w", Prefix, name, err)
		return
	}
	*dst = f
}

func (p *parser) boolVar(name string, dst *bool) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = fmt.Errorf("%s%s: %w", Prefix, name, err)
		return
	}
	*dst = b
}
