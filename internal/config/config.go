// Package config loads runtime settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/pianohands/internal/detector"
)

// Prefix is prepended to every variable name.
const Prefix = "PIANOHANDS_"

// Config holds the runtime settings read from PIANOHANDS_* variables.
type Config struct {
	Python string `env:"PYTHON"`
	Script string `env:"DETECTOR_SCRIPT"`

	MaxHands               int     `env:"MAX_HANDS"                envDefault:"2"`
	MinDetectionConfidence float64 `env:"MIN_DETECTION_CONFIDENCE" envDefault:"0.5"`
	MinTrackingConfidence  float64 `env:"MIN_TRACKING_CONFIDENCE"  envDefault:"0.5"`

	ProgressEvery int    `env:"PROGRESS_EVERY" envDefault:"100"`
	ImageExt      string `env:"IMAGE_EXT"      envDefault:"jpg"`

	// Empty disables the run index.
	DBPath string `env:"DB_PATH"`
	// Empty disables the metrics server.
	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{Prefix: Prefix})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxHands < 1 {
		return fmt.Errorf("MAX_HANDS must be at least 1, got %d", c.MaxHands)
	}
	if c.ProgressEvery < 1 {
		return fmt.Errorf("PROGRESS_EVERY must be at least 1, got %d", c.ProgressEvery)
	}
	if c.ImageExt == "" {
		return fmt.Errorf("IMAGE_EXT must not be empty")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Detector returns the detector configuration for video processing.
func (c *Config) Detector() detector.Config {
	d := detector.DefaultConfig()
	d.MaxHands = c.MaxHands
	d.MinConfidence = c.MinDetectionConfidence
	d.MinTrackingConf = c.MinTrackingConfidence
	return d
}

// ServiceOptions returns how to launch the hand landmark service.
func (c *Config) ServiceOptions() detector.ServiceOptions {
	return detector.ServiceOptions{
		Python: c.Python,
		Script: c.Script,
	}
}

// Level returns the configured log level.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
