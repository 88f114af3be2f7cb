// Package config provides configuration management for the timeline agent.
// Values come from environment variables, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort            = 8787
	DefaultLogLevel        = "info"
	DefaultDataDir         = ".heimdex-timeline"
	DefaultAPIBase         = "http://localhost:8000"
	DefaultFrameCacheLimit = 30
	DefaultFrameTimeout    = 0 // seconds, 0 disables the deadline

	// Environment variable names
	EnvPort            = "HEIMDEX_TIMELINE_PORT"
	EnvLogLevel        = "HEIMDEX_TIMELINE_LOG_LEVEL"
	EnvLogFile         = "HEIMDEX_TIMELINE_LOG_FILE"
	EnvDataDir         = "HEIMDEX_TIMELINE_DATA_DIR"
	EnvAPIBase         = "HEIMDEX_TIMELINE_API_BASE"
	EnvFrameCacheLimit = "HEIMDEX_TIMELINE_FRAME_CACHE_LIMIT"
	EnvFrameTimeout    = "HEIMDEX_TIMELINE_FRAME_TIMEOUT"
	EnvHeadless        = "HEIMDEX_TIMELINE_HEADLESS"

	// Database filename
	DBFilename = "timeline.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFile() string
	DataDir() string
	DBPath() string
	FramesDir() string
	ExportDir() string
	APIBase() string
	FrameCacheLimit() int
	FrameTimeout() time.Duration
	Headless() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port            int
	logLevel        string
	logFile         string
	dataDir         string
	apiBase         string
	frameCacheLimit int
	frameTimeout    time.Duration
	headless        bool
}

// New loads .env from the working directory if present, then reads the
// environment. Variables already set take precedence over .env entries.
func New() (*EnvConfig, error) {
	_ = godotenv.Load()

	cfg := &EnvConfig{
		port:            DefaultPort,
		logLevel:        DefaultLogLevel,
		dataDir:         defaultDataDir(),
		apiBase:         DefaultAPIBase,
		frameCacheLimit: DefaultFrameCacheLimit,
		frameTimeout:    time.Duration(DefaultFrameTimeout) * time.Second,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}
	cfg.logFile = os.Getenv(EnvLogFile)

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if base := os.Getenv(EnvAPIBase); base != "" {
		cfg.apiBase = strings.TrimRight(base, "/")
	}

	if v := os.Getenv(EnvFrameCacheLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvFrameCacheLimit)
		}
		cfg.frameCacheLimit = n
	}

	if v := os.Getenv(EnvFrameTimeout); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("invalid %s: must be a non-negative number of seconds", EnvFrameTimeout)
		}
		cfg.frameTimeout = time.Duration(secs * float64(time.Second))
	}

	if v := os.Getenv(EnvHeadless); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFile returns the rotated log file path, empty for stdout only.
func (c *EnvConfig) LogFile() string {
	return c.logFile
}

func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// FramesDir holds materialized frame handles.
func (c *EnvConfig) FramesDir() string {
	return filepath.Join(c.dataDir, "frames")
}

func (c *EnvConfig) ExportDir() string {
	return filepath.Join(c.dataDir, "exports")
}

// APIBase is the frame backend base URL without a trailing slash.
func (c *EnvConfig) APIBase() string {
	return c.apiBase
}

func (c *EnvConfig) FrameCacheLimit() int {
	return c.frameCacheLimit
}

func (c *EnvConfig) FrameTimeout() time.Duration {
	return c.frameTimeout
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

// SetHeadless lets a command-line flag override the environment.
func (c *EnvConfig) SetHeadless(headless bool) {
	c.headless = headless
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
