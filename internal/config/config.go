// Package config provides configuration management for the FormSight server.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8745
	DefaultLogLevel = "info"
	DefaultDataDir  = ".formsight"

	// Environment variable names
	EnvPort       = "FORMSIGHT_PORT"
	EnvLogLevel   = "FORMSIGHT_LOG_LEVEL"
	EnvDataDir    = "FORMSIGHT_DATA_DIR"
	EnvAuthToken  = "FORMSIGHT_TOKEN"
	EnvSigningKey = "FORMSIGHT_SIGNING_KEY"
	EnvRulesPath  = "FORMSIGHT_RULES"
	EnvMQTTBroker = "FORMSIGHT_MQTT_BROKER"

	// Tool environment variable names
	EnvFFmpeg      = "FORMSIGHT_FFMPEG"
	EnvFFprobe     = "FORMSIGHT_FFPROBE"
	EnvPosePython  = "FORMSIGHT_POSE_PYTHON"
	EnvPoseModule  = "FORMSIGHT_POSE_MODULE"
	EnvPoseWorkers = "FORMSIGHT_POSE_WORKERS"

	// Database filename
	DBFilename = "formsight.db"

	// Tool defaults
	DefaultFFmpeg      = "ffmpeg"
	DefaultFFprobe     = "ffprobe"
	DefaultPoseModule  = "formsight_pose_worker"
	DefaultPoseWorkers = 4

	// Stage timeout defaults (seconds)
	DefaultTimeoutProbe   = 30
	DefaultTimeoutDecode  = 300
	DefaultTimeoutAnalyze = 600
	DefaultTimeoutRender  = 600
	DefaultTimeoutDoctor  = 30

	// Analysis option defaults
	DefaultMinVisibility  = 0.5
	DefaultMaxGapMs       = 300
	DefaultSmoothWindow   = 5
	DefaultMinViolationMs = 500
	DefaultMaxTips        = 3
	DefaultMaxClipSeconds = 60

	// Input gating defaults
	DefaultMinFrameEdge = 64                // pixels, shorter side
	DefaultMaxClipBytes = 256 * 1024 * 1024 // 256MB

	// Job runner poll interval
	DefaultRunnerIntervalMs = 2000
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ObjectsDir() string
	ResultsDir() string
	WorkDir() string
	AuthToken() string
	SigningKey() string
	RulesPath() string
	MQTTBroker() string
	FFmpegPath() string
	FFprobePath() string
	PosePython() string
	PoseModule() string
	PoseWorkers() int
	TimeoutProbe() time.Duration
	TimeoutDecode() time.Duration
	TimeoutAnalyze() time.Duration
	TimeoutRender() time.Duration
	TimeoutDoctor() time.Duration
	RunnerInterval() time.Duration
	MaxClipBytes() int64
	MinFrameEdge() int
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port       int
	logLevel   string
	dataDir    string
	authToken  string
	signingKey string
	rulesPath  string
	mqttBroker string

	ffmpegPath  string
	ffprobePath string
	posePython  string
	poseModule  string
	poseWorkers int
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:        DefaultPort,
		logLevel:    DefaultLogLevel,
		dataDir:     defaultDataDir(),
		ffmpegPath:  DefaultFFmpeg,
		ffprobePath: DefaultFFprobe,
		poseWorkers: DefaultPoseWorkers,
	}

	// Override port from environment
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

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.authToken = os.Getenv(EnvAuthToken)
	cfg.signingKey = os.Getenv(EnvSigningKey)
	cfg.rulesPath = os.Getenv(EnvRulesPath)
	cfg.mqttBroker = os.Getenv(EnvMQTTBroker)

	if f := os.Getenv(EnvFFmpeg); f != "" {
		cfg.ffmpegPath = f
	}
	if f := os.Getenv(EnvFFprobe); f != "" {
		cfg.ffprobePath = f
	}

	cfg.posePython = os.Getenv(EnvPosePython)

	if pm := os.Getenv(EnvPoseModule); pm != "" {
		cfg.poseModule = pm
	}

	if pw := os.Getenv(EnvPoseWorkers); pw != "" {
		n, err := strconv.Atoi(pw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPoseWorkers, err)
		}
		if n < 1 || n > 64 {
			return nil, fmt.Errorf("invalid %s: workers must be between 1 and 64", EnvPoseWorkers)
		}
		cfg.poseWorkers = n
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

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ObjectsDir returns the directory holding uploaded source clips
func (c *EnvConfig) ObjectsDir() string {
	return filepath.Join(c.dataDir, "objects")
}

// ResultsDir returns the directory holding annotated output videos
func (c *EnvConfig) ResultsDir() string {
	return filepath.Join(c.dataDir, "results")
}

// WorkDir returns the scratch directory for in-flight pipeline runs
func (c *EnvConfig) WorkDir() string {
	return filepath.Join(c.dataDir, "work")
}

// AuthToken returns the bearer token required by the API, empty disables auth
func (c *EnvConfig) AuthToken() string {
	return c.authToken
}

// SigningKey returns the HMAC key for signed upload/download URLs
func (c *EnvConfig) SigningKey() string {
	return c.signingKey
}

// RulesPath returns the path to the coaching rules YAML, empty uses built-ins
func (c *EnvConfig) RulesPath() string {
	return c.rulesPath
}

// MQTTBroker returns the broker address for result publishing, empty disables it
func (c *EnvConfig) MQTTBroker() string {
	return c.mqttBroker
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) PosePython() string {
	return c.posePython
}

func (c *EnvConfig) PoseModule() string {
	if c.poseModule != "" {
		return c.poseModule
	}
	return DefaultPoseModule
}

func (c *EnvConfig) PoseWorkers() int {
	return c.poseWorkers
}

func (c *EnvConfig) TimeoutProbe() time.Duration {
	return time.Duration(DefaultTimeoutProbe) * time.Second
}

func (c *EnvConfig) TimeoutDecode() time.Duration {
	return time.Duration(DefaultTimeoutDecode) * time.Second
}

func (c *EnvConfig) TimeoutAnalyze() time.Duration {
	return time.Duration(DefaultTimeoutAnalyze) * time.Second
}

func (c *EnvConfig) TimeoutRender() time.Duration {
	return time.Duration(DefaultTimeoutRender) * time.Second
}

func (c *EnvConfig) TimeoutDoctor() time.Duration {
	return time.Duration(DefaultTimeoutDoctor) * time.Second
}

func (c *EnvConfig) RunnerInterval() time.Duration {
	return time.Duration(DefaultRunnerIntervalMs) * time.Millisecond
}

func (c *EnvConfig) MaxClipBytes() int64 {
	return DefaultMaxClipBytes
}

func (c *EnvConfig) MinFrameEdge() int {
	return DefaultMinFrameEdge
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
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
