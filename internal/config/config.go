// Package config loads abhinaya settings from a .env file and the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Pointer target kinds.
const (
	PointerLayout  = "layout"
	PointerDesktop = "desktop"
)

// Detector backends.
const (
	DetectorMediaPipe = "mediapipe"
	DetectorMock      = "mock"
)

// Config holds runtime configuration.
type Config struct {
	Addr     string
	DataDir  string
	CameraID int
	LogLevel string
	Tray     bool

	Detector         string
	ClassifierSocket string

	PoseEvery          int           // pose+face run every Nth frame
	AccessoryInterval  time.Duration // accessory classifier throttle per face
	ExpressionInterval time.Duration // expression classifier throttle per face
	ClassifierWorkers  int           // 0 runs classifiers inline
	ExclusiveMatch     bool          // one-to-one face/body assignment

	ScreenWidth  int
	ScreenHeight int
	Pointer      string

	MotionThreshold float64
}

// Load reads .env (when present) and then the environment.
// Variables already set in the environment win over .env values.
func Load() *Config {
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		Addr:     getEnv("ABHINAYA_ADDR", ":8080"),
		DataDir:  getEnv("ABHINAYA_DATA_DIR", filepath.Join(home, ".abhinaya")),
		CameraID: getEnvAsInt("ABHINAYA_CAMERA", 0),
		LogLevel: getEnv("ABHINAYA_LOG_LEVEL", "info"),
		Tray:     getEnvAsBool("ABHINAYA_TRAY", false),

		Detector:         getEnv("ABHINAYA_DETECTOR", DetectorMediaPipe),
		ClassifierSocket: getEnv("ABHINAYA_CLASSIFIER_SOCKET", "/tmp/abhinaya-classifier.sock"),

		PoseEvery:          getEnvAsInt("ABHINAYA_POSE_EVERY", 2),
		AccessoryInterval:  getEnvAsDuration("ABHINAYA_ACCESSORY_INTERVAL", time.Second),
		ExpressionInterval: getEnvAsDuration("ABHINAYA_EXPRESSION_INTERVAL", 100*time.Millisecond),
		ClassifierWorkers:  getEnvAsInt("ABHINAYA_CLASSIFIER_WORKERS", 0),
		ExclusiveMatch:     getEnvAsBool("ABHINAYA_EXCLUSIVE_MATCH", false),

		ScreenWidth:  getEnvAsInt("ABHINAYA_SCREEN_WIDTH", 1280),
		ScreenHeight: getEnvAsInt("ABHINAYA_SCREEN_HEIGHT", 720),
		Pointer:      getEnv("ABHINAYA_POINTER", PointerLayout),

		MotionThreshold: getEnvAsFloat("ABHINAYA_MOTION_THRESHOLD", 1.0),
	}
}

// DBPath returns the SQLite database location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "abhinaya.db")
}

// SettingKeys are the keys ApplySettings understands.
var SettingKeys = []string{
	"ABHINAYA_POSE_EVERY",
	"ABHINAYA_ACCESSORY_INTERVAL",
	"ABHINAYA_EXPRESSION_INTERVAL",
	"ABHINAYA_CLASSIFIER_WORKERS",
	"ABHINAYA_EXCLUSIVE_MATCH",
	"ABHINAYA_SCREEN_WIDTH",
	"ABHINAYA_SCREEN_HEIGHT",
	"ABHINAYA_POINTER",
	"ABHINAYA_MOTION_THRESHOLD",
}

// IsSettingKey reports whether key can be persisted as a setting.
func IsSettingKey(key string) bool {
	for _, k := range SettingKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ApplySettings overlays persisted settings onto the config.
// Keys use the environment variable names; unknown keys and unparsable
// values are ignored.
func (c *Config) ApplySettings(settings map[string]string) {
	for key, value := range settings {
		switch key {
		case "ABHINAYA_POSE_EVERY":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				c.PoseEvery = v
			}
		case "ABHINAYA_ACCESSORY_INTERVAL":
			if v, err := time.ParseDuration(value); err == nil {
				c.AccessoryInterval = v
			}
		case "ABHINAYA_EXPRESSION_INTERVAL":
			if v, err := time.ParseDuration(value); err == nil {
				c.ExpressionInterval = v
			}
		case "ABHINAYA_CLASSIFIER_WORKERS":
			if v, err := strconv.Atoi(value); err == nil && v >= 0 {
				c.ClassifierWorkers = v
			}
		case "ABHINAYA_EXCLUSIVE_MATCH":
			if v, err := strconv.ParseBool(value); err == nil {
				c.ExclusiveMatch = v
			}
		case "ABHINAYA_SCREEN_WIDTH":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				c.ScreenWidth = v
			}
		case "ABHINAYA_SCREEN_HEIGHT":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				c.ScreenHeight = v
			}
		case "ABHINAYA_POINTER":
			if value == PointerLayout || value == PointerDesktop {
				c.Pointer = value
			}
		case "ABHINAYA_MOTION_THRESHOLD":
			if v, err := strconv.ParseFloat(value, 64); err == nil && v > 0 {
				c.MotionThreshold = v
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
