package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrConfigCreated is returned when no config file existed and a defaulted one was written
var ErrConfigCreated = errors.New("config file did not exist; a default one was created")

// Allowed values for enumerated fields
var (
	PostPrivacyValues = []string{"direct", "private", "unlisted", "public"}
	ActuatorValues    = []string{"pishock", "intiface", "log"}
	StrategyValues    = []string{"direct", "hold", "ramp"}
)

// MatcherConfig controls which replies produce triggers
type MatcherConfig struct {
	Prefix    string `json:"prefix"`     // single character that starts a trigger, e.g. "b"
	Marker    string `json:"marker"`     // single repeated character, e.g. "z"
	MaxRepeat int    `json:"max_repeat"` // longest marker run that still counts
	Unit      int    `json:"unit"`       // intensity per marker character
}

// HoldConfig configures the hold strategy
type HoldConfig struct {
	Seconds int `json:"seconds"`
}

// RampConfig configures the ramp strategy
type RampConfig struct {
	Baseline     int    `json:"baseline"`
	HoldSeconds  int    `json:"hold_seconds"`
	DecaySeconds int    `json:"decay_seconds"`
	Reduction    int    `json:"reduction"`
	Ceiling      int    `json:"ceiling"`
	StatsFile    string `json:"stats_file"`
}

// PiShockConfig holds non-secret PiShock settings
type PiShockConfig struct {
	Duration  int `json:"duration"`  // seconds
	Operation int `json:"operation"` // 0 shock, 1 vibrate, 2 beep
}

// IntifaceConfig holds Intiface Central connection settings
type IntifaceConfig struct {
	URL         string `json:"url"`
	DeviceIndex int    `json:"device_index"`
}

// Config holds all configuration for the application
type Config struct {
	Name string `json:"name"`

	DenyList  []string `json:"deny_list"`
	AllowList []string `json:"allow_list"`

	ParseInterval int  `json:"parse_interval"` // seconds between polls of the target post
	ActInterval   int  `json:"act_interval"`   // seconds between actuator cycles
	Verbose       bool `json:"verbose"`

	ClosedMarker string `json:"closed_marker"`
	CloseStats   bool   `json:"close_stats"`

	// Only count direct replies to the target post
	Strict bool `json:"strict"`

	PostBody    string `json:"post_body"`
	PostCW      string `json:"post_cw"`
	PostPrivacy string `json:"post_privacy"`

	LogFilePath    string `json:"logfilepath"`
	LastFilePath   string `json:"lastfilepath"`
	TargetFilePath string `json:"targetfilepath"`
	KnownFilePath  string `json:"knownfilepath"`

	Scaler   float64        `json:"scaler"`
	Actuator string         `json:"actuator"`
	Strategy string         `json:"strategy"`
	Matcher  MatcherConfig  `json:"matcher"`
	Hold     HoldConfig     `json:"hold"`
	Ramp     RampConfig     `json:"ramp"`
	PiShock  PiShockConfig  `json:"pishock"`
	Intiface IntifaceConfig `json:"intiface"`

	// Environment-only settings below; never written to the config file

	Debug     bool   `json:"-"`
	LogFormat string `json:"-"`
	Port      string `json:"-"`

	MastodonBaseURL     string `json:"-"`
	MastodonAccessToken string `json:"-"`

	PiShockUsername  string `json:"-"`
	PiShockAPIKey    string `json:"-"`
	PiShockShareCode string `json:"-"`
	PiShockAppName   string `json:"-"`

	StorageAccount   string `json:"-"`
	StorageContainer string `json:"-"`

	TeamsWebhookURL   string `json:"-"`
	NotificationEmail string `json:"-"`
	SMTPHost          string `json:"-"`
	SMTPPort          int    `json:"-"`
	SMTPUsername      string `json:"-"`
	SMTPPassword      string `json:"-"`
}

// Default returns the configuration written for a fresh install
func Default() *Config {
	return &Config{
		Name:          "Default",
		ParseInterval: 10,
		ActInterval:   5,
		ClosedMarker:  "[FINISHED]",
		PostBody:      " ",
		PostCW:        "Your post CWs go here",
		PostPrivacy:   "unlisted",

		LogFilePath:    "./log.txt",
		LastFilePath:   "./last.txt",
		TargetFilePath: "./target.txt",
		KnownFilePath:  "./known.txt",

		Scaler:   1,
		Actuator: "log",
		Strategy: "direct",
		Matcher: MatcherConfig{
			Prefix:    "b",
			Marker:    "z",
			MaxRepeat: 10,
			Unit:      10,
		},
		Hold: HoldConfig{Seconds: 10},
		Ramp: RampConfig{
			Baseline:     10,
			HoldSeconds:  20,
			DecaySeconds: 5,
			Reduction:    5,
			Ceiling:      100,
			StatsFile:    "./stats.json",
		},
		PiShock:  PiShockConfig{Duration: 1, Operation: 0},
		Intiface: IntifaceConfig{URL: "ws://localhost:12345", DeviceIndex: 0},
	}
}

// Load reads the config file at path, applies environment settings and validates the result.
// When the file does not exist a defaulted config is written there and ErrConfigCreated is returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if saveErr := cfg.Save(path); saveErr != nil {
				return nil, fmt.Errorf("failed to write default config: %w", saveErr)
			}
			return nil, ErrConfigCreated
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("malformed configuration in %s: %w", path, err)
	}

	cfg.applyEnv()

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

// Save writes the file-backed part of the configuration as indented JSON
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() {
	c.Debug = getBoolEnv("DEBUG", c.Verbose)
	c.LogFormat = getEnv("LOG_FORMAT", "text")
	c.Port = getEnv("PORT", "")

	c.MastodonBaseURL = strings.TrimRight(getEnv("MASTODON_BASE_URL", ""), "/")
	c.MastodonAccessToken = getEnv("MASTODON_ACCESS_TOKEN", "")

	c.PiShockUsername = getEnv("PISHOCK_USERNAME", "")
	c.PiShockAPIKey = getEnv("PISHOCK_API_KEY", "")
	c.PiShockShareCode = getEnv("PISHOCK_SHARE_CODE", "")
	c.PiShockAppName = getEnv("PISHOCK_APP_NAME", "Bzz")
	c.Intiface.URL = getEnv("INTIFACE_URL", c.Intiface.URL)

	c.StorageAccount = getEnv("AZURE_STORAGE_ACCOUNT", "")
	c.StorageContainer = getEnv("AZURE_STORAGE_CONTAINER", "bzz")

	c.TeamsWebhookURL = getEnv("TEAMS_WEBHOOK_URL", "")
	c.NotificationEmail = getEnv("NOTIFICATION_EMAIL", "")
	c.SMTPHost = getEnv("SMTP_HOST", "")
	c.SMTPPort = getIntEnv("SMTP_PORT", 587)
	c.SMTPUsername = getEnv("SMTP_USERNAME", "")
	c.SMTPPassword = getEnv("SMTP_PASSWORD", "")
}

func (c *Config) validate() error {
	if err := oneOf("post_privacy", c.PostPrivacy, PostPrivacyValues); err != nil {
		return err
	}
	if err := oneOf("actuator", c.Actuator, ActuatorValues); err != nil {
		return err
	}
	if err := oneOf("strategy", c.Strategy, StrategyValues); err != nil {
		return err
	}

	if c.ParseInterval <= 0 || c.ActInterval <= 0 {
		return fmt.Errorf("parse_interval and act_interval must be positive")
	}
	if c.Scaler < 0 {
		return fmt.Errorf("scaler must not be negative")
	}

	if utf8.RuneCountInString(c.Matcher.Prefix) != 1 || utf8.RuneCountInString(c.Matcher.Marker) != 1 {
		return fmt.Errorf("matcher prefix and marker must be single characters")
	}
	if c.Matcher.MaxRepeat < 1 {
		return fmt.Errorf("matcher max_repeat must be at least 1")
	}
	if c.Matcher.Unit < 0 {
		return fmt.Errorf("matcher unit must not be negative")
	}

	if c.Strategy == "hold" && c.Hold.Seconds <= 0 {
		return fmt.Errorf("hold seconds must be positive")
	}
	if c.Strategy == "ramp" {
		if c.Ramp.Ceiling <= c.Ramp.Baseline {
			return fmt.Errorf("ramp ceiling must be above baseline")
		}
		if c.Ramp.StatsFile == "" {
			return fmt.Errorf("ramp stats_file is required")
		}
		// Decay must make progress or the idle handler fires forever
		if c.Ramp.Reduction <= 0 {
			return fmt.Errorf("ramp reduction must be positive")
		}
		if c.Ramp.HoldSeconds <= 0 {
			return fmt.Errorf("ramp hold_seconds must be positive")
		}
		if c.Ramp.DecaySeconds < 0 {
			return fmt.Errorf("ramp decay_seconds must not be negative")
		}
	}

	if c.MastodonBaseURL == "" || c.MastodonAccessToken == "" {
		return fmt.Errorf("MASTODON_BASE_URL and MASTODON_ACCESS_TOKEN are required")
	}

	if c.Actuator == "pishock" {
		if c.PiShockUsername == "" || c.PiShockAPIKey == "" || c.PiShockShareCode == "" {
			return fmt.Errorf("PISHOCK_USERNAME, PISHOCK_API_KEY and PISHOCK_SHARE_CODE are required for the pishock actuator")
		}
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// normalize lower-cases list entries so lookups can be case-insensitive
func (c *Config) normalize() {
	c.DenyList = lowerAll(c.DenyList)
	c.AllowList = lowerAll(c.AllowList)
}

// ParsePeriod returns the reader cadence period
func (c *Config) ParsePeriod() time.Duration {
	return time.Duration(c.ParseInterval) * time.Second
}

// ActPeriod returns the actor cadence period
func (c *Config) ActPeriod() time.Duration {
	return time.Duration(c.ActInterval) * time.Second
}

func oneOf(field, value string, valid []string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("%s: value '%s' must be one of %v", field, value, valid)
}

func lowerAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
