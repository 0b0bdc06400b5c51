package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// AppName is used for config, data and keyring namespaces
	AppName = "igfeed"

	// DefaultUserAgent is the desktop browser identity sent with every request
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultAppID is the web application id expected by the JSON endpoints
	DefaultAppID = "936619743392459"
)

// Config holds all configuration options for igfeed
type Config struct {
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`
	Challenge ChallengeConfig `yaml:"challenge" json:"challenge"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// InstagramConfig holds transport settings for talking to Instagram
type InstagramConfig struct {
	UserAgent  string        `yaml:"user_agent" json:"user_agent"`
	AppID      string        `yaml:"app_id" json:"app_id"`
	WebBaseURL string        `yaml:"web_base_url" json:"web_base_url"`
	APIBaseURL string        `yaml:"api_base_url" json:"api_base_url"`
	Proxy      string        `yaml:"proxy" json:"proxy"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	ChromeTLS  bool          `yaml:"chrome_tls" json:"chrome_tls"`
	Compress   bool          `yaml:"compress" json:"compress"`
}

// ChallengeConfig controls checkpoint resolution
type ChallengeConfig struct {
	// ResponseDelay is waited before each POST of the challenge protocol
	ResponseDelay   time.Duration `yaml:"response_delay" json:"response_delay"`
	PollInterval    time.Duration `yaml:"poll_interval" json:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts" json:"max_poll_attempts"`
	// PollTimeout bounds the whole poll; zero means one interval more than the attempts take
	PollTimeout  time.Duration `yaml:"poll_timeout" json:"poll_timeout"`
	CodeStore    string        `yaml:"code_store" json:"code_store"`
	CodeLifetime time.Duration `yaml:"code_lifetime" json:"code_lifetime"`
	// CodeSources lists where codes are looked up, in order: cache, keyring, env, prompt
	CodeSources []string `yaml:"code_sources" json:"code_sources"`
}

// SessionConfig controls where an established session is persisted
type SessionConfig struct {
	File    string `yaml:"file" json:"file"`
	Encrypt bool   `yaml:"encrypt" json:"encrypt"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerMinute of zero disables limiting
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig holds caller-side retry settings for feed commands
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	dataDir := DataDir()

	return &Config{
		Instagram: InstagramConfig{
			UserAgent:  DefaultUserAgent,
			AppID:      DefaultAppID,
			WebBaseURL: "https://www.instagram.com",
			APIBaseURL: "https://i.instagram.com",
			Timeout:    30 * time.Second,
			Compress:   true,
		},
		Challenge: ChallengeConfig{
			ResponseDelay:   3 * time.Second,
			PollInterval:    time.Second,
			MaxPollAttempts: 1000,
			CodeStore:       filepath.Join(dataDir, "codes.json"),
			CodeLifetime:    15 * time.Minute,
			CodeSources:     []string{"cache", "env"},
		},
		Session: SessionConfig{
			File:    filepath.Join(dataDir, "session.json"),
			Encrypt: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Retry: RetryConfig{
			Enabled:     true,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from IGFEED_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("IGFEED_USER_AGENT"); v != "" {
		c.Instagram.UserAgent = v
	}
	if v := os.Getenv("IGFEED_PROXY"); v != "" {
		c.Instagram.Proxy = v
	}
	if v := os.Getenv("IGFEED_CHROME_TLS"); v != "" {
		c.Instagram.ChromeTLS = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("IGFEED_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGFEED_TIMEOUT: %w", err))
		} else {
			c.Instagram.Timeout = d
		}
	}
	if v := os.Getenv("IGFEED_CHALLENGE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGFEED_CHALLENGE_DELAY: %w", err))
		} else {
			c.Challenge.ResponseDelay = d
		}
	}
	if v := os.Getenv("IGFEED_POLL_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGFEED_POLL_ATTEMPTS: %w", err))
		} else {
			c.Challenge.MaxPollAttempts = n
		}
	}
	if v := os.Getenv("IGFEED_CODE_STORE"); v != "" {
		c.Challenge.CodeStore = v
	}
	if v := os.Getenv("IGFEED_CODE_SOURCES"); v != "" {
		c.Challenge.CodeSources = strings.Split(v, ",")
	}
	if v := os.Getenv("IGFEED_SESSION_FILE"); v != "" {
		c.Session.File = v
	}
	if v := os.Getenv("IGFEED_REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGFEED_REQUESTS_PER_MINUTE: %w", err))
		} else {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("IGFEED_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IGFEED_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".igfeed.yaml",
		".igfeed.yml",
		filepath.Join(ConfigDir(), "config.yaml"),
		filepath.Join(home, ".igfeed.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Instagram.UserAgent == "" {
		errs = append(errs, errors.New("user agent is required"))
	}
	if c.Instagram.AppID == "" {
		errs = append(errs, errors.New("app id is required"))
	}
	for name, raw := range map[string]string{"web base URL": c.Instagram.WebBaseURL, "api base URL": c.Instagram.APIBaseURL} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid %s: %q", name, raw))
		}
	}
	if c.Instagram.Proxy != "" {
		if u, err := url.Parse(c.Instagram.Proxy); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid proxy URL: %q", c.Instagram.Proxy))
		}
	}
	if c.Instagram.Timeout < 0 {
		errs = append(errs, errors.New("timeout cannot be negative"))
	}

	if c.Challenge.ResponseDelay < 0 {
		errs = append(errs, errors.New("challenge response delay cannot be negative"))
	}
	if c.Challenge.PollInterval < 0 {
		errs = append(errs, errors.New("poll interval cannot be negative"))
	}
	if c.Challenge.MaxPollAttempts <= 0 {
		errs = append(errs, errors.New("max poll attempts must be positive"))
	}
	validSources := map[string]bool{"cache": true, "keyring": true, "env": true, "prompt": true}
	for _, src := range c.Challenge.CodeSources {
		if !validSources[strings.TrimSpace(src)] {
			errs = append(errs, fmt.Errorf("unknown code source: %q", src))
		}
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Retry.Enabled {
		if c.Retry.MaxAttempts <= 0 {
			errs = append(errs, errors.New("retry max attempts must be positive"))
		}
		if c.Retry.Multiplier < 1 {
			errs = append(errs, errors.New("retry multiplier must be at least 1"))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if proxy, ok := flags["proxy"].(string); ok && proxy != "" {
		c.Instagram.Proxy = proxy
	}
	if ua, ok := flags["user-agent"].(string); ok && ua != "" {
		c.Instagram.UserAgent = ua
	}
	if chromeTLS, ok := flags["chrome-tls"].(bool); ok && chromeTLS {
		c.Instagram.ChromeTLS = true
	}
	if delay, ok := flags["challenge-delay"].(time.Duration); ok && delay > 0 {
		c.Challenge.ResponseDelay = delay
	}
	if sessionFile, ok := flags["session-file"].(string); ok && sessionFile != "" {
		c.Session.File = sessionFile
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".igfeed.env"))
	}

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// ConfigDir returns the per-user configuration directory without creating it
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", AppName)
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), AppName)
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName)
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", AppName)
	}
}

// DataDir returns the per-user data directory without creating it
func DataDir() string {
	switch runtime.GOOS {
	case "darwin", "windows":
		return ConfigDir()
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName)
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", AppName)
	}
}
