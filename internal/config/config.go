// Package config loads mailcal configuration from an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LLMConfig selects and configures the text-generation gateway.
type LLMConfig struct {
	Provider    string  `yaml:"provider" validate:"oneof=openai gemini"`
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model" validate:"required"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// GoogleConfig holds OAuth client settings shared by Calendar and Gmail.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenFile    string `yaml:"token_file" validate:"required"`
	CalendarID   string `yaml:"calendar_id" validate:"required"`
}

// CalDAVConfig configures the CalDAV calendar backend.
type CalDAVConfig struct {
	Endpoint     string `yaml:"endpoint" validate:"omitempty,url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	CalendarName string `yaml:"calendar_name"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=postgres sqlite"`
	DatabaseURL string `yaml:"database_url" validate:"required_if=Driver postgres"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
}

// MailConfig configures inbound selection and outbound identity.
type MailConfig struct {
	SenderEmail     string        `yaml:"sender_email" validate:"omitempty,email"`
	SenderName      string        `yaml:"sender_name"`
	SubjectKeywords []string      `yaml:"subject_keywords" validate:"min=1"`
	MaxBodyLength   int           `yaml:"max_body_length" validate:"gt=0"`
	DedupTTL        time.Duration `yaml:"dedup_ttl"`
}

// Config holds all configuration for one mailcal process.
type Config struct {
	TimeZone         string `validate:"required"`
	SearchWindowDays int    `validate:"gt=0"`
	CalendarBackend  string `validate:"oneof=google caldav"`

	LLM    LLMConfig
	Google GoogleConfig
	CalDAV CalDAVConfig
	Store  StoreConfig
	Mail   MailConfig

	// RedisURL enables inbound deduplication when set.
	RedisURL string `validate:"omitempty,url"`

	LogLevel string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	TimeZone         string       `yaml:"timezone"`
	SearchWindowDays int          `yaml:"search_window_days"`
	Calendar         string       `yaml:"calendar"`
	LLM              rawLLMConfig `yaml:"llm"`
	Google           GoogleConfig `yaml:"google"`
	CalDAV           CalDAVConfig `yaml:"caldav"`
	Store            StoreConfig  `yaml:"store"`
	Mail             MailConfig   `yaml:"mail"`
	Redis            struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	LogLevel string `yaml:"log_level"`
}

// rawLLMConfig keeps Temperature a pointer so an explicit 0 is told apart
// from an absent key.
type rawLLMConfig struct {
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	Temperature *float32 `yaml:"temperature"`
}

var defaultKeywords = []string{"meet", "meeting", "collaboration", "client", "partenaria"}

// Load reads configuration from the YAML file named by CONFIG_PATH (with env
// var expansion, optional) and fills the gaps from environment variables.
func Load() (*Config, error) {
	var raw rawConfig

	configPath := envOrDefault("CONFIG_PATH", "mailcal.yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML %s: %w", configPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		TimeZone:         firstNonEmpty(raw.TimeZone, envOrDefault("PRIMARY_TIMEZONE", "Africa/Tunis")),
		SearchWindowDays: firstPositive(raw.SearchWindowDays, envOrDefaultInt("SEARCH_WINDOW_DAYS", 7)),
		CalendarBackend:  strings.ToLower(firstNonEmpty(raw.Calendar, envOrDefault("CALENDAR_BACKEND", "google"))),
		LLM: LLMConfig{
			Provider:    strings.ToLower(firstNonEmpty(raw.LLM.Provider, envOrDefault("LLM_PROVIDER", "openai"))),
			BaseURL:     firstNonEmpty(raw.LLM.BaseURL, envOrDefault("LLM_BASE_URL", "https://api.groq.com/openai")),
			APIKey:      firstNonEmpty(raw.LLM.APIKey, os.Getenv("LLM_API_KEY")),
			Model:       firstNonEmpty(raw.LLM.Model, envOrDefault("LLM_MODEL", "llama-3.1-8b-instant")),
			Temperature: envOrDefaultFloat("LLM_TEMPERATURE", 0.1),
		},
		Google: GoogleConfig{
			ClientID:     firstNonEmpty(raw.Google.ClientID, os.Getenv("GOOGLE_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Google.ClientSecret, os.Getenv("GOOGLE_CLIENT_SECRET")),
			TokenFile:    firstNonEmpty(raw.Google.TokenFile, envOrDefault("GOOGLE_TOKEN_FILE", "token.json")),
			CalendarID:   firstNonEmpty(raw.Google.CalendarID, envOrDefault("GOOGLE_CALENDAR_ID", "primary")),
		},
		CalDAV: CalDAVConfig{
			Endpoint:     firstNonEmpty(raw.CalDAV.Endpoint, envOrDefault("CALDAV_ENDPOINT", "https://caldav.icloud.com/")),
			Username:     firstNonEmpty(raw.CalDAV.Username, os.Getenv("ICLOUD_USERNAME")),
			Password:     firstNonEmpty(raw.CalDAV.Password, os.Getenv("ICLOUD_APP_SPECIFIC_PASSWORD")),
			CalendarName: firstNonEmpty(raw.CalDAV.CalendarName, os.Getenv("ICLOUD_CALENDAR_NAME")),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(firstNonEmpty(raw.Store.Driver, envOrDefault("STORE_DRIVER", "sqlite"))),
			DatabaseURL: firstNonEmpty(raw.Store.DatabaseURL, os.Getenv("DATABASE_URL")),
			SQLitePath:  firstNonEmpty(raw.Store.SQLitePath, envOrDefault("SQLITE_PATH", "mailcal.db")),
		},
		Mail: MailConfig{
			SenderEmail:     firstNonEmpty(raw.Mail.SenderEmail, os.Getenv("SENDER_EMAIL")),
			SenderName:      firstNonEmpty(raw.Mail.SenderName, envOrDefault("SENDER_NAME", "Calendar Assistant")),
			SubjectKeywords: raw.Mail.SubjectKeywords,
			MaxBodyLength:   firstPositive(raw.Mail.MaxBodyLength, envOrDefaultInt("MAX_BODY_LENGTH", 2000)),
			DedupTTL:        raw.Mail.DedupTTL,
		},
		RedisURL: firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		LogLevel: firstNonEmpty(raw.LogLevel, envOrDefault("LOG_LEVEL", "info")),
	}

	if raw.LLM.Temperature != nil {
		cfg.LLM.Temperature = *raw.LLM.Temperature
	}
	if len(cfg.Mail.SubjectKeywords) == 0 {
		if v := os.Getenv("SUBJECT_KEYWORDS"); v != "" {
			cfg.Mail.SubjectKeywords = splitList(v)
		} else {
			cfg.Mail.SubjectKeywords = append([]string(nil), defaultKeywords...)
		}
	}
	if cfg.Mail.DedupTTL == 0 {
		cfg.Mail.DedupTTL = envOrDefaultDuration("DEDUP_TTL", 7*24*time.Hour)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the time zone resolves.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.CalendarBackend == "caldav" && (c.CalDAV.Username == "" || c.CalDAV.CalendarName == "") {
		return fmt.Errorf("invalid configuration: caldav backend requires username and calendar name")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.TimeZone, err)
	}
	return nil
}

// Location resolves TimeZone. Validate has already proven it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
