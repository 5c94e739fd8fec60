package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/satriahrh/wavebridge/adapters/llm"
	"github.com/satriahrh/wavebridge/adapters/modem"
	"github.com/satriahrh/wavebridge/domain/repositories"
)

// EnvPrefix prefixes every environment override, e.g. WAVEBRIDGE_MODEM_VOLUME
const EnvPrefix = "WAVEBRIDGE"

const defaultListen = "0.0.0.0:8000"

// History store kinds
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Modem   ModemConfig   `mapstructure:"modem"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Prompt  PromptConfig  `mapstructure:"prompt"`
	Auth    AuthConfig    `mapstructure:"auth"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BodyLimit       string        `mapstructure:"body_limit"`
}

// ModemConfig holds the transmit profile used for every reply.
type ModemConfig struct {
	ProtocolID int `mapstructure:"protocol_id"`
	Volume     int `mapstructure:"volume"`
}

// LLMConfig holds responder settings.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	BaseURL         string        `mapstructure:"base_url"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MockReply       string        `mapstructure:"mock_reply"`
}

// PromptConfig customizes the assistant persona.
type PromptConfig struct {
	Practice string `mapstructure:"practice"`
}

// AuthConfig holds authentication settings. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// HistoryConfig selects where completed exchanges are recorded.
type HistoryConfig struct {
	Store          string `mapstructure:"store"`
	MemoryCapacity int    `mapstructure:"memory_capacity"`
	MongoURI       string `mapstructure:"mongo_uri"`
	MongoDatabase  string `mapstructure:"mongo_database"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key with its default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", defaultListen)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.body_limit", "4M")

	v.SetDefault("modem.protocol_id", 1)
	v.SetDefault("modem.volume", 20)

	v.SetDefault("llm.provider", llm.ProviderGemini)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_output_tokens", 64)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.mock_reply", "")

	v.SetDefault("prompt.practice", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("history.store", StoreNone)
	v.SetDefault("history.memory_capacity", 1000)
	v.SetDefault("history.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("history.mongo_database", "wavebridge")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// BindEnv wires WAVEBRIDGE_* overrides plus the bare variable names the
// deployment already uses (PORT, MONGODB_URI). The provider keys
// GEMINI_API_KEY and OPENAI_API_KEY are resolved in Load.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY")
	_ = v.BindEnv("history.mongo_uri", EnvPrefix+"_HISTORY_MONGO_URI", "MONGODB_URI")
	_ = v.BindEnv("history.mongo_database", EnvPrefix+"_HISTORY_MONGO_DATABASE", "MONGODB_DATABASE")
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads configuration from v, which must already carry defaults,
// environment bindings and any config file or flags.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerAPIKey(cfg.LLM.Provider)
	}

	// PORT only replaces the default listen address
	if port := os.Getenv("PORT"); port != "" && cfg.Server.Listen == defaultListen {
		cfg.Server.Listen = "0.0.0.0:" + port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// providerAPIKey reads the bare key variable belonging to provider only.
func providerAPIKey(provider string) string {
	switch provider {
	case llm.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	case llm.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// New builds a Config from defaults and the environment only.
func New() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return Load(v)
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}

	if _, err := modem.LookupProtocol(c.Modem.ProtocolID); err != nil {
		return fmt.Errorf("modem.protocol_id: %w", err)
	}
	if c.Modem.Volume < 1 || c.Modem.Volume > 100 {
		return fmt.Errorf("modem.volume must be between 1 and 100, got %d", c.Modem.Volume)
	}

	if err := llm.ValidateConfig(c.LLMAdapterConfig()); err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	switch c.History.Store {
	case StoreNone, StoreMemory, StoreMongo:
	default:
		return fmt.Errorf("history.store must be one of none, memory, mongo, got %q", c.History.Store)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

// TransmitProfile returns the profile every reply is encoded with.
func (c *Config) TransmitProfile() repositories.TransmitProfile {
	return repositories.TransmitProfile{
		ProtocolID: c.Modem.ProtocolID,
		Volume:     c.Modem.Volume,
	}
}

// LLMAdapterConfig maps the llm section onto the adapter configuration.
func (c *Config) LLMAdapterConfig() llm.Config {
	return llm.Config{
		Provider:        c.LLM.Provider,
		APIKey:          c.LLM.APIKey,
		Model:           c.LLM.Model,
		BaseURL:         c.LLM.BaseURL,
		Temperature:     c.LLM.Temperature,
		MaxOutputTokens: c.LLM.MaxOutputTokens,
		Timeout:         c.LLM.Timeout,
		MaxRetries:      c.LLM.MaxRetries,
		MockReply:       c.LLM.MockReply,
	}
}

// AuthEnabled reports whether device tokens are required.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}
