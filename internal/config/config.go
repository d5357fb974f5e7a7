package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	LLM      LLMConfig     `mapstructure:"llm"`
	Server   ServerConfig  `mapstructure:"server"`
	CORS     CORSConfig    `mapstructure:"cors"`
	Chat     ChatConfig    `mapstructure:"chat"`
	Ranking  RankingConfig `mapstructure:"ranking"`
	LogLevel string        `mapstructure:"log_level"`
}

// LLMConfig holds the upstream chat-completion provider configuration.
// The API key is the only credential in the system; it is read from the
// config file or the FOLIO_LLM_API_KEY environment variable and never
// appears in any response.
type LLMConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// CORSConfig holds the origin allow-list. An empty list allows any origin.
// FOLIO_CORS_ALLOWED_ORIGINS accepts a comma-separated list.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ChatConfig holds the session-side defaults served to chat clients.
type ChatConfig struct {
	SystemPrompt   string `mapstructure:"system_prompt"`
	WelcomeMessage string `mapstructure:"welcome_message"`
	MaxHistory     int    `mapstructure:"max_history"`
}

// RankingConfig holds the fact-selection thresholds.
type RankingConfig struct {
	Limit    int `mapstructure:"limit"`
	Fallback int `mapstructure:"fallback"`
}

const (
	defaultModel       = "llama3-8b-8192"
	defaultBaseURL     = "https://api.groq.com/openai/v1"
	defaultTemperature = 0.2
	defaultMaxTokens   = 512
	defaultTimeout     = 30
	defaultPort        = "8080"

	// DefaultSystemPrompt is used when the chat section leaves it unset.
	DefaultSystemPrompt = "You are a helpful assistant."
	// DefaultWelcomeMessage greets a freshly opened session.
	DefaultWelcomeMessage = "Hi! Ask me about this portfolio."
	// DefaultMaxHistory bounds the number of trailing turns per request.
	DefaultMaxHistory = 14

	// DefaultRankingLimit caps how many matched facts are injected.
	DefaultRankingLimit = 8
	// DefaultRankingFallback is how many leading facts are used when
	// nothing matches the query.
	DefaultRankingFallback = 6
)

// Load reads the configuration from config.yaml (or FOLIO_CONFIG_PATH)
// and the FOLIO_* environment, then fills in typed defaults so callers
// always receive a well-formed Config.
func Load() (*Config, error) {
	v := viper.New()
	if path := os.Getenv("FOLIO_CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when the environment carries the rest.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("FOLIO_LLM_API_KEY")
	}
	if origins := os.Getenv("FOLIO_CORS_ALLOWED_ORIGINS"); origins != "" && len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = splitOrigins(origins)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = defaultBaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModel
	}
	if cfg.LLM.Temperature <= 0 {
		cfg.LLM.Temperature = defaultTemperature
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = defaultMaxTokens
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = defaultTimeout
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaultPort
	}
	if cfg.Chat.SystemPrompt == "" {
		cfg.Chat.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Chat.WelcomeMessage == "" {
		cfg.Chat.WelcomeMessage = DefaultWelcomeMessage
	}
	// maxHistory below 2 would make the trimming arithmetic negative.
	if cfg.Chat.MaxHistory < 2 {
		cfg.Chat.MaxHistory = DefaultMaxHistory
	}
	if cfg.Ranking.Limit <= 0 {
		cfg.Ranking.Limit = DefaultRankingLimit
	}
	if cfg.Ranking.Fallback <= 0 {
		cfg.Ranking.Fallback = DefaultRankingFallback
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
