package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingCredential is returned by Load when the selected model protocol
// has no API key or assistant id.
var ErrMissingCredential = errors.New("missing required credential")

// Model backend protocols.
const (
	ProtocolAssistant = "assistant"
	ProtocolChat      = "chat"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	LLM       LLMConfig
	Chat      ChatConfig
	Assistant AssistantConfig
	Fetch     FetchConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	MaxBodyBytes int
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type LLMConfig struct {
	Protocol string
}

type ChatConfig struct {
	BaseURL     string
	Provider    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

type AssistantConfig struct {
	BaseURL      string
	APIKey       string
	ID           string
	PollInterval time.Duration
	PollAttempts int
}

type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         3000,
			MaxBodyBytes: 1 << 20,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Protocol: ProtocolAssistant,
		},
		Chat: ChatConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Provider:    "Groq",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.3,
			MaxTokens:   4000,
			TopP:        0.9,
		},
		Assistant: AssistantConfig{
			BaseURL:      "https://api.openai.com/v1",
			PollInterval: time.Second,
			PollAttempts: 60,
		},
		Fetch: FetchConfig{
			Timeout:      15 * time.Second,
			MaxRedirects: 5,
			UserAgent:    defaultUserAgent,
		},
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the JSON file at $XDG_CONFIG_HOME/doccheck/config.json, a .env file in the
// working directory and environment variables (DOCCHECK_* and the legacy
// PORT, OPENAI_API_KEY, ASSISTANT_ID, GROQ_API_KEY). API keys may also come
// from $XDG_DATA_HOME/doccheck/secrets.json.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadWith(newFileBackend(configFilePath()), secretsFile{path: secretsFilePath()})
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Chat.APIKey == "" {
		if key, err := secrets.Get("doccheck", "chat_api_key"); err == nil && key != "" {
			cfg.Chat.APIKey = key
		}
	}
	if cfg.Assistant.APIKey == "" {
		if key, err := secrets.Get("doccheck", "assistant_api_key"); err == nil && key != "" {
			cfg.Assistant.APIKey = key
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LLM.Protocol {
	case ProtocolChat:
		if c.Chat.APIKey == "" {
			return fmt.Errorf("%w: %s API key. Set it via environment variable DOCCHECK_CHAT_API_KEY or GROQ_API_KEY",
				ErrMissingCredential, c.Chat.Provider)
		}
	case ProtocolAssistant:
		if c.Assistant.APIKey == "" {
			return fmt.Errorf("%w: OpenAI API key. Set it via environment variable DOCCHECK_ASSISTANT_API_KEY or OPENAI_API_KEY",
				ErrMissingCredential)
		}
		if c.Assistant.ID == "" {
			return fmt.Errorf("%w: assistant id. Set it via environment variable DOCCHECK_ASSISTANT_ID or ASSISTANT_ID",
				ErrMissingCredential)
		}
	default:
		return fmt.Errorf("invalid llm.protocol %q: want %q or %q", c.LLM.Protocol, ProtocolAssistant, ProtocolChat)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}
