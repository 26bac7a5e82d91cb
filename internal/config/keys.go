package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	aliases []string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "DOCCHECK_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "DOCCHECK_SERVER_PORT", aliases: []string{"PORT"},
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_body_bytes", typ: kInt, env: "DOCCHECK_SERVER_MAX_BODY_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxBodyBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxBodyBytes },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DOCCHECK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DOCCHECK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "llm.protocol", typ: kString, env: "DOCCHECK_LLM_PROTOCOL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Protocol = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Protocol },
	},
	{
		key: "chat.base_url", typ: kString, env: "DOCCHECK_CHAT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Chat.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.BaseURL },
	},
	{
		key: "chat.provider", typ: kString, env: "DOCCHECK_CHAT_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Chat.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.Provider },
	},
	{
		key: "chat.api_key", typ: kString, env: "DOCCHECK_CHAT_API_KEY", aliases: []string{"GROQ_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Chat.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.APIKey },
	},
	{
		key: "chat.model", typ: kString, env: "DOCCHECK_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Chat.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.Model },
	},
	{
		key: "chat.temperature", typ: kFloat, env: "DOCCHECK_CHAT_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Chat.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Chat.Temperature },
	},
	{
		key: "chat.max_tokens", typ: kInt, env: "DOCCHECK_CHAT_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Chat.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.MaxTokens },
	},
	{
		key: "chat.top_p", typ: kFloat, env: "DOCCHECK_CHAT_TOP_P",
		apply:   func(cfg *Config, v any) { cfg.Chat.TopP = v.(float64) },
		extract: func(cfg Config) any { return cfg.Chat.TopP },
	},
	{
		key: "assistant.base_url", typ: kString, env: "DOCCHECK_ASSISTANT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.BaseURL },
	},
	{
		key: "assistant.api_key", typ: kString, env: "DOCCHECK_ASSISTANT_API_KEY", aliases: []string{"OPENAI_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Assistant.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.APIKey },
	},
	{
		key: "assistant.id", typ: kString, env: "DOCCHECK_ASSISTANT_ID", aliases: []string{"ASSISTANT_ID"},
		apply:   func(cfg *Config, v any) { cfg.Assistant.ID = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.ID },
	},
	{
		key: "assistant.poll_interval", typ: kDuration, env: "DOCCHECK_ASSISTANT_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Assistant.PollInterval },
	},
	{
		key: "assistant.poll_attempts", typ: kInt, env: "DOCCHECK_ASSISTANT_POLL_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Assistant.PollAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Assistant.PollAttempts },
	},
	{
		key: "fetch.timeout", typ: kDuration, env: "DOCCHECK_FETCH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Fetch.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Fetch.Timeout },
	},
	{
		key: "fetch.max_redirects", typ: kInt, env: "DOCCHECK_FETCH_MAX_REDIRECTS",
		apply:   func(cfg *Config, v any) { cfg.Fetch.MaxRedirects = v.(int) },
		extract: func(cfg Config) any { return cfg.Fetch.MaxRedirects },
	},
	{
		key: "fetch.user_agent", typ: kString, env: "DOCCHECK_FETCH_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Fetch.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Fetch.UserAgent },
	},
}

// parse converts raw into the Go type of s.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			return fmt.Errorf("invalid value for %s in config file: %w", s.key, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

// lookupEnv returns the first non-empty value of s.env and its aliases.
func (s keySpec) lookupEnv() (name, raw string) {
	for _, name := range append([]string{s.env}, s.aliases...) {
		if raw := os.Getenv(name); raw != "" {
			return name, raw
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := s.lookupEnv()
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", name, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
