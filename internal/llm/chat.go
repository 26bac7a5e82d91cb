package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultChatBaseURL  = "https://api.groq.com/openai/v1"
	DefaultChatProvider = "Groq"
	DefaultChatModel    = "llama-3.3-70b-versatile"

	chatTimeout      = 120 * time.Second
	maxResponseBytes = 4 << 20
)

// ChatConfig configures a ChatClient. Zero values take the defaults above,
// except the sampling parameters which are sent as given.
type ChatConfig struct {
	BaseURL     string
	Provider    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// ChatClient implements Gateway over an OpenAI-compatible chat completion
// endpoint. Each Invoke is exactly one HTTP request.
type ChatClient struct {
	cfg        ChatConfig
	httpClient *http.Client
}

// NewChatClient creates a ChatClient.
func NewChatClient(cfg ChatConfig) *ChatClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultChatBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Provider == "" {
		cfg.Provider = DefaultChatProvider
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	return &ChatClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: chatTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

// apiError is the error member of a backend response. Some providers send a
// bare string instead of an object.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (e *apiError) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Message = s
		return nil
	}
	type plain apiError
	return json.Unmarshal(data, (*plain)(e))
}

// Invoke sends one chat completion request. It never retries.
func (c *ChatClient) Invoke(ctx context.Context, systemPrompt, userContent string) (Report, error) {
	req := NewRequest(systemPrompt, userContent)
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserContent},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		TopP:        c.cfg.TopP,
	})
	if err != nil {
		return Report{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Report{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Report{}, c.backendError(err.Error(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Report{}, c.backendError(fmt.Sprintf("reading response: %v", err), err)
	}
	slog.Debug("chat completion finished",
		"provider", c.cfg.Provider,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"duration", time.Since(start),
	)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if !ok {
			return Report{}, c.backendError(fmt.Sprintf("unexpected status %d", resp.StatusCode), err)
		}
		return Report{}, &ModelError{
			Kind:    KindMalformedResponse,
			Message: fmt.Sprintf("%s API: response is not valid JSON", c.cfg.Provider),
			Err:     err,
		}
	}

	if parsed.Error != nil {
		msg := parsed.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return Report{}, c.backendError(msg, nil)
	}
	if !ok {
		return Report{}, c.backendError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil ||
		parsed.Choices[0].Message.Content == nil || strings.TrimSpace(*parsed.Choices[0].Message.Content) == "" {
		return Report{}, &ModelError{
			Kind:    KindMalformedResponse,
			Message: fmt.Sprintf("%s API: response has no message content", c.cfg.Provider),
		}
	}

	return Report{Text: *parsed.Choices[0].Message.Content}, nil
}

// Describe reports the configured provider and model. It makes no request.
func (c *ChatClient) Describe(context.Context) (BackendInfo, error) {
	return BackendInfo{
		Protocol: "chat",
		ID:       strings.ToLower(c.cfg.Provider),
		Name:     c.cfg.Provider,
		Model:    c.cfg.Model,
	}, nil
}

func (c *ChatClient) backendError(msg string, cause error) *ModelError {
	return &ModelError{
		Kind:    KindBackendError,
		Message: fmt.Sprintf("%s API: %s", c.cfg.Provider, msg),
		Err:     cause,
	}
}
