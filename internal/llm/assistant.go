package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAssistantBaseURL = "https://api.openai.com/v1"
	DefaultPollInterval     = time.Second
	DefaultMaxPollAttempts  = 60

	assistantProvider = "OpenAI"
	requestTimeout    = 30 * time.Second
	cancelTimeout     = 5 * time.Second
)

// AssistantConfig configures an AssistantClient.
type AssistantConfig struct {
	BaseURL         string
	APIKey          string
	AssistantID     string
	PollInterval    time.Duration
	MaxPollAttempts int
}

// AssistantClient implements Gateway over the thread, run and poll protocol
// of a hosted assistant. Threads it creates are never deleted.
type AssistantClient struct {
	baseURL      string
	apiKey       string
	assistantID  string
	pollInterval time.Duration
	maxPolls     int
	httpClient   *http.Client
}

// NewAssistantClient creates an AssistantClient. Zero-valued fields of cfg
// take their defaults.
func NewAssistantClient(cfg AssistantConfig) *AssistantClient {
	c := &AssistantClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		assistantID:  cfg.AssistantID,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPollAttempts,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
	if c.baseURL == "" {
		c.baseURL = DefaultAssistantBaseURL
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.maxPolls <= 0 {
		c.maxPolls = DefaultMaxPollAttempts
	}
	return c
}

type threadObject struct {
	ID string `json:"id"`
}

type runObject struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    string    `json:"status"`
	LastError *apiError `json:"last_error"`
}

type messageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text *struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

type assistantObject struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Invoke creates a thread with the user content, starts a run of the
// configured assistant and polls it until it finishes or the attempt ceiling
// is reached. The report carries the thread id as its JobID.
func (c *AssistantClient) Invoke(ctx context.Context, systemPrompt, userContent string) (Report, error) {
	req := NewRequest(systemPrompt, userContent)

	var thread threadObject
	if err := c.call(ctx, http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return Report{}, err
	}
	if thread.ID == "" {
		return Report{}, missingID("thread")
	}
	job := &Job{ThreadID: thread.ID}

	msg := map[string]string{"role": "user", "content": req.UserContent}
	if err := c.call(ctx, http.MethodPost, "/threads/"+thread.ID+"/messages", msg, nil); err != nil {
		return Report{JobID: thread.ID}, err
	}

	var run runObject
	runReq := map[string]string{
		"assistant_id":            c.assistantID,
		"additional_instructions": req.SystemPrompt,
	}
	if err := c.call(ctx, http.MethodPost, "/threads/"+thread.ID+"/runs", runReq, &run); err != nil {
		return Report{JobID: thread.ID}, err
	}
	if run.ID == "" {
		return Report{JobID: thread.ID}, missingID("run")
	}
	job.ID = run.ID
	job.Advance(runStatus(run.Status))
	slog.Debug("assistant run started", "thread_id", thread.ID, "run_id", run.ID, "status", job.Status)

	if err := c.await(ctx, job); err != nil {
		return Report{JobID: thread.ID}, err
	}

	text, err := c.latestReply(ctx, thread.ID)
	if err != nil {
		return Report{JobID: thread.ID}, err
	}
	job.ResultText = text
	return Report{Text: text, JobID: thread.ID}, nil
}

// await polls the run until it reaches a terminal state. Each poll is
// preceded by a wait of pollInterval.
func (c *AssistantClient) await(ctx context.Context, job *Job) error {
	for attempt := 1; !job.Status.Terminal(); attempt++ {
		if attempt > c.maxPolls {
			c.cancelRun(ctx, job)
			return &ModelError{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("assistant run did not complete after %d polls", c.maxPolls),
			}
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ModelError{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("assistant run interrupted: %v", ctx.Err()),
				Err:     ctx.Err(),
			}
		case <-timer.C:
		}

		var run runObject
		if err := c.call(ctx, http.MethodGet, "/threads/"+job.ThreadID+"/runs/"+job.ID, nil, &run); err != nil {
			return err
		}
		job.Advance(runStatus(run.Status))
		if run.LastError != nil {
			job.ErrorMessage = run.LastError.Message
		}
		slog.Debug("assistant run polled", "run_id", job.ID, "attempt", attempt, "status", job.Status)
	}

	if job.Status == StatusCompleted {
		return nil
	}
	msg := fmt.Sprintf("assistant run ended with status %s", job.Status)
	if job.ErrorMessage != "" {
		msg += ": " + job.ErrorMessage
	}
	return &ModelError{Kind: KindJobFailed, Message: msg}
}

// cancelRun asks the backend to stop a run that exceeded the poll ceiling.
// Failures are logged and otherwise ignored.
func (c *AssistantClient) cancelRun(ctx context.Context, job *Job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := c.call(ctx, http.MethodPost, "/threads/"+job.ThreadID+"/runs/"+job.ID+"/cancel", struct{}{}, nil); err != nil {
		slog.Warn("cancelling assistant run", "run_id", job.ID, "error", err)
	}
}

// latestReply returns the text of the newest assistant-authored message.
func (c *AssistantClient) latestReply(ctx context.Context, threadID string) (string, error) {
	q := url.Values{"order": {"desc"}}
	var list messageList
	if err := c.call(ctx, http.MethodGet, "/threads/"+threadID+"/messages?"+q.Encode(), nil, &list); err != nil {
		return "", err
	}

	for _, m := range list.Data {
		if m.Role != "assistant" {
			continue
		}
		var parts []string
		for _, part := range m.Content {
			if part.Type == "text" && part.Text != nil {
				parts = append(parts, part.Text.Value)
			}
		}
		text := strings.Join(parts, "\n")
		if strings.TrimSpace(text) == "" {
			break
		}
		return text, nil
	}
	return "", &ModelError{
		Kind:    KindMalformedResponse,
		Message: "assistant run completed without a text reply",
	}
}

// Describe fetches the configured assistant's metadata.
func (c *AssistantClient) Describe(ctx context.Context) (BackendInfo, error) {
	var a assistantObject
	if err := c.call(ctx, http.MethodGet, "/assistants/"+c.assistantID, nil, &a); err != nil {
		return BackendInfo{}, err
	}
	return BackendInfo{Protocol: "assistant", ID: a.ID, Name: a.Name, Model: a.Model}, nil
}

// call performs one JSON request. in is marshaled as the body when non-nil;
// out receives the decoded response when non-nil.
func (c *AssistantClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return backendError(err.Error(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return backendError(fmt.Sprintf("reading response: %v", err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error *apiError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil && envelope.Error.Message != "" {
			return backendError(envelope.Error.Message, nil)
		}
		return backendError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ModelError{
			Kind:    KindMalformedResponse,
			Message: fmt.Sprintf("%s API: decoding %s response: %v", assistantProvider, path, err),
			Err:     err,
		}
	}
	return nil
}

// missingID reports a create call that succeeded without returning the id
// every later request is addressed by.
func missingID(object string) *ModelError {
	return &ModelError{
		Kind:    KindMalformedResponse,
		Message: fmt.Sprintf("%s API: %s created without an id", assistantProvider, object),
	}
}

func backendError(msg string, cause error) *ModelError {
	return &ModelError{
		Kind:    KindBackendError,
		Message: fmt.Sprintf("%s API: %s", assistantProvider, msg),
		Err:     cause,
	}
}
