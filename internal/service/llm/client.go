// Package llm is the client of an OpenAI-compatible model backend, Ollama by default.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nkiryanov/courseadvisor/internal/logger"
)

const (
	APICompletions = "completions"
	APIChat        = "chat"
)

const (
	defaultBaseURL   = "http://127.0.0.1:11434/v1"
	defaultModel     = "llama3:latest"
	defaultMaxTokens = 1000
	defaultTimeout   = 30 * time.Second
	retryDelay       = 500 * time.Millisecond

	// Limit of the backend response body read in memory
	maxResponseSize = 4 << 20
)

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes reasoning blocks some local models emit before the answer
func StripThink(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}

// Client config, empty fields are set to defaults
type Config struct {
	BaseURL string
	Model   string

	// Sent as bearer token when set
	APIKey string

	// APICompletions or APIChat
	API string

	MaxTokens int

	// Timeout of a single model call
	Timeout time.Duration

	// Retry once on transport error or 5xx
	Retry bool
}

type Client struct {
	baseURL   string
	model     string
	apiKey    string
	api       string
	maxTokens int
	timeout   time.Duration
	retry     bool

	client *http.Client
	logger logger.Logger
}

func NewClient(cfg Config, l logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.API == "" {
		cfg.API = APICompletions
	}
	if cfg.API != APICompletions && cfg.API != APIChat {
		return nil, fmt.Errorf("unknown model api %q, expected %q or %q", cfg.API, APICompletions, APIChat)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		api:       cfg.API,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
		client:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:    l,
	}, nil
}

type completionsRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

// Both wire formats share the envelope, only one of Text and Message is set
type response struct {
	Choices []struct {
		Text    string `json:"text"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt pair and returns the model reply text
// Every failure is *Error matching apperrors.ErrModelUnavailable
func (c *Client) Complete(ctx context.Context, system string, user string) (string, error) {
	path, body, err := c.requestBody(system, user)
	if err != nil {
		return "", NewError(CodeTransport, 0, err)
	}

	reply, err := c.complete(ctx, path, body)

	var llmErr *Error
	if err != nil && c.retry && errors.As(err, &llmErr) && llmErr.retryable() && ctx.Err() == nil {
		c.logger.Warn("Model call failed, retrying", "code", llmErr.Code, "status_code", llmErr.StatusCode)

		select {
		case <-ctx.Done():
			return "", NewError(CodeTransport, 0, ctx.Err())
		case <-time.After(retryDelay):
		}
		reply, err = c.complete(ctx, path, body)
	}

	return reply, err
}

func (c *Client) requestBody(system string, user string) (string, []byte, error) {
	var payload any
	var path string

	switch c.api {
	case APIChat:
		path = "/chat/completions"
		payload = chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			MaxTokens: c.maxTokens,
		}
	default:
		path = "/completions"
		payload = completionsRequest{
			Model:     c.model,
			Prompt:    system + "\n\nUser: " + user,
			MaxTokens: c.maxTokens,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return path, body, nil
}

func (c *Client) complete(ctx context.Context, path string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", NewError(CodeTransport, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", NewError(CodeTransport, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", NewError(CodeTransport, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug("Model response", "path", path, "status_code", resp.StatusCode, "duration", time.Since(started))

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Model backend returned error", "status_code", resp.StatusCode, "body", truncate(string(raw), 200))
		return "", NewError(CodeStatus, resp.StatusCode, fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", NewError(CodeDecode, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(r.Choices) == 0 {
		return "", NewError(CodeEmpty, resp.StatusCode, errors.New("response has no choices"))
	}

	text := r.Choices[0].Text
	if c.api == APIChat {
		text = r.Choices[0].Message.Content
	}

	return StripThink(text), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
