// Package breakdown asks a remote completion service to split a task into
// small, time-boxed steps.
package breakdown

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cfxgy/DoItNow/pkg/settings"
	"github.com/cfxgy/DoItNow/pkg/store"
)

var (
	// ErrProvider wraps every failure of a remote call: transport, status,
	// and malformed responses.
	ErrProvider = errors.New("provider error")
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("API key not configured")
)

// Provider decomposes a task into ordered steps.
type Provider interface {
	Decompose(ctx context.Context, taskName string) ([]store.Step, error)
}

const (
	chatPath       = "/chat/completions"
	defaultTimeout = 60 * time.Second
	temperature    = 0.7
	maxTokens      = 1000
	pingMaxTokens  = 10
)

const systemPrompt = `You are a task breakdown expert who helps people beat procrastination.

The user gives you one task. You must:
1. Break it into 5-8 concrete small steps.
2. Make every step small enough that the user wants to start it right away.
3. Estimate the time for each step in minutes.
4. Order the steps in the order they should be done.

Reply with JSON in exactly this shape and nothing else:
{
    "subtasks": [
        {"name": "step name", "minutes": 10},
        {"name": "step name", "minutes": 15}
    ]
}

Notes:
- Keep each step between 5 and 30 minutes.
- Make the first step especially easy so getting started costs nothing.
- Step names must be specific and actionable, not vague.`

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.client = &http.Client{Timeout: d}
		}
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewClient builds a client from a resolved API configuration.
func NewClient(cfg settings.APIConfig, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: no base URL for provider %q", ErrNotConfigured, cfg.Provider)
	}
	c := &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the model name sent with each request.
func (c *Client) Model() string {
	return c.model
}

// Decompose asks the service for the steps of taskName.
func (c *Client) Decompose(ctx context.Context, taskName string) ([]store.Step, error) {
	taskName = strings.TrimSpace(taskName)
	if taskName == "" {
		return nil, fmt.Errorf("%w: task name is empty", store.ErrInvalidArgument)
	}
	t := temperature
	content, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Please break down this task: " + taskName},
		},
		Temperature: &t,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return ParseSteps(content)
}

// Ping sends a minimal request to verify the key, URL, and model.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.complete(ctx, chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: "Connection test, reply OK"}},
		MaxTokens: pingMaxTokens,
	})
	return err
}

func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrProvider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrProvider, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %w", ErrProvider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("%w: API error (%d): %s", ErrProvider, resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("%w: API error (%d): %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrProvider)
	}
	return chatResp.Choices[0].Message.Content, nil
}

// ParseSteps decodes the model's reply. Code fences around the JSON are
// stripped, blank names are dropped, and minutes are rounded and clamped
// to at least 1.
func ParseSteps(content string) ([]store.Step, error) {
	content = stripFences(content)

	var reply struct {
		Subtasks []struct {
			Name    string  `json:"name"`
			Minutes float64 `json:"minutes"`
		} `json:"subtasks"`
	}
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, fmt.Errorf("%w: reply is not valid JSON: %v", ErrProvider, err)
	}

	steps := make([]store.Step, 0, len(reply.Subtasks))
	for _, st := range reply.Subtasks {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			continue
		}
		minutes := int(math.Round(st.Minutes))
		if minutes < 1 {
			minutes = 1
		}
		steps = append(steps, store.Step{Name: name, Minutes: minutes})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: reply contains no steps", ErrProvider)
	}
	return steps, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
