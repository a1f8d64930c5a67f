// Package generate calls the Gemini generateContent API for a decoded task.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mihaimyh/fitgen/pkg/quota"
	"github.com/mihaimyh/fitgen/pkg/tasks"
)

const (
	// DefaultBaseURL is the Gemini API endpoint
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// maxResponseBody caps how much of a provider response is read
	maxResponseBody = 4 << 20

	// maxErrorBody caps the provider body kept on a ProviderError
	maxErrorBody = 2048
)

// Generator produces raw model text for a task
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Request is one generation call
type Request struct {
	Task  tasks.Task
	Plan  quota.Plan
	Image *Image
}

// Result is the raw text of the first candidate
type Result struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Config contains configuration for the Gemini client
type Config struct {
	APIKey  string
	BaseURL string
	Models  Models

	// Timeout bounds a single provider call (default: 60s)
	Timeout time.Duration

	// Temperature for text tasks; JSON tasks always use 0.4
	Temperature float64

	// WebSearch lets coach_chat ground answers with Google Search
	WebSearch bool

	HTTPClient *http.Client
	Logger     quota.Logger
}

// Client implements Generator against the Gemini REST API
type Client struct {
	config Config
	client *http.Client
	logger quota.Logger
}

// New creates a Gemini client. A missing API key is reported on each call
// rather than here so the service can still start and answer health checks.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Models == (Models{}) {
		config.Models = DefaultModels()
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Temperature <= 0 {
		config.Temperature = 0.7
	}
	if config.Logger == nil {
		config.Logger = &quota.NoopLogger{}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config: config,
		client: httpClient,
		logger: config.Logger,
	}
}

// Generate calls the provider exactly once
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Task == nil {
		return nil, errors.New("generate: task is required")
	}

	start := time.Now()
	taskID := string(req.Task.ID())

	result, err := c.generate(ctx, req)
	if err != nil {
		c.logger.Warn("generation failed",
			quota.F("task", taskID), quota.F("plan", string(req.Plan)), quota.F("error", err.Error()))
		return nil, err
	}

	c.logger.Debug("generation completed",
		quota.F("task", taskID),
		quota.F("model", result.Model),
		quota.F("input_tokens", result.InputTokens),
		quota.F("output_tokens", result.OutputTokens),
		quota.F("duration", time.Since(start)))
	return result, nil
}

func (c *Client) generate(ctx context.Context, req Request) (*Result, error) {
	if c.config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	model := c.config.Models.For(req.Task.ID(), req.Plan)
	httpReq, err := c.buildRequest(ctx, model, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody),
			Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	text := apiResp.text()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	return &Result{
		Text:         text,
		Model:        model,
		InputTokens:  apiResp.UsageMetadata.PromptTokenCount,
		OutputTokens: apiResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func (c *Client) buildRequest(ctx context.Context, model string, req Request) (*http.Request, error) {
	prompt := req.Task.Prompt()
	output := req.Task.Output()

	parts := []apiPart{{Text: prompt.User}}
	if req.Image != nil {
		parts = append(parts, apiPart{InlineData: &apiInlineData{
			MIMEType: req.Image.MIMEType,
			Data:     req.Image.Base64(),
		}})
	}

	body := apiRequest{
		Contents: []apiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &apiGenerationConfig{
			Temperature: c.config.Temperature,
		},
	}
	if prompt.System != "" {
		body.SystemInstruction = &apiContent{Parts: []apiPart{{Text: prompt.System}}}
	}
	if output.JSON() {
		body.GenerationConfig.ResponseMIMEType = "application/json"
		body.GenerationConfig.Temperature = 0.4
	}
	if c.config.WebSearch && req.Task.ID() == tasks.CoachChat {
		body.Tools = []apiTool{{GoogleSearch: &struct{}{}}}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.config.BaseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.config.APIKey)
	return httpReq, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
