// Package model implements the OpenAI-compatible chat client and the
// registry that routes requests to configured model instances.
package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/itsneelabh/infergate/core"
)

// Client talks to one upstream OpenAI-compatible endpoint. It is safe
// for concurrent use; the HTTP client pools connections.
type Client struct {
	model      string // upstream model identifier
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     core.Logger
	maxRetries int
	retryDelay time.Duration
}

// ClientConfig configures a model client.
type ClientConfig struct {
	// Model is the identifier sent in the request body.
	Model string

	// BaseURL is the API root, e.g. https://api.openai.com/v1.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// HTTPClient is the transport to use. Default: http.Client with a
	// 5 minute timeout.
	HTTPClient *http.Client

	// MaxRetries bounds retry attempts for non-streaming requests.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base of the exponential backoff. Default: 1s
	RetryDelay time.Duration

	// Logger is an optional logger
	Logger core.Logger
}

// NewClient creates a model client.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 1 * time.Second
	}

	c := &Client{
		model:      config.Model,
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: config.HTTPClient,
		logger:     config.Logger,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
	}

	if c.logger == nil {
		c.logger = &core.NoOpLogger{}
	} else if cal, ok := c.logger.(core.ComponentAwareLogger); ok {
		c.logger = cal.WithComponent("model")
	}

	return c
}

// Model returns the upstream model identifier.
func (c *Client) Model() string {
	return c.model
}

// Complete performs a one-shot chat completion.
func (c *Client) Complete(ctx context.Context, message *core.Message) (*core.Completion, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: buildMessages(message),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	startTime := time.Now()
	resp, err := c.executeWithRetry(ctx, body)
	if err != nil {
		c.logger.ErrorWithContext(ctx, "Completion request failed", map[string]interface{}{
			"operation": "model_complete",
			"model":     c.model,
			"error":     err.Error(),
		})
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response from model %s", c.model)
	}

	result := &core.Completion{
		ReasoningContent: parsed.Choices[0].Message.ReasoningContent,
		Content:          parsed.Choices[0].Message.Content,
		Usage:            parsed.Usage,
	}

	c.logger.DebugWithContext(ctx, "Completion finished", map[string]interface{}{
		"operation":      "model_complete",
		"model":          c.model,
		"duration_ms":    time.Since(startTime).Milliseconds(),
		"content_length": len(result.Content),
	})
	return result, nil
}

// Stream performs a streaming chat completion, invoking fn for each
// chunk. An error from fn aborts the stream and is returned verbatim.
// Streaming requests are not retried; retry only covers connection
// establishment semantics of the one-shot path.
func (c *Client) Stream(ctx context.Context, message *core.Message, fn core.StreamFunc) error {
	body, err := json.Marshal(chatRequest{
		Model:         c.model,
		Messages:      buildMessages(message),
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return c.apiError(resp.StatusCode, respBody)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.WarnWithContext(ctx, "Skipping malformed stream chunk", map[string]interface{}{
				"operation": "model_stream",
				"model":     c.model,
				"error":     err.Error(),
			})
			continue
		}

		out := core.Completion{Usage: chunk.Usage}
		if len(chunk.Choices) > 0 {
			out.ReasoningContent = chunk.Choices[0].Delta.ReasoningContent
			out.Content = chunk.Choices[0].Delta.Content
		}
		if out.ReasoningContent == "" && out.Content == "" && out.Usage == nil {
			continue
		}
		if err := fn(out); err != nil {
			return err
		}
	}
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// executeWithRetry performs the request with exponential backoff. A
// fresh request is built per attempt so the body can be re-read.
// Client errors other than 429 are returned immediately; 5xx and
// transport errors are retried.
func (c *Client) executeWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}
		if err == nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			_ = resp.Body.Close()
		}

		if attempt < c.maxRetries {
			delay := c.retryDelay * time.Duration(1<<uint(attempt))
			c.logger.Warn("Model request failed, retrying", map[string]interface{}{
				"operation":      "model_request_retry",
				"model":          c.model,
				"attempt":        attempt + 1,
				"max_retries":    c.maxRetries,
				"retry_delay_ms": delay.Milliseconds(),
				"error":          lastErr.Error(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, &core.GatewayError{
		Op:   "model.executeWithRetry",
		Kind: "model",
		ID:   c.model,
		Err:  fmt.Errorf("%w after %d retries: %v", core.ErrMaxRetriesExceeded, c.maxRetries, lastErr),
	}
}

func (c *Client) apiError(status int, body []byte) error {
	return &core.GatewayError{
		Op:      "model.Client",
		Kind:    "model",
		ID:      c.model,
		Message: fmt.Sprintf("Request failed (%d): %s", status, body),
		Err:     core.ErrRequestFailed,
	}
}
