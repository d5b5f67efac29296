// Package llm talks to an OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"celebdetect/internal/config"
)

// maxErrorBody bounds how much of a failed response is kept for logs.
const maxErrorBody = 1024

// maxResponseBody bounds how much of a response is read. A completion capped
// at 1024 tokens fits in a few kilobytes.
const maxResponseBody = 256 << 10

// Completer issues a single chat completion and returns the first choice's text.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

var _ Completer = (*Client)(nil)

type Client struct {
	apiURL     string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient builds a client whose every call is bounded by cfg.Timeout.
func NewClient(cfg *config.LLMConfig, log *zap.Logger) *Client {
	return &Client{
		apiURL:  cfg.APIURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

// Model is the model identifier sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Complete posts req and returns choices[0].message.content. Any outcome other
// than HTTP 200 with a usable body is reported as *APIError.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &APIError{Kind: transportKind(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return "", &APIError{Kind: transportKind(ctx, err), StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if len(respBody) > maxResponseBody {
		return "", &APIError{
			Kind:       KindMalformed,
			StatusCode: resp.StatusCode,
			Body:       truncate(respBody, maxErrorBody),
			Err:        fmt.Errorf("response exceeds %d bytes", maxResponseBody),
		}
	}

	c.log.Debug("LLM call finished",
		zap.String("model", req.Model),
		zap.Int("status", resp.StatusCode),
		zap.Int("request_bytes", len(body)),
		zap.Int("response_bytes", len(respBody)),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{
			Kind:       kindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       truncate(respBody, maxErrorBody),
		}
	}

	var chat ChatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return "", &APIError{Kind: KindMalformed, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if len(chat.Choices) == 0 {
		return "", &APIError{Kind: KindMalformed, StatusCode: resp.StatusCode, Err: errors.New("response has no choices")}
	}

	return chat.Choices[0].Message.Content, nil
}

func transportKind(ctx context.Context, err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
