// Package openai implements the llm.Client contract against the OpenAI chat
// completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/llm"
)

const (
	// DefaultEndpoint is the chat completions URL used unless overridden.
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

	providerName     = "openai"
	defaultRetries   = 3
	baseRetryBackoff = time.Second
)

// apiResponse mirrors the non-streaming completion payload.
type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   *llm.Usage  `json:"usage,omitempty"`
}

type apiChoice struct {
	Index        int        `json:"index"`
	Message      apiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Client wraps the OpenAI chat completion API with retry handling.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	maxRetries int
	logger     *log.Logger
}

// NewClient configures an OpenAI completion client. The timeout bounds one
// HTTP attempt; retries get their own attempt each. maxRetries <= 0 selects
// the default of three attempts.
func NewClient(endpoint, apiKey string, timeout time.Duration, maxRetries int, logger *log.Logger) *Client {
	trimmed := strings.TrimRight(endpoint, "/")
	if trimmed == "" {
		trimmed = DefaultEndpoint
	}
	if maxRetries <= 0 {
		maxRetries = defaultRetries
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   trimmed,
		apiKey:     apiKey,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Chat satisfies the llm.Client interface. Transient failures (429, 5xx,
// timeouts) are retried with exponential backoff; auth and validation
// failures surface immediately.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	req.Stream = false
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.doChat(ctx, req, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) {
			return llm.ChatResponse{}, err
		}
		if attempt < c.maxRetries {
			delay := retryDelay(err, attempt)
			c.logger.Printf("transient error (attempt %d/%d), retrying in %s: %v", attempt, c.maxRetries, delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return llm.ChatResponse{}, ctx.Err()
			}
		}
	}
	return llm.ChatResponse{}, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) doChat(ctx context.Context, req llm.ChatRequest, attempt int) (llm.ChatResponse, error) {
	c.logger.Printf("sending %d messages to model %s (attempt %d/%d)", len(req.Messages), req.Model, attempt, c.maxRetries)

	resp, err := c.post(ctx, req)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return llm.ChatResponse{}, classifyHTTPError(resp, body)
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return llm.ChatResponse{}, fmt.Errorf("parse response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return llm.ChatResponse{}, llm.NewProviderError(providerName, llm.ErrorTypeUnknown, "", "no choices returned")
	}
	return llm.ChatResponse{
		Content: payload.Choices[0].Message.Content,
		Usage:   payload.Usage,
	}, nil
}

func (c *Client) post(ctx context.Context, req llm.ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, llm.NewProviderError(providerName, llm.ErrorTypeTimeout, "", "request timed out")
		}
		return nil, llm.NewProviderError(providerName, llm.ErrorTypeServerError, "", "request failed: "+sanitize(err.Error()))
	}
	return resp, nil
}

// classifyHTTPError maps status codes onto the provider error taxonomy. The
// response body is included only through the API's own error message field,
// never raw, so credentials echoed by proxies cannot leak into logs.
func classifyHTTPError(resp *http.Response, body []byte) error {
	var parsed apiErrorBody
	message := http.StatusText(resp.StatusCode)
	code := strconv.Itoa(resp.StatusCode)
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
		if parsed.Error.Code != "" {
			code = parsed.Error.Code
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		perr := llm.NewProviderError(providerName, llm.ErrorTypeRateLimit, code, message)
		if after := parseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
			perr.RetryAfter = &after
		}
		return perr
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return llm.NewProviderError(providerName, llm.ErrorTypeAuth, code, message)
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return llm.NewProviderError(providerName, llm.ErrorTypeInvalid, code, message)
	case resp.StatusCode >= 500:
		return llm.NewProviderError(providerName, llm.ErrorTypeServerError, code, message)
	default:
		return llm.NewProviderError(providerName, llm.ErrorTypeUnknown, code, message)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// retryDelay doubles per attempt, honoring an explicit Retry-After when the
// provider sent one.
func retryDelay(err error, attempt int) time.Duration {
	if pe, ok := llm.IsProviderError(err); ok && pe.RetryAfter != nil {
		return *pe.RetryAfter
	}
	return time.Duration(math.Pow(2, float64(attempt-1))) * baseRetryBackoff
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// sanitize strips anything resembling a bearer credential from transport
// error strings.
func sanitize(s string) string {
	if idx := strings.Index(s, "Bearer "); idx >= 0 {
		return s[:idx] + "Bearer [redacted]"
	}
	return s
}
