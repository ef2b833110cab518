package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/llm"
)

const (
	ssePrefix = "data: "
	sseDone   = "[DONE]"
)

// streamChunk mirrors one SSE event of a streaming completion.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatStream satisfies the llm.Client interface. Transient failures opening
// the stream (429, 5xx, timeouts) are retried with the same backoff as Chat;
// once the stream is open, retries stop. The returned stream yields content
// deltas until the provider's done sentinel; a connection dropped before the
// sentinel surfaces as a broken-stream error, never as clean EOF.
func (c *Client) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	req.Stream = true
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		stream, err := c.openStream(ctx, req, attempt)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) {
			return nil, err
		}
		if attempt < c.maxRetries {
			delay := retryDelay(err, attempt)
			c.logger.Printf("transient error opening stream (attempt %d/%d), retrying in %s: %v", attempt, c.maxRetries, delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) openStream(ctx context.Context, req llm.ChatRequest, attempt int) (llm.Stream, error) {
	c.logger.Printf("opening stream for model %s (attempt %d/%d)", req.Model, attempt, c.maxRetries)
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, classifyHTTPError(resp, body)
	}
	return &sseStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// Recv returns the next content delta. Malformed events are skipped rather
// than failing the whole stream.
func (s *sseStream) Recv() (llm.Chunk, error) {
	if s.done {
		return llm.Chunk{}, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		data := strings.TrimPrefix(line, ssePrefix)
		if data == sseDone {
			s.done = true
			return llm.Chunk{}, io.EOF
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return llm.Chunk{Content: content}, nil
		}
		if chunk.Choices[0].FinishReason != "" {
			s.done = true
			return llm.Chunk{}, io.EOF
		}
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return llm.Chunk{}, llm.NewProviderError(providerName, llm.ErrorTypeStreamBroken, "", "stream interrupted: "+sanitize(err.Error()))
	}
	// The body ended without the done sentinel.
	return llm.Chunk{}, llm.NewProviderError(providerName, llm.ErrorTypeStreamBroken, "", "stream ended before completion")
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}
