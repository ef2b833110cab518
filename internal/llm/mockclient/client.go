// Package mockclient provides a deterministic llm.Client for tests.
package mockclient

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/llm"
)

// Client is a scriptable llm.Client. With no script set it echoes the last
// user message.
type Client struct {
	prefix string

	// Reply overrides the echo response when non-empty.
	Reply string
	// Err, when set, is returned from every call before any output.
	Err error
	// StreamChunks, when non-nil, scripts the streamed fragments.
	StreamChunks []string
	// StreamErr, when set, breaks the stream after StreamChunks are
	// delivered instead of ending it cleanly.
	StreamErr error

	// Calls counts completed Chat and ChatStream invocations.
	Calls int
}

// New returns a mock client that echoes the last user message.
func New() *Client {
	return &Client{prefix: "MOCK"}
}

func (c *Client) reply(req llm.ChatRequest) string {
	if c.Reply != "" {
		return c.Reply
	}
	if n := len(req.Messages); n > 0 {
		if last := strings.TrimSpace(req.Messages[n-1].Content); last != "" {
			return fmt.Sprintf("%s RESPONSE: %s", c.prefix, last)
		}
	}
	return fmt.Sprintf("%s RESPONSE", c.prefix)
}

// Chat satisfies the llm.Client interface.
func (c *Client) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	c.Calls++
	if c.Err != nil {
		return llm.ChatResponse{}, c.Err
	}
	content := c.reply(req)
	return llm.ChatResponse{
		Content: content,
		Usage: &llm.Usage{
			PromptTokens:     42,
			CompletionTokens: 7,
			TotalTokens:      49,
		},
	}, nil
}

// ChatStream satisfies the llm.Client interface. The scripted chunks are
// delivered one Recv at a time, then io.EOF or the scripted stream error.
func (c *Client) ChatStream(_ context.Context, req llm.ChatRequest) (llm.Stream, error) {
	c.Calls++
	if c.Err != nil {
		return nil, c.Err
	}
	chunks := c.StreamChunks
	if chunks == nil {
		chunks = []string{c.reply(req)}
	}
	return &stream{chunks: chunks, finalErr: c.StreamErr}, nil
}

type stream struct {
	chunks   []string
	pos      int
	finalErr error
	closed   bool
}

func (s *stream) Recv() (llm.Chunk, error) {
	if s.closed {
		return llm.Chunk{}, io.EOF
	}
	if s.pos >= len(s.chunks) {
		if s.finalErr != nil {
			return llm.Chunk{}, s.finalErr
		}
		return llm.Chunk{}, io.EOF
	}
	chunk := llm.Chunk{Content: s.chunks[s.pos]}
	s.pos++
	return chunk, nil
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}
