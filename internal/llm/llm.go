// Package llm defines the provider-agnostic chat completion contract used by
// the agent core.
package llm

import "context"

// ChatMessage is the wire shape of one conversation turn sent to a provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the provider-agnostic payload for chat completions.
type ChatRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Temperature      float64       `json:"temperature,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

// Usage contains token consumption metrics from the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the assembled result of one completion.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Chunk is one streamed fragment of a completion in generation order.
type Chunk struct {
	Content string
}

// Stream yields completion fragments as the provider produces them. Recv
// returns io.EOF on clean termination; any other error means the stream
// broke mid-generation and the partial output must not be treated as a
// complete reply. Close releases the underlying connection and is safe to
// call more than once.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Client represents a chat completion provider.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest) (Stream, error)
}
