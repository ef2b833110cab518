package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/llm"
)

func testRequest() llm.ChatRequest {
	return llm.ChatRequest{
		Model:    "gpt-4.1-mini",
		Messages: []llm.ChatMessage{{Role: "user", Content: "hello"}},
	}
}

func completionBody(content string) string {
	return fmt.Sprintf(`{"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`, content)
}

func TestChatSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, completionBody("hi there"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", 5*time.Second, 3, nil)
	resp, err := c.Chat(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "hi there" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 8 {
		t.Errorf("usage not propagated: %+v", resp.Usage)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization header = %q", gotAuth)
	}
}

func TestChatRetriesTransientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, completionBody("recovered"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", 5*time.Second, 3, nil)
	resp, err := c.Chat(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Chat failed after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestChatAuthFailureDoesNotRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-bad", 5*time.Second, 3, nil)
	_, err := c.Chat(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	pe, ok := llm.IsProviderError(err)
	if !ok {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Type != llm.ErrorTypeAuth || pe.Retryable {
		t.Errorf("auth error misclassified: %+v", pe)
	}
	if attempts != 1 {
		t.Errorf("auth failure must not retry, got %d attempts", attempts)
	}
}

func TestChatRateLimitExhaustsRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", 5*time.Second, 2, nil)
	_, err := c.Chat(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 2 {
		t.Errorf("expected retries to exhaust at 2 attempts, got %d", attempts)
	}
	if !llm.IsRetryable(errors.Unwrap(err)) {
		t.Errorf("wrapped error lost its retryable classification: %v", err)
	}
}

func TestChatErrorNeverEchoesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	const key = "sk-secret-value"
	c := NewClient(srv.URL, key, 5*time.Second, 1, nil)
	_, err := c.Chat(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); strings.Contains(got, key) {
		t.Errorf("error message leaks API key: %q", got)
	}
}

func TestChatStreamDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", 5*time.Second, 1, nil)
	stream, err := c.ChatStream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	defer stream.Close()

	var assembled string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		assembled += chunk.Content
	}
	if assembled != "Hello" {
		t.Errorf("assembled = %q, want %q", assembled, "Hello")
	}
}

func TestChatStreamRetriesTransientOpenErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"recovered\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", 5*time.Second, 3, nil)
	stream, err := c.ChatStream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("ChatStream failed after retries: %v", err)
	}
	defer stream.Close()

	if attempts != 2 {
		t.Errorf("expected a retried open, got %d attempts", attempts)
	}
	chunk, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if chunk.Content != "recovered" {
		t.Errorf("content = %q", chunk.Content)
	}
}

func TestChatStreamOpenExhaustsRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", 5*time.Second, 2, nil)
	_, err := c.ChatStream(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 2 {
		t.Errorf("expected retries to exhaust at 2 attempts, got %d", attempts)
	}
	if !llm.IsRetryable(errors.Unwrap(err)) {
		t.Errorf("wrapped error lost its retryable classification: %v", err)
	}
}

func TestChatStreamBrokenMidway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		// Connection ends without the done sentinel.
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", 5*time.Second, 1, nil)
	stream, err := c.ChatStream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Recv(); err != nil {
		t.Fatalf("first Recv failed: %v", err)
	}
	_, err = stream.Recv()
	if err == io.EOF || err == nil {
		t.Fatal("truncated stream must not look like clean termination")
	}
	pe, ok := llm.IsProviderError(err)
	if !ok || pe.Type != llm.ErrorTypeStreamBroken {
		t.Errorf("expected broken-stream classification, got %v", err)
	}
}

func TestChatStreamAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"forbidden","type":"access_error"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", 5*time.Second, 1, nil)
	_, err := c.ChatStream(context.Background(), testRequest())
	pe, ok := llm.IsProviderError(err)
	if !ok || pe.Type != llm.ErrorTypeAuth {
		t.Errorf("expected auth classification, got %v", err)
	}
}
