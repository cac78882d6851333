package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pathsynch/internal/types"
)

func newTestTextGenClient(t *testing.T, serverURL string) *TextGenClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-textgen",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond},
		"PathSynch-Test/1.0",
		WithSleepFunc(noopSleep),
	)

	return NewTextGenClientWithBase(base, TextGenClientConfig{
		APIKey:    "sk-test",
		Model:     "test-model",
		MaxTokens: 500,
		BaseURL:   serverURL,
	})
}

func TestGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("expected Bearer sk-test, got %s", auth)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %s", req.Model)
		}
		if req.MaxTokens != 500 {
			t.Errorf("expected max_tokens 500, got %d", req.MaxTokens)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "write a pitch" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model-2026",
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": "Generated narrative."},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{
				"prompt_tokens":     20,
				"completion_tokens": 80,
				"total_tokens":      100,
			},
		})
	}))
	defer server.Close()

	client := newTestTextGenClient(t, server.URL)

	result, err := client.Generate(context.Background(), "write a pitch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "Generated narrative." {
		t.Errorf("unexpected content: %s", result.Content)
	}
	if result.TokensUsed != 100 {
		t.Errorf("expected 100 tokens, got %d", result.TokensUsed)
	}
	if result.Model != "test-model-2026" {
		t.Errorf("expected model from response, got %s", result.Model)
	}
}

func TestGenerate_EmptyPromptRejected(t *testing.T) {
	client := newTestTextGenClient(t, "http://unused.invalid")

	_, err := client.Generate(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected error for empty prompt")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationMissingField {
		t.Errorf("expected validation error, got %s", appErr.Code)
	}
}

func TestGenerate_EmptyChoicesIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"test-model","choices":[],"usage":{"total_tokens":0}}`))
	}))
	defer server.Close()

	client := newTestTextGenClient(t, server.URL)

	_, err := client.Generate(context.Background(), "write a pitch")
	if err == nil {
		t.Fatal("expected error for empty choices")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamAI {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamAI, appErr.Code)
	}
}

func TestGenerate_401MapsToUpstreamAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	client := newTestTextGenClient(t, server.URL)

	_, err := client.Generate(context.Background(), "write a pitch")
	if err == nil {
		t.Fatal("expected error for 401")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamAI {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamAI, appErr.Code)
	}
}

func TestGenerate_RateLimitPropagatesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestTextGenClient(t, server.URL)

	_, err := client.Generate(context.Background(), "write a pitch")
	if err == nil {
		t.Fatal("expected error for 429")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamRateLimited, appErr.Code)
	}
}
