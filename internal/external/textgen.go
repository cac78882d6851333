package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pathsynch/internal/config"
	"pathsynch/internal/types"
)

// textGenAPIBase is the default chat-completions API base URL.
// Overridable in tests via TextGenClientConfig.BaseURL.
const textGenAPIBase = "https://api.openai.com/v1"

// TextGenClientConfig holds the configuration for creating a TextGenClient.
type TextGenClientConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string // Override for testing; defaults to textGenAPIBase
	Logger    *slog.Logger
}

// TextGenClientConfigFromApp maps the application AI config onto the client
// config, unmasking the secret at this one boundary.
func TextGenClientConfigFromApp(cfg config.AIConfig, logger *slog.Logger) TextGenClientConfig {
	return TextGenClientConfig{
		APIKey:    cfg.APIKey.Unmask(),
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		BaseURL:   cfg.BaseURL,
		Logger:    logger,
	}
}

// chatRequest is the request envelope for the chat-completions endpoint.
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the completion response we act on.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// TextGenClient implements TextGenerator by calling an OpenAI-compatible
// chat-completions REST API through BaseClient. This routes all requests
// through the platform's resilience infrastructure (circuit breaker, retries,
// error mapping) and makes testing with httptest straightforward.
type TextGenClient struct {
	base      *BaseClient
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	logger    *slog.Logger
}

// NewTextGenClient creates a new TextGenClient. The httpClient timeout should
// match the configured AI timeout (generation calls routinely take tens of
// seconds).
func NewTextGenClient(httpClient *http.Client, cfg TextGenClientConfig) *TextGenClient {
	base := NewBaseClient(
		httpClient,
		"textgen",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    1 * time.Second,
			MaxWait:    10 * time.Second,
		},
		"PathSynch/1.0",
	)

	return NewTextGenClientWithBase(base, cfg)
}

// NewTextGenClientWithBase creates a TextGenClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewTextGenClientWithBase(base *BaseClient, cfg TextGenClientConfig) *TextGenClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = textGenAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TextGenClient{
		base:      base,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// Generate produces narrative text for the given prompt by POSTing to
// /chat/completions with the configured model and token ceiling.
func (c *TextGenClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"prompt is required for text generation",
			nil,
		)
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: c.maxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to serialize generation request",
			err,
		)
	}

	url := c.baseURL + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create generation request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.InfoContext(ctx, "requesting text generation",
		"model", c.model,
		"prompt_chars", len(prompt),
	)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("Generate", err)
	}
	defer resp.Body.Close()

	// Handle non-2xx responses that made it past the BaseClient retry logic.
	// BaseClient returns 4xx responses (other than 429) as-is without error.
	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "Generate")
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode generation response",
			err,
		)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamAI,
			"AI provider returned no completion",
			nil,
		)
	}

	model := chatResp.Model
	if model == "" {
		model = c.model
	}

	c.logger.InfoContext(ctx, "text generation complete",
		"model", model,
		"tokens_used", chatResp.Usage.TotalTokens,
		"finish_reason", chatResp.Choices[0].FinishReason,
	)

	return &Completion{
		Content:    chatResp.Choices[0].Message.Content,
		TokensUsed: chatResp.Usage.TotalTokens,
		Model:      model,
	}, nil
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an appropriate AppError.
func (c *TextGenClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("AI provider API error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return types.NewAppError(
			types.ErrCodeUpstreamAI,
			"AI provider authentication failed (401)",
			fmt.Errorf("textgen %s returned 401: %s", operation, bodyStr),
		)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(
			types.ErrCodeUpstreamAI,
			fmt.Sprintf("AI provider client error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("textgen %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamAI,
			fmt.Sprintf("AI provider server error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("textgen %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	}
}

// wrapError converts errors from BaseClient.Do into domain-specific AI errors.
func (c *TextGenClient) wrapError(operation string, err error) error {
	// If it's already an AppError, enhance the message but preserve the code.
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("textgen %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamAI,
		fmt.Sprintf("textgen %s failed", operation),
		err,
	)
}

// Compile-time interface compliance check.
var _ TextGenerator = (*TextGenClient)(nil)
