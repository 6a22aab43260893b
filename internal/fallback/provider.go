// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/price-engine/internal/httputil"
	"github.com/pdiddy/price-engine/pkg/types"
)

// Provider endpoints. Package-level vars for test substitution.
var (
	anthropicAPIURL = "https://api.anthropic.com/v1/messages"
	openaiChatURL   = "https://api.openai.com/v1/chat/completions"
)

// CompletionRequest is one provider call: a fixed system prompt, a user
// prompt, and a bounded output budget.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse carries the provider's text plus its reported token
// usage for cost accounting.
type CompletionResponse struct {
	Text       string
	TokensUsed int
}

// ProviderClient abstracts the text-generation provider so tests can
// supply a mock. One concrete adapter is selected at startup; nothing
// branches on the provider per call.
type ProviderClient interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// NewProviderClient builds the adapter named by cfg.Provider.
func NewProviderClient(cfg types.AIConfig) (ProviderClient, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case types.ProviderAnthropic, "":
		return &AnthropicClient{APIKey: cfg.APIKey, Model: cfg.Model, Client: client, MaxRetries: cfg.MaxRetries}, nil
	case types.ProviderOpenAI:
		return &OpenAIClient{APIKey: cfg.APIKey, Model: cfg.Model, Client: client, MaxRetries: cfg.MaxRetries}, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: use anthropic or openai", cfg.Provider)
	}
}

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	APIKey     string
	Model      string
	Client     *http.Client
	MaxRetries int
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Complete sends one Messages API request and returns the first text block.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       c.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := httputil.DoWithRetry(ctx, c.Client, httpReq, c.MaxRetries)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("calling Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return CompletionResponse{}, fmt.Errorf("Anthropic API returned %d: %s", resp.StatusCode, string(raw))
	}

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return CompletionResponse{}, fmt.Errorf("decoding Anthropic response: %w", err)
	}

	for _, block := range ar.Content {
		if block.Type != "text" {
			continue
		}
		return CompletionResponse{
			Text:       block.Text,
			TokensUsed: ar.Usage.InputTokens + ar.Usage.OutputTokens,
		}, nil
	}

	return CompletionResponse{}, fmt.Errorf("no text content in Anthropic response")
}

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	APIKey     string
	Model      string
	Client     *http.Client
	MaxRetries int
}

type openaiRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Messages    []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiUsage struct {
	TotalTokens int `json:"total_tokens"`
}

// Complete sends one Chat Completions request and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	messages := []openaiMessage{}
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(openaiRequest{
		Model:       c.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    messages,
	})
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiChatURL, bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := httputil.DoWithRetry(ctx, c.Client, httpReq, c.MaxRetries)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("calling OpenAI API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return CompletionResponse{}, fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, string(raw))
	}

	var or openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return CompletionResponse{}, fmt.Errorf("decoding OpenAI response: %w", err)
	}

	if len(or.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("OpenAI API returned no choices")
	}

	return CompletionResponse{
		Text:       or.Choices[0].Message.Content,
		TokensUsed: or.Usage.TotalTokens,
	}, nil
}
