// Package extract turns free-form chat messages into structured transaction
// drafts by calling an external chat-completion endpoint and parsing its
// response.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client defines the interface for inference providers.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config holds configuration for the inference client.
type Config struct {
	APIURL      string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// httpClient implements Client against an OpenAI-compatible
// chat-completions endpoint.
type httpClient struct {
	httpClient  *http.Client
	apiURL      string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// newHTTPClient creates a chat-completions client.
func newHTTPClient(cfg Config) (*httpClient, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Code: CodeMissingAPIKey, Err: fmt.Errorf("inference API key is required")}
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 500
	}

	return &httpClient{
		apiURL:      strings.TrimSuffix(cfg.APIURL, "/"),
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Complete sends one system+user exchange and returns the assistant text.
func (c *httpClient) Complete(ctx context.Context, system, user string) (string, error) {
	requestBody := map[string]any{
		"model":       c.model,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Code: CodeUnreachable, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Code: CodeUnreachable, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &Error{Code: CodeBadStatus, Err: fmt.Errorf("inference API error (status %d): %s", resp.StatusCode, string(body))}
	}

	var response completionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", &Error{Code: CodeUnparseable, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return "", &Error{Code: CodeEmptyContent, Err: fmt.Errorf("no content in response")}
	}

	return response.Choices[0].Message.Content, nil
}

// completionResponse is the OpenAI-compatible chat-completions payload.
type completionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
