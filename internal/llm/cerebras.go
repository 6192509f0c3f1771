package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultEndpoint = "https://api.cerebras.ai/v1/chat/completions"

type CerebrasClient struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
	Model      string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionsRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewCerebrasClient(apiKey, model string) *CerebrasClient {
	return &CerebrasClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Endpoint:   DefaultEndpoint,
		APIKey:     apiKey,
		Model:      model,
	}
}

// GenerateJSON sends one system and one user message and asks for a JSON object back.
func (c *CerebrasClient) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("cerebras api key missing")
	}
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	messages := []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}

	reqBody, err := json.Marshal(chatCompletionsRequest{
		Model:          c.Model,
		Messages:       messages,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("cerebras error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("cerebras: empty choices")
	}
	answer := cr.Choices[0].Message.Content
	return strings.TrimSpace(answer), nil
}
