// Package openai wraps the OpenAI HTTP APIs used by the appraisal service:
// chat completions with vision input, the assistants API for job-mode
// invocation, and speech synthesis.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"appraisal-service/llm"
	"appraisal-service/models"
	"appraisal-service/retry"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ImageContent struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content any `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client invokes the vision model synchronously via chat completions.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	policy  retry.Policy
}

// NewClient creates a chat-mode vision client.
func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		policy:  retry.DefaultPolicy(),
	}
}

// SourceName identifies this provider in saved appraisals
func (c *Client) SourceName() string {
	return "ChatGPT"
}

// Invoke sends the tier prompt, the images and the user's context text in a
// single chat request and returns the model's raw output. Images are fetched
// and inlined as base64 data URLs; image parts precede the text part because
// part order affects vision accuracy on some models.
func (c *Client) Invoke(ctx context.Context, imageURLs []string, contextText string, tier models.Tier) (string, error) {
	if len(imageURLs) == 0 {
		return "", fmt.Errorf("at least one image URL is required")
	}

	userParts := make([]any, 0, len(imageURLs)+1)
	for _, url := range imageURLs {
		img, err := fetchImage(ctx, c.client, url)
		if err != nil {
			return "", err
		}
		userParts = append(userParts, ImageContent{
			Type: "image_url",
			ImageURL: ImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data)),
			},
		})
	}
	if contextText != "" {
		userParts = append(userParts, TextContent{Type: "text", Text: contextText})
	} else {
		userParts = append(userParts, TextContent{Type: "text", Text: "Please appraise the item in these photographs."})
	}

	params := paramsForTier(tier)
	reqBody := ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: promptForTier(tier)},
			{Role: "user", Content: userParts},
		},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var result string
	err = retry.Do(ctx, c.policy, llm.IsTransient, func() error {
		out, reqErr := c.doChat(ctx, jsonData)
		if reqErr != nil {
			return reqErr
		}
		result = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func (c *Client) doChat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", llm.Transientf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.Transientf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyAPIError(resp.StatusCode, respBody)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := chatResp.Choices[0].Message.Content
	if contentStr, ok := content.(string); ok {
		return contentStr, nil
	}

	// Some models return structured content parts; keep them as JSON text.
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to marshal content: %w", err)
	}
	return string(contentJSON), nil
}
