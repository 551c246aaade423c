package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"appraisal-service/llm"
	"appraisal-service/retry"
)

type speechRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}

// TTSClient synthesizes spoken summaries of appraisal reports.
type TTSClient struct {
	apiKey  string
	model   string
	voice   string
	baseURL string
	client  *http.Client
	policy  retry.Policy
}

// NewTTSClient creates a speech synthesis client.
func NewTTSClient(apiKey, model, voice string) *TTSClient {
	return &TTSClient{
		apiKey:  apiKey,
		model:   model,
		voice:   voice,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		policy:  retry.DefaultPolicy(),
	}
}

// Synthesize converts text to MP3 audio bytes.
func (c *TTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	body, err := json.Marshal(speechRequest{Model: c.model, Voice: c.voice, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var audio []byte
	err = retry.Do(ctx, c.policy, llm.IsTransient, func() error {
		out, reqErr := c.doSpeech(ctx, body)
		if reqErr != nil {
			return reqErr
		}
		audio = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (c *TTSClient) doSpeech(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, llm.Transientf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Transientf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}
