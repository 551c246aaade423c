package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/apex/log"

	"appraisal-service/llm"
	"appraisal-service/models"
	"appraisal-service/retry"
)

// Run statuses that end a job.
const (
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
	runStatusCancelled = "cancelled"
	runStatusExpired   = "expired"
)

type fileUploadResponse struct {
	ID string `json:"id"`
}

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error,omitempty"`
}

type threadMessage struct {
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text *struct {
			Value string `json:"value"`
		} `json:"text,omitempty"`
	} `json:"content"`
}

// AssistantClient invokes the vision model through the assistants API: upload
// files, create a thread, start a run, poll it to a terminal state and read
// the reply. Each invocation allocates its own thread; the thread is released
// best-effort once the result has been retrieved.
type AssistantClient struct {
	apiKey      string
	assistantID string
	baseURL     string
	client      *http.Client
	policy      retry.Policy

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewAssistantClient creates a job-mode vision client.
func NewAssistantClient(apiKey, assistantID string, pollInterval, pollTimeout time.Duration) *AssistantClient {
	return &AssistantClient{
		apiKey:       apiKey,
		assistantID:  assistantID,
		baseURL:      defaultBaseURL,
		client:       &http.Client{Timeout: 60 * time.Second},
		policy:       retry.DefaultPolicy(),
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// SourceName identifies this provider in saved appraisals
func (c *AssistantClient) SourceName() string {
	return "Assistant"
}

// Invoke runs the full job-mode sequence for one appraisal request.
func (c *AssistantClient) Invoke(ctx context.Context, imageURLs []string, contextText string, tier models.Tier) (string, error) {
	if len(imageURLs) == 0 {
		return "", fmt.Errorf("at least one image URL is required")
	}

	fileIDs := make([]string, 0, len(imageURLs))
	for _, url := range imageURLs {
		img, err := fetchImage(ctx, c.client, url)
		if err != nil {
			return "", err
		}
		fileID, err := c.uploadFile(ctx, img)
		if err != nil {
			return "", fmt.Errorf("failed to upload file: %w", err)
		}
		fileIDs = append(fileIDs, fileID)
	}

	threadID, err := c.createThread(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	defer c.deleteThread(threadID)

	if err := c.addMessage(ctx, threadID, fileIDs, contextText); err != nil {
		return "", fmt.Errorf("failed to add message to thread: %w", err)
	}

	runID, err := c.createRun(ctx, threadID, tier)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	if err := c.waitForRun(ctx, threadID, runID); err != nil {
		return "", err
	}

	return c.assistantReply(ctx, threadID)
}

// uploadFile uploads image bytes for vision input and returns the file ID.
func (c *AssistantClient) uploadFile(ctx context.Context, img *fetchedImage) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = part.Write(img.Data); err != nil {
		return "", fmt.Errorf("failed to copy file data: %w", err)
	}
	if err = writer.WriteField("purpose", "vision"); err != nil {
		return "", fmt.Errorf("failed to write purpose field: %w", err)
	}
	writer.Close()

	var fileResp fileUploadResponse
	err = retry.Do(ctx, c.policy, llm.IsTransient, func() error {
		return c.do(ctx, http.MethodPost, "/files", buf.Bytes(), writer.FormDataContentType(), &fileResp)
	})
	if err != nil {
		return "", err
	}
	return fileResp.ID, nil
}

func (c *AssistantClient) createThread(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]any{"messages": []any{}})

	var resp threadResponse
	err := retry.Do(ctx, c.policy, llm.IsTransient, func() error {
		return c.do(ctx, http.MethodPost, "/threads", body, "application/json", &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// addMessage attaches the user message: image parts first, the text prompt
// last. Part order matters for vision accuracy on some backends.
func (c *AssistantClient) addMessage(ctx context.Context, threadID string, fileIDs []string, contextText string) error {
	content := make([]map[string]any, 0, len(fileIDs)+1)
	for _, id := range fileIDs {
		content = append(content, map[string]any{
			"type":       "image_file",
			"image_file": map[string]any{"file_id": id},
		})
	}
	text := contextText
	if text == "" {
		text = "Please appraise the item in these photographs."
	}
	content = append(content, map[string]any{"type": "text", "text": text})

	body, err := json.Marshal(map[string]any{
		"role":    "user",
		"content": content,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	return retry.Do(ctx, c.policy, llm.IsTransient, func() error {
		return c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, "application/json", nil)
	})
}

func (c *AssistantClient) createRun(ctx context.Context, threadID string, tier models.Tier) (string, error) {
	params := paramsForTier(tier)
	body, err := json.Marshal(map[string]any{
		"assistant_id":          c.assistantID,
		"instructions":          promptForTier(tier),
		"temperature":           params.Temperature,
		"max_completion_tokens": params.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	var resp runResponse
	err = retry.Do(ctx, c.policy, llm.IsTransient, func() error {
		return c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, "application/json", &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// waitForRun polls run status at a fixed interval until a terminal state or
// the wall-clock ceiling. Semantic terminal failures are never retried.
func (c *AssistantClient) waitForRun(ctx context.Context, threadID, runID string) error {
	err := retry.Poll(ctx, c.pollInterval, c.pollTimeout, func(ctx context.Context) (bool, error) {
		var run runResponse
		pollErr := retry.Do(ctx, c.policy, llm.IsTransient, func() error {
			return c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, "", &run)
		})
		if pollErr != nil {
			return false, pollErr
		}

		switch run.Status {
		case runStatusCompleted:
			return true, nil
		case runStatusFailed, runStatusCancelled, runStatusExpired:
			if run.LastError != nil {
				return false, fmt.Errorf("%w: %s (%s - %s)", llm.ErrModelRunFailed, run.Status, run.LastError.Code, run.LastError.Message)
			}
			return false, fmt.Errorf("%w: %s", llm.ErrModelRunFailed, run.Status)
		default:
			return false, nil
		}
	})
	if errors.Is(err, retry.ErrCeiling) {
		return fmt.Errorf("%w after %s", llm.ErrModelTimeout, c.pollTimeout)
	}
	return err
}

// assistantReply fetches thread messages and extracts the first assistant
// text reply.
func (c *AssistantClient) assistantReply(ctx context.Context, threadID string) (string, error) {
	var resp struct {
		Data []threadMessage `json:"data"`
	}
	err := retry.Do(ctx, c.policy, llm.IsTransient, func() error {
		return c.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, "", &resp)
	})
	if err != nil {
		return "", fmt.Errorf("failed to get messages: %w", err)
	}

	for _, message := range resp.Data {
		if message.Role != "assistant" {
			continue
		}
		for _, content := range message.Content {
			if content.Type == "text" && content.Text != nil && content.Text.Value != "" {
				return content.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("no response received from assistant")
}

// deleteThread releases the server-side thread. Best-effort: failure is
// logged, never propagated.
func (c *AssistantClient) deleteThread(threadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.do(ctx, http.MethodDelete, "/threads/"+threadID, nil, "", nil); err != nil {
		log.Warnf("failed to delete thread %s: %v", threadID, err)
	}
}

// do executes one assistants-API request and decodes the response into out.
func (c *AssistantClient) do(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return llm.Transientf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Transientf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return classifyAPIError(resp.StatusCode, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
