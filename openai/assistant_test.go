package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal-service/llm"
	"appraisal-service/models"
)

// assistantServer fakes the assistants API surface the client touches.
type assistantServer struct {
	mu            sync.Mutex
	pollsToFinish int
	finalStatus   string
	polls         int
	threadDeleted bool
	messageBody   map[string]any
}

func (s *assistantServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/image.jpg", imageHandler)
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))
		json.NewEncoder(w).Encode(map[string]string{"id": "file-1"})
	})
	mux.HandleFunc("/threads", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "thread-1"})
	})
	mux.HandleFunc("/threads/thread-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			s.mu.Lock()
			s.threadDeleted = true
			s.mu.Unlock()
		}
		json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	})
	mux.HandleFunc("/threads/thread-1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			s.mu.Lock()
			s.messageBody = body
			s.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]string{"id": "msg-1"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"role": "assistant",
					"content": []map[string]any{
						{"type": "text", "text": map[string]string{"value": "the assistant report"}},
					},
				},
			},
		})
	})
	mux.HandleFunc("/threads/thread-1/runs", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "run-1", "status": "queued"})
	})
	mux.HandleFunc("/threads/thread-1/runs/run-1", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		s.polls++
		status := "in_progress"
		if s.polls >= s.pollsToFinish {
			status = s.finalStatus
		}
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": "run-1", "status": status})
	})
	return mux
}

func testAssistantClient(baseURL string, pollTimeout time.Duration) *AssistantClient {
	c := NewAssistantClient("test-key", "asst-1", 5*time.Millisecond, pollTimeout)
	c.baseURL = baseURL
	c.policy = fastPolicy()
	return c
}

func TestAssistantInvokeHappyPath(t *testing.T) {
	fake := &assistantServer{pollsToFinish: 3, finalStatus: "completed"}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := testAssistantClient(srv.URL, time.Second)
	out, err := c.Invoke(context.Background(), []string{srv.URL + "/image.jpg"}, "owner notes", models.TierFull)

	require.NoError(t, err)
	assert.Equal(t, "the assistant report", out)
	assert.GreaterOrEqual(t, fake.polls, 3)
	assert.True(t, fake.threadDeleted)

	// Image parts precede the text part in the thread message.
	content := fake.messageBody["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "image_file", content[0].(map[string]any)["type"])
	last := content[1].(map[string]any)
	assert.Equal(t, "text", last["type"])
	assert.Equal(t, "owner notes", last["text"])
}

func TestAssistantInvokeTerminalFailure(t *testing.T) {
	for _, status := range []string{"failed", "cancelled", "expired"} {
		fake := &assistantServer{pollsToFinish: 1, finalStatus: status}
		srv := httptest.NewServer(fake.handler(t))

		c := testAssistantClient(srv.URL, time.Second)
		_, err := c.Invoke(context.Background(), []string{srv.URL + "/image.jpg"}, "", models.TierFull)

		assert.ErrorIs(t, err, llm.ErrModelRunFailed, "status %s", status)
		assert.True(t, fake.threadDeleted, "status %s", status)
		srv.Close()
	}
}

func TestAssistantInvokeTimeout(t *testing.T) {
	// The run never leaves in_progress; the poll ceiling must trip.
	fake := &assistantServer{pollsToFinish: 1 << 30, finalStatus: "completed"}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := testAssistantClient(srv.URL, 30*time.Millisecond)
	_, err := c.Invoke(context.Background(), []string{srv.URL + "/image.jpg"}, "", models.TierFull)

	assert.ErrorIs(t, err, llm.ErrModelTimeout)
	assert.True(t, fake.threadDeleted)
}

func TestAssistantUploadAuthFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/image.jpg", imageHandler)
	mux.HandleFunc("/files", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testAssistantClient(srv.URL, time.Second)
	_, err := c.Invoke(context.Background(), []string{srv.URL + "/image.jpg"}, "", models.TierFull)

	assert.ErrorIs(t, err, llm.ErrUpstreamAuth)
}

func TestAssistantInvokeRequiresImages(t *testing.T) {
	c := testAssistantClient("http://unused", time.Second)

	_, err := c.Invoke(context.Background(), nil, "", models.TierFull)

	assert.Error(t, err)
}

func TestAssistantDefaultPromptText(t *testing.T) {
	fake := &assistantServer{pollsToFinish: 1, finalStatus: "completed"}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := testAssistantClient(srv.URL, time.Second)
	_, err := c.Invoke(context.Background(), []string{srv.URL + "/image.jpg"}, "", models.TierBasic)

	require.NoError(t, err)
	content := fake.messageBody["content"].([]any)
	text := content[len(content)-1].(map[string]any)["text"].(string)
	assert.True(t, strings.Contains(text, "appraise"))
}
