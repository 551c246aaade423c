package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"appraisal-service/llm"
)

// fetchedImage is one image pulled down for re-encoding or upload.
type fetchedImage struct {
	Data     []byte
	MimeType string
}

// fetchImage retrieves one image URL with no-cache semantics. The response
// content type becomes the mime type, defaulting to image/jpeg when absent.
// Any failure fails the whole invocation; there is no partial analysis.
func fetchImage(ctx context.Context, client *http.Client, url string) (*fetchedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request for %s: %w", url, err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, llm.Transientf("failed to fetch image %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch for %s returned status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Transientf("failed to read image %s: %w", url, err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return &fetchedImage{Data: data, MimeType: mime}, nil
}

// classifyAPIError maps an OpenAI HTTP status onto the error taxonomy:
// credential rejections are fatal, rate limits and server errors are
// transient, everything else is a plain permanent error.
func classifyAPIError(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w (status %d): %s", llm.ErrUpstreamAuth, status, string(body))
	case status == http.StatusTooManyRequests || status >= 500:
		return llm.Transientf("API error (status %d): %s", status, string(body))
	default:
		return fmt.Errorf("API error (status %d): %s", status, string(body))
	}
}
