package llm

import (
	"context"

	"appraisal-service/models"
)

// Client abstracts a vision-model provider used by the appraisal orchestrator.
// Implementations must be concurrency-safe if used across goroutines.
type Client interface {
	// Invoke submits up to three image URLs plus optional free-text context and
	// returns the raw textual output of the model for the given tier.
	Invoke(ctx context.Context, imageURLs []string, contextText string, tier models.Tier) (string, error)
	// SourceName returns a short provider label to persist alongside results
	// (e.g. "ChatGPT", "Assistant").
	SourceName() string
}
