// Package stubllm provides a deterministic vision client for development and
// tests: no network, schema-valid output derived from the input.
package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"appraisal-service/models"
)

var sampleObjects = []struct {
	objectType string
	era        string
	materials  string
}{
	{"porcelain vase", "Late 19th century (circa 1870-1890)", "Hard-paste porcelain with overglaze enamel"},
	{"oak chest of drawers", "Early 18th century (circa 1700-1730)", "Quarter-sawn oak with brass hardware"},
	{"pocket watch", "Mid 19th century (circa 1840-1860)", "Gilt brass case, enamel dial"},
	{"silver candlestick", "Georgian period (circa 1760-1800)", "Sterling silver"},
}

// Client fabricates plausible appraisal output. The same inputs always yield
// the same response.
type Client struct{}

func New() *Client {
	return &Client{}
}

func (c *Client) SourceName() string {
	return "Stub"
}

// Invoke returns a schema-valid fenced JSON report picked by hashing the
// request inputs.
func (c *Client) Invoke(_ context.Context, imageURLs []string, contextText string, tier models.Tier) (string, error) {
	if len(imageURLs) == 0 {
		return "", fmt.Errorf("at least one image URL is required")
	}

	h := sha256.New()
	for _, u := range imageURLs {
		h.Write([]byte(u))
	}
	h.Write([]byte(contextText))
	sum := h.Sum(nil)
	obj := sampleObjects[int(sum[0])%len(sampleObjects)]
	marking := hex.EncodeToString(sum[1:4])

	base := fmt.Sprintf(`  "overview": "The photographs show a %s in generally presentable condition. This is a placeholder analysis produced without a vision model.",
  "identification": {
    "object_type": "%s",
    "era": "%s",
    "materials": "%s"
  },
  "features": {
    "shape": "Conventional form for the type",
    "size": "Not specified",
    "color": "Warm neutral tones",
    "materials": "%s",
    "notable_features": "Maker's marking %s visible near the base"
  },
  "condition": "Light surface wear consistent with age; no structural damage visible",
  "regulations": "Not specified",
  "conclusion": "A representative example of its type. An in-person inspection is recommended before sale."`,
		obj.objectType, obj.objectType, obj.era, obj.materials, obj.materials, marking)

	if tier == models.TierFull {
		base += fmt.Sprintf(`,
  "provenance": "No ownership history is evident from the photographs",
  "stylistic_assessment": "Typical of mainstream production for the period",
  "attribution": "Unattributed workshop, region uncertain",
  "value_indicators": "Comparable examples trade in a modest range at general auction",
  "follow_up_questions": ["Are there any maker's marks not shown in the photographs?", "Do you know how the item was acquired?"]`)
	}

	return "```json\n{\n" + base + "\n}\n```", nil
}
