package models

import "time"

// Tier is the requested depth of an appraisal.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierInitial Tier = "initial"
	TierFull    Tier = "full"
)

// ParseTier maps a raw tier string to a known tier. Unrecognized values fall
// back to the richest tier so the user never gets less than they asked for.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierBasic, TierInitial, TierFull:
		return Tier(s)
	default:
		return TierFull
	}
}

// Placeholder values for report fields the model did not populate. The report
// schema is total: a missing value is always one of these, never an absent key.
const (
	NotSpecified = "Not specified"
	Unknown      = "Unknown"
)

// Identification describes what the item is.
type Identification struct {
	ObjectType string `json:"object_type"`
	Era        string `json:"era"`
	Materials  string `json:"materials"`
}

// FeatureTable captures the physical characteristics of the item.
type FeatureTable struct {
	Shape           string `json:"shape"`
	Size            string `json:"size"`
	Color           string `json:"color"`
	Materials       string `json:"materials"`
	NotableFeatures string `json:"notable_features"`
}

// NormalizedReport is the canonical, tier-independent appraisal result. Every
// field is always populated; refinement produces a new report rather than
// mutating an existing one.
type NormalizedReport struct {
	Tier           Tier           `json:"tier"`
	Overview       string         `json:"overview"`
	Identification Identification `json:"identification"`
	Features       FeatureTable   `json:"features"`
	Condition      string         `json:"condition"`
	Regulations    string         `json:"regulations"`
	Conclusion     string         `json:"conclusion"`

	// Populated for the full tier; placeholders otherwise.
	Provenance          string   `json:"provenance"`
	StylisticAssessment string   `json:"stylistic_assessment"`
	Attribution         string   `json:"attribution"`
	ValueIndicators     string   `json:"value_indicators"`
	FollowUpQuestions   []string `json:"follow_up_questions"`

	// FullText carries the raw model output for audit and debugging.
	FullText string `json:"full_text"`
}

// DefaultConclusion is the fallback narrative used when no conclusion could be
// extracted from the model output.
const DefaultConclusion = "No firm conclusion could be drawn from the supplied photographs. " +
	"Please retry with clearer, well-lit images, or consider our other appraisal services for an expert review."

// NewNormalizedReport returns a report with every field set to its placeholder.
func NewNormalizedReport(tier Tier) *NormalizedReport {
	return &NormalizedReport{
		Tier:     tier,
		Overview: NotSpecified,
		Identification: Identification{
			ObjectType: Unknown,
			Era:        Unknown,
			Materials:  Unknown,
		},
		Features: FeatureTable{
			Shape:           NotSpecified,
			Size:            NotSpecified,
			Color:           NotSpecified,
			Materials:       NotSpecified,
			NotableFeatures: NotSpecified,
		},
		Condition:           NotSpecified,
		Regulations:         NotSpecified,
		Conclusion:          DefaultConclusion,
		Provenance:          NotSpecified,
		StylisticAssessment: NotSpecified,
		Attribution:         NotSpecified,
		ValueIndicators:     NotSpecified,
		FollowUpQuestions:   []string{},
	}
}

// AppraisalRequest is an immutable request submitted to the orchestrator.
type AppraisalRequest struct {
	UserID         string   `json:"user_id,omitempty"`
	ImageURLs      []string `json:"image_urls"`
	AdditionalInfo string   `json:"additional_info,omitempty"`
	Tier           Tier     `json:"tier"`
}

// Appraisal is a persisted appraisal: the report plus its request context.
type Appraisal struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	Tier      Tier              `json:"tier"`
	ImageURLs []string          `json:"image_urls"`
	Report    *NormalizedReport `json:"report"`
	CreatedAt time.Time         `json:"created_at"`
}

// Expert pass identifiers.
const (
	ExpertPassHistory = "history"
	ExpertPassMarket  = "market"
)

// ExpertSection is a supplementary enrichment rendered alongside a report. It
// never replaces fields of the report it enriches.
type ExpertSection struct {
	Pass    string `json:"pass"`
	Title   string `json:"title"`
	Content string `json:"content"`
}
