package openai

import "appraisal-service/models"

// genParams are the per-tier generation parameters. Richer tiers get a larger
// output budget.
type genParams struct {
	Temperature float64
	MaxTokens   int
}

func paramsForTier(tier models.Tier) genParams {
	switch tier {
	case models.TierBasic:
		return genParams{Temperature: 0.2, MaxTokens: 900}
	case models.TierInitial:
		return genParams{Temperature: 0.2, MaxTokens: 1600}
	default:
		return genParams{Temperature: 0.3, MaxTokens: 3000}
	}
}

const promptCommon = `
You are an expert antiques appraiser. You receive one to three photographs of
a single item, optionally with notes from its owner, and you produce an
appraisal report.

Output rules:
* Respond with a single valid JSON object inside a ` + "```json" + ` code block and
  nothing else.
* Every key listed in the schema must be present. If the photographs do not
  allow a determination, use the string "Not specified" (or "Unknown" for
  identification keys) rather than omitting the key or inventing detail.
* Be specific: name the object type, the likely era with date range, and the
  materials you can actually see.
* Mention any visible damage, repairs, or wear under "condition".
* Under "regulations", note legal or export restrictions that commonly apply
  to this category of item (ivory, endangered species, cultural property),
  or "Not specified" when none apply.
`

const promptSchemaBase = `
JSON schema:
{
  "overview": "<2-4 sentence summary of what the item is and its significance>",
  "identification": {
    "object_type": "<e.g. vase, chest of drawers, pocket watch>",
    "era": "<period or date range>",
    "materials": "<primary materials>"
  },
  "features": {
    "shape": "<overall form>",
    "size": "<estimated dimensions, or Not specified>",
    "color": "<dominant colors and finish>",
    "materials": "<materials visible in the photographs>",
    "notable_features": "<markings, inscriptions, decoration, hardware>"
  },
  "condition": "<visible condition concerns>",
  "regulations": "<legal or regulatory notes>",
  "conclusion": "<closing assessment and recommended next steps>"
}
`

const promptSchemaFull = `
JSON schema:
{
  "overview": "<3-5 sentence summary of the item and its significance>",
  "identification": {
    "object_type": "<e.g. vase, chest of drawers, pocket watch>",
    "era": "<period or date range with reasoning>",
    "materials": "<primary materials>"
  },
  "features": {
    "shape": "<overall form>",
    "size": "<estimated dimensions, or Not specified>",
    "color": "<dominant colors and finish>",
    "materials": "<materials visible in the photographs>",
    "notable_features": "<markings, inscriptions, decoration, hardware>"
  },
  "condition": "<visible condition concerns, restoration, wear>",
  "regulations": "<legal or regulatory notes for owning, selling or exporting>",
  "provenance": "<what the photographs suggest about origin and ownership history>",
  "stylistic_assessment": "<style, school or movement, with comparisons>",
  "attribution": "<likely maker, workshop or region, with confidence>",
  "value_indicators": "<factors driving value and a cautious estimated range>",
  "follow_up_questions": ["<question for the owner>", "..."],
  "conclusion": "<closing assessment and recommended next steps>"
}
`

const promptTierBasic = `
Produce a concise appraisal. Keep each narrative value to one or two
sentences. Do not attempt provenance, attribution or valuation.
` + promptSchemaBase

const promptTierInitial = `
Produce a standard appraisal with historical context. Keep each narrative
value to a short paragraph at most. Do not attempt provenance, attribution or
a value estimate.
` + promptSchemaBase

const promptTierFull = `
Produce a comprehensive appraisal: identification, historical context,
stylistic analysis, attribution and cautious value indicators. Where evidence
is thin, say so explicitly and list what additional photographs or
documentation would firm up the assessment.
` + promptSchemaFull

// promptForTier returns the system instruction for a tier. Unrecognized tiers
// get the richest prompt.
func promptForTier(tier models.Tier) string {
	switch tier {
	case models.TierBasic:
		return promptCommon + promptTierBasic
	case models.TierInitial:
		return promptCommon + promptTierInitial
	default:
		return promptCommon + promptTierFull
	}
}
