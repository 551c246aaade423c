package parser

import (
	"fmt"
	"regexp"
	"strings"

	"appraisal-service/models"
)

// fieldSpec is the canonical description of one report field: the JSON keys
// and inline labels it may appear under, and the keywords used for
// sentence-level extraction. All tiers share this single table; the
// per-endpoint keyword variants collapse into the alias lists.
type fieldSpec struct {
	name     string
	aliases  []string
	keywords []string
}

const (
	fieldOverview    = "overview"
	fieldObjectType  = "object_type"
	fieldEra         = "era"
	fieldMaterials   = "materials"
	fieldShape       = "shape"
	fieldSize        = "size"
	fieldColor       = "color"
	fieldNotable     = "notable_features"
	fieldCondition   = "condition"
	fieldRegulations = "regulations"
	fieldConclusion  = "conclusion"
	fieldProvenance  = "provenance"
	fieldStylistic   = "stylistic_assessment"
	fieldAttribution = "attribution"
	fieldValue       = "value_indicators"
	fieldQuestions   = "follow_up_questions"
)

var fieldTable = []fieldSpec{
	{fieldOverview, []string{"overview", "summary", "description"}, []string{"overview", "summary"}},
	// No bare "type" alias: top-level "type" keys usually tag the payload
	// (e.g. {"type": "report"}), not the object.
	{fieldObjectType, []string{"object_type", "objecttype", "object", "item_type"}, []string{"object type", "this item", "this object"}},
	{fieldEra, []string{"era", "period", "age", "date"}, []string{"era", "period", "century", "dates from"}},
	{fieldMaterials, []string{"materials", "material", "composition"}, []string{"material", "made of", "made from"}},
	{fieldShape, []string{"shape", "form"}, []string{"shape", "shaped"}},
	{fieldSize, []string{"size", "dimensions", "measurements"}, []string{"size", "dimension", "measures"}},
	{fieldColor, []string{"color", "colour", "colors", "colours"}, []string{"color", "colour"}},
	{fieldNotable, []string{"notable_features", "notable", "features_of_note", "details", "markings"}, []string{"notable", "marking", "inscription", "decoration"}},
	{fieldCondition, []string{"condition", "concerns", "major_concerns", "red_flags", "redflags", "condition_concerns", "damage"}, []string{"condition", "damage", "wear", "crack", "repair"}},
	{fieldRegulations, []string{"regulations", "legal", "legal_notes", "regulatory", "restrictions"}, []string{"regulation", "legal", "export", "restricted", "cites"}},
	{fieldConclusion, []string{"conclusion", "verdict", "recommendation"}, []string{"conclusion", "in summary", "overall"}},
	{fieldProvenance, []string{"provenance", "origin", "ownership_history"}, []string{"provenance", "origin", "previously owned"}},
	{fieldStylistic, []string{"stylistic_assessment", "stylistic", "style"}, []string{"style", "stylistic"}},
	{fieldAttribution, []string{"attribution", "maker", "artist", "manufacturer"}, []string{"attributed", "maker", "manufactur", "workshop"}},
	{fieldValue, []string{"value_indicators", "value", "estimated_value", "valuation", "worth"}, []string{"value", "worth", "estimate", "auction"}},
}

// requiredKeys lists the top-level alias groups that must all be present for a
// parsed object to be accepted for the given tier. A partially-shaped object
// falls through to the next parse strategy instead of being patched in place.
func requiredKeys(tier models.Tier) [][]string {
	base := [][]string{
		{"overview", "summary", "description"},
		{"features", "physical_features", "identification"},
	}
	if tier == models.TierFull {
		base = append(base,
			[]string{"provenance", "origin", "ownership_history"},
			[]string{"value_indicators", "value", "estimated_value", "valuation"},
		)
	}
	return base
}

// labelPatterns maps canonical field name to a compiled "label: value" regex
// built from its aliases. Compiled once; Normalize stays deterministic.
var labelPatterns = buildLabelPatterns()

func buildLabelPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(fieldTable))
	for _, f := range fieldTable {
		alts := make([]string, len(f.aliases))
		for i, a := range f.aliases {
			// Aliases are stored snake_case; let labels match spaces too.
			alts[i] = strings.ReplaceAll(regexp.QuoteMeta(a), "_", "[_ ]")
		}
		expr := fmt.Sprintf(`(?im)^[\s*#>-]*(?:%s)\s*[:\-]\s*(\S.*)$`, strings.Join(alts, "|"))
		patterns[f.name] = regexp.MustCompile(expr)
	}
	return patterns
}
