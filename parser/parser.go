// Package parser converts raw vision-model output into a NormalizedReport.
// Normalize is total: it never fails and never returns a report with a
// missing field, no matter how malformed the input is.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/apex/log"

	"appraisal-service/models"
)

// Strategy identifies which step of the fallback chain produced a report.
type Strategy string

const (
	// StrategyFencedJSON parsed a ```json code block.
	StrategyFencedJSON Strategy = "fenced_json"
	// StrategyRawJSON parsed the whole response as JSON.
	StrategyRawJSON Strategy = "raw_json"
	// StrategyHeuristic extracted fields from prose with the keyword table.
	StrategyHeuristic Strategy = "heuristic"
	// StrategyDegraded returned the hard-coded error report.
	StrategyDegraded Strategy = "degraded"
)

var (
	// fencedJSONPattern matches the first ```json fenced block.
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)```")
	// fencedAnyPattern matches the first unlabeled fenced block holding an object.
	fencedAnyPattern = regexp.MustCompile("(?s)```\\s*\\n?(\\{.*?\\})\\s*```")
	// trailingCommaPattern strips trailing commas the model likes to emit.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

	sentenceSplitPattern = regexp.MustCompile(`[.!?\n]+`)
)

// Normalize converts raw model output into a fully-populated report for the
// tier, reporting which fallback strategy won. The same input always yields
// the same output.
func Normalize(raw string, tier models.Tier) (*models.NormalizedReport, Strategy) {
	trimmed := strings.TrimSpace(raw)

	if block := extractFencedJSON(trimmed); block != "" {
		if report, ok := reportFromJSON(block, tier); ok {
			report.FullText = raw
			return report, StrategyFencedJSON
		}
	}

	if report, ok := reportFromJSON(trimmed, tier); ok {
		report.FullText = raw
		return report, StrategyRawJSON
	}

	report, strategy := safeHeuristic(trimmed, tier)
	report.FullText = raw
	return report, strategy
}

// extractFencedJSON returns the contents of the first fenced JSON code block,
// preferring a ```json label over a bare fence.
func extractFencedJSON(s string) string {
	if m := fencedJSONPattern.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if m := fencedAnyPattern.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// reportFromJSON parses s as a JSON object and maps it onto a report. A
// partially-shaped object is rejected so the caller can fall through.
func reportFromJSON(s string, tier models.Tier) (*models.NormalizedReport, bool) {
	cleaned := trailingCommaPattern.ReplaceAllString(s, "$1")

	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, false
	}

	obj = unwrapEnvelope(obj)

	for _, group := range requiredKeys(tier) {
		if !hasAnyKey(obj, group) {
			return nil, false
		}
	}

	report := models.NewNormalizedReport(tier)
	for _, f := range fieldTable {
		if v := lookupField(obj, f.aliases); v != "" {
			assignField(report, f.name, v)
		}
	}
	if qs := lookupQuestions(obj); len(qs) > 0 {
		report.FollowUpQuestions = qs
	}
	return report, true
}

// unwrapEnvelope peels one level when the model wraps its payload in an outer
// object with a single nested value.
func unwrapEnvelope(obj map[string]any) map[string]any {
	if len(obj) == 1 {
		for _, v := range obj {
			if inner, ok := v.(map[string]any); ok {
				return inner
			}
		}
	}
	for _, key := range []string{"report", "appraisal", "result", "data", "response"} {
		if inner, ok := obj[key].(map[string]any); ok && len(obj) <= 2 {
			return inner
		}
	}
	return obj
}

func hasAnyKey(obj map[string]any, aliases []string) bool {
	for _, a := range aliases {
		if _, ok := obj[a]; ok {
			return true
		}
	}
	return false
}

// lookupField finds the first alias match at the top level or nested one level
// inside the identification/features sub-objects.
func lookupField(obj map[string]any, aliases []string) string {
	for _, a := range aliases {
		if v, ok := obj[a]; ok {
			if s := stringValue(v); s != "" {
				return s
			}
		}
	}
	for _, nested := range []string{"identification", "features", "physical_features"} {
		inner, ok := obj[nested].(map[string]any)
		if !ok {
			continue
		}
		for _, a := range aliases {
			if v, ok := inner[a]; ok {
				if s := stringValue(v); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func lookupQuestions(obj map[string]any) []string {
	for _, key := range []string{"follow_up_questions", "followup_questions", "questions"} {
		raw, ok := obj[key].([]any)
		if !ok {
			continue
		}
		var out []string
		for _, q := range raw {
			if s := stringValue(q); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// stringValue renders scalar JSON values; nulls and composites become "".
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return ""
	}
}

func assignField(r *models.NormalizedReport, name, value string) {
	switch name {
	case fieldOverview:
		r.Overview = value
	case fieldObjectType:
		r.Identification.ObjectType = value
	case fieldEra:
		r.Identification.Era = value
	case fieldMaterials:
		r.Identification.Materials = value
		r.Features.Materials = value
	case fieldShape:
		r.Features.Shape = value
	case fieldSize:
		r.Features.Size = value
	case fieldColor:
		r.Features.Color = value
	case fieldNotable:
		r.Features.NotableFeatures = value
	case fieldCondition:
		r.Condition = value
	case fieldRegulations:
		r.Regulations = value
	case fieldConclusion:
		r.Conclusion = value
	case fieldProvenance:
		r.Provenance = value
	case fieldStylistic:
		r.StylisticAssessment = value
	case fieldAttribution:
		r.Attribution = value
	case fieldValue:
		r.ValueIndicators = value
	}
}

// safeHeuristic guards the heuristic pass: a panic inside extraction yields
// the hard-coded degraded report instead of propagating.
func safeHeuristic(raw string, tier models.Tier) (report *models.NormalizedReport, strategy Strategy) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("heuristic extraction panicked: %v", r)
			report = degradedReport(tier)
			strategy = StrategyDegraded
		}
	}()
	return heuristicReport(raw, tier), StrategyHeuristic
}

// heuristicReport extracts each field from prose: a "label: value" line wins,
// then the first sentence containing one of the field's keywords, then the
// placeholder.
func heuristicReport(raw string, tier models.Tier) *models.NormalizedReport {
	report := models.NewNormalizedReport(tier)
	sentences := splitSentences(raw)
	lowered := make([]string, len(sentences))
	for i, s := range sentences {
		lowered[i] = strings.ToLower(s)
	}

	for _, f := range fieldTable {
		if m := labelPatterns[f.name].FindStringSubmatch(raw); len(m) > 1 {
			assignField(report, f.name, strings.TrimSpace(m[1]))
			continue
		}
		if s := firstSentenceWith(sentences, lowered, f.keywords); s != "" {
			assignField(report, f.name, s)
		}
	}
	return report
}

func splitSentences(raw string) []string {
	parts := sentenceSplitPattern.Split(raw, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstSentenceWith(sentences, lowered []string, keywords []string) string {
	for i := range sentences {
		for _, kw := range keywords {
			if strings.Contains(lowered[i], kw) {
				return sentences[i]
			}
		}
	}
	return ""
}

// degradedReport is the last line of defense: a complete report whose
// narrative explains that analysis failed.
func degradedReport(tier models.Tier) *models.NormalizedReport {
	report := models.NewNormalizedReport(tier)
	report.Overview = "We encountered an error while analyzing your photographs and could not complete the appraisal."
	report.Conclusion = models.DefaultConclusion
	return report
}
