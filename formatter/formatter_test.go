package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"appraisal-service/models"
)

func fullReport() *models.NormalizedReport {
	r := models.NewNormalizedReport(models.TierFull)
	r.Overview = "A Victorian silver teapot with repousse decoration."
	r.Identification.ObjectType = "teapot"
	r.Identification.Era = "Circa 1880"
	r.Features.Shape = "pear"
	r.Condition = "Minor denting near the spout."
	r.ValueIndicators = "Comparable pieces fetch 200-400 at auction."
	r.FollowUpQuestions = []string{"Is there a hallmark under the base?"}
	r.Conclusion = "A pleasant example, suitable for a general sale."
	return r
}

func TestRenderHTMLContainsAllSections(t *testing.T) {
	html := RenderHTML(fullReport(), nil)

	assert.Contains(t, html, "Full Appraisal")
	assert.Contains(t, html, "A Victorian silver teapot with repousse decoration.")
	assert.Contains(t, html, "Circa 1880")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "Minor denting near the spout.")
	assert.Contains(t, html, "Comparable pieces fetch 200-400 at auction.")
	assert.Contains(t, html, "Is there a hallmark under the base?")
	assert.Contains(t, html, "A pleasant example, suitable for a general sale.")
}

func TestRenderHTMLBasicTierOmitsFullSections(t *testing.T) {
	r := models.NewNormalizedReport(models.TierBasic)
	r.Overview = "A small vase."

	html := RenderHTML(r, nil)

	assert.Contains(t, html, "Basic Appraisal")
	assert.Contains(t, html, "A small vase.")
	assert.NotContains(t, html, "Provenance")
	assert.NotContains(t, html, "Value Indicators")
}

func TestRenderHTMLPreservesPlaceholders(t *testing.T) {
	html := RenderHTML(models.NewNormalizedReport(models.TierBasic), nil)

	assert.Contains(t, html, models.NotSpecified)
	assert.Contains(t, html, models.Unknown)
}

func TestRenderHTMLIncludesExpertSections(t *testing.T) {
	sections := []models.ExpertSection{
		{Pass: models.ExpertPassHistory, Title: "Historical Context", Content: "Teapots of this form emerged in the 1860s."},
	}

	html := RenderHTML(fullReport(), sections)

	assert.Contains(t, html, "Historical Context")
	assert.Contains(t, html, "Teapots of this form emerged in the 1860s.")
}

func TestRenderHTMLEscapesTableBreakingValues(t *testing.T) {
	r := models.NewNormalizedReport(models.TierBasic)
	r.Features.Shape = "oval | round"

	html := RenderHTML(r, nil)

	assert.Contains(t, html, "oval | round")
}
