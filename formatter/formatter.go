// Package formatter renders normalized appraisal reports as HTML. Rendering
// is presentation only: field values pass through unmodified.
package formatter

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	mdparser "github.com/gomarkdown/markdown/parser"

	"appraisal-service/models"
)

var tierTitles = map[models.Tier]string{
	models.TierBasic:   "Basic Appraisal",
	models.TierInitial: "Initial Appraisal",
	models.TierFull:    "Full Appraisal",
}

// RenderHTML renders a report (plus any expert sections) to an HTML fragment.
func RenderHTML(report *models.NormalizedReport, sections []models.ExpertSection) string {
	md := buildMarkdown(report, sections)

	p := mdparser.NewWithExtensions(mdparser.CommonExtensions | mdparser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return string(markdown.ToHTML([]byte(md), p, renderer))
}

// buildMarkdown lays the report out as a markdown document. Pipe characters in
// values are escaped so the feature table cannot be broken by model output.
func buildMarkdown(report *models.NormalizedReport, sections []models.ExpertSection) string {
	var b strings.Builder

	title, ok := tierTitles[report.Tier]
	if !ok {
		title = tierTitles[models.TierFull]
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	fmt.Fprintf(&b, "## Overview\n\n%s\n\n", report.Overview)

	b.WriteString("## Identification\n\n")
	fmt.Fprintf(&b, "- **Object type:** %s\n", report.Identification.ObjectType)
	fmt.Fprintf(&b, "- **Era:** %s\n", report.Identification.Era)
	fmt.Fprintf(&b, "- **Materials:** %s\n\n", report.Identification.Materials)

	b.WriteString("## Features\n\n")
	b.WriteString("| Characteristic | Observation |\n")
	b.WriteString("| --- | --- |\n")
	writeRow(&b, "Shape", report.Features.Shape)
	writeRow(&b, "Size", report.Features.Size)
	writeRow(&b, "Color", report.Features.Color)
	writeRow(&b, "Materials", report.Features.Materials)
	writeRow(&b, "Notable features", report.Features.NotableFeatures)
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Condition\n\n%s\n\n", report.Condition)
	fmt.Fprintf(&b, "## Regulations\n\n%s\n\n", report.Regulations)

	if report.Tier == models.TierFull {
		fmt.Fprintf(&b, "## Provenance\n\n%s\n\n", report.Provenance)
		fmt.Fprintf(&b, "## Stylistic Assessment\n\n%s\n\n", report.StylisticAssessment)
		fmt.Fprintf(&b, "## Attribution\n\n%s\n\n", report.Attribution)
		fmt.Fprintf(&b, "## Value Indicators\n\n%s\n\n", report.ValueIndicators)
		if len(report.FollowUpQuestions) > 0 {
			b.WriteString("## Follow-up Questions\n\n")
			for _, q := range report.FollowUpQuestions {
				fmt.Fprintf(&b, "- %s\n", q)
			}
			b.WriteString("\n")
		}
	}

	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", s.Title, s.Content)
	}

	fmt.Fprintf(&b, "## Conclusion\n\n%s\n", report.Conclusion)
	return b.String()
}

func writeRow(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", label, strings.ReplaceAll(value, "|", "\\|"))
}
