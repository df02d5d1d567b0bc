// Package export assembles the approved script stages into a single
// document and renders it for delivery.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// AssembleMarkdown joins the approved stages, in order, into one markdown
// document. Stages that are not approved are excluded.
func AssembleMarkdown(stages []models.ScriptStage) string {
	var sections []string
	for _, stage := range stages {
		if stage.Status != models.StageStatusApproved {
			continue
		}
		sections = append(sections, fmt.Sprintf("## %s\n\n%s", stage.Title, stage.Content))
	}
	return strings.Join(sections, "\n\n")
}

// RenderHTML converts the assembled markdown into HTML.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}
