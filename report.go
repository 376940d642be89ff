package cadre

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var reportMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// RenderMarkdown converts Markdown to HTML using the GFM dialect.
func RenderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := reportMarkdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PlanMarkdown renders a recruitment plan as a Markdown report: a summary,
// a stage table, and the channel list.
func PlanMarkdown(plan RecruitmentPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Recruitment Plan: %s\n\n", plan.Role)
	if plan.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", plan.Summary)
	}
	if plan.TargetCandidates > 0 {
		fmt.Fprintf(&b, "Target pipeline: %d candidates.\n\n", plan.TargetCandidates)
	}

	if len(plan.Stages) > 0 {
		b.WriteString("## Stages\n\n")
		b.WriteString("| Stage | Duration | Description |\n")
		b.WriteString("| --- | --- | --- |\n")
		for _, s := range plan.Stages {
			duration := "-"
			if s.DurationDays > 0 {
				duration = fmt.Sprintf("%dd", s.DurationDays)
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", s.Name, duration, s.Description)
		}
		b.WriteString("\n")
	}

	if len(plan.Channels) > 0 {
		b.WriteString("## Channels\n\n")
		for _, c := range plan.Channels {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	bulletSection(&b, "Risks", plan.Risks)
	bulletSection(&b, "Success Metrics", plan.Metrics)
	bulletSection(&b, "Resources", plan.Resources)
	return b.String()
}

func bulletSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}
