package report

import (
	"fmt"
	"strings"
)

const timestampLayout = "2006-01-02 15:04 UTC"

type section struct {
	label    string
	field    string
	optional bool
}

var sections = []section{
	{label: "Summary", field: FieldSummary},
	{label: "Affected Pages", field: FieldPages},
	{label: "Steps to Reproduce", field: FieldSteps},
	{label: "Components", field: FieldComponents, optional: true},
}

// Format renders r as Slack mrkdwn. Output depends only on r, so equal
// reports always render byte-identically.
func Format(r BugReport) string {
	var b strings.Builder

	title := "*Bug Report*"
	if id := strings.TrimSpace(r.ID); id != "" {
		title = fmt.Sprintf("*Bug Report %s*", id)
	}
	b.WriteString(title)

	var meta []string
	if !r.CreatedAt.IsZero() {
		meta = append(meta, "reported "+r.CreatedAt.UTC().Format(timestampLayout))
	}
	if r.Priority != "" {
		meta = append(meta, "priority "+string(r.Priority))
	}
	if len(meta) > 0 {
		b.WriteString("\n_")
		b.WriteString(strings.Join(meta, " · "))
		b.WriteString("_")
	}

	for _, s := range sections {
		value := strings.TrimSpace(r.Answer(s.field))
		if value == "" && s.optional {
			continue
		}
		b.WriteString("\n\n*")
		b.WriteString(s.label)
		b.WriteString(":*\n")
		b.WriteString(value)
	}

	return b.String()
}

// Line renders a one-line listing entry.
func Line(r BugReport) string {
	summary := Truncate(strings.Join(strings.Fields(r.Summary()), " "), 80)
	return fmt.Sprintf("%s [%s/%s] %s", r.ID, r.Priority, r.Status, summary)
}

// Truncate shortens s to at most limit runes, ending in "..." when cut.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
