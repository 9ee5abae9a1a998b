// Package conversation drives a reporter through the bug report questionnaire.
package conversation

import (
	"slices"
	"strings"

	"bugtriage/pkg/report"
)

// Field is one question of the scripted report form.
type Field struct {
	Name     string
	Prompt   string
	Reminder string
	Required bool
}

var fields = []Field{
	{
		Name:     report.FieldSummary,
		Prompt:   "What's a *brief summary* of the issue?",
		Reminder: "I'm waiting for your *brief summary* of the issue. Please provide a summary of what's happening.",
		Required: true,
	},
	{
		Name:     report.FieldPages,
		Prompt:   "Which *page(s)* are affected? (Please paste full URLs)",
		Reminder: "I'm waiting for the *affected page(s)*. Please paste the full URLs of the pages that are affected.",
		Required: true,
	},
	{
		Name:     report.FieldSteps,
		Prompt:   "How can we *reproduce* the issue?",
		Reminder: "I'm waiting for the *steps to reproduce* the issue. Please describe how to reproduce this problem.",
		Required: true,
	},
	{
		Name:     report.FieldComponents,
		Prompt:   "Are there any *templates or components* involved? _(Optional)_",
		Reminder: "I'm waiting for any *templates or components* involved. If none, just say 'none' or 'N/A'.",
		Required: false,
	},
}

// Fields returns the form definition in question order.
func Fields() []Field {
	return slices.Clone(fields)
}

func fieldByName(name string) (Field, bool) {
	for _, field := range fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

var skipAnswers = []string{"none", "n/a", "na", "-", "skip"}

// normalizeAnswer trims input and maps skip words to empty for optional fields.
func normalizeAnswer(field Field, text string) string {
	answer := strings.TrimSpace(text)
	if field.Required {
		return answer
	}
	if slices.Contains(skipAnswers, strings.ToLower(answer)) {
		return ""
	}
	return answer
}
