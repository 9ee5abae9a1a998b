package report

import (
	"sort"
	"strings"
)

var (
	highPriorityKeywords   = []string{"critical", "urgent", "broken", "down", "error", "crash", "security"}
	mediumPriorityKeywords = []string{"slow", "performance", "issue", "problem", "bug"}
)

// DeterminePriority applies the keyword heuristic over every answer.
func DeterminePriority(answers map[string]string) Priority {
	names := make([]string, 0, len(answers))
	for name := range answers {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, answers[name])
	}
	text := strings.ToLower(strings.Join(parts, " "))

	if containsAny(text, highPriorityKeywords) {
		return PriorityHigh
	}
	if containsAny(text, mediumPriorityKeywords) {
		return PriorityMedium
	}

	return PriorityLow
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
