package investigate

import (
	"fmt"
	"strconv"
	"strings"

	providertypes "bugtriage/pkg/provider/types"
	"bugtriage/pkg/triage"
)

const summaryCommitLimit = 5

// FormatFinding renders a finding as Slack mrkdwn.
func FormatFinding(f Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 *Investigation for %s*\n", f.ReportID)
	fmt.Fprintf(&b, "*Issue type:* %s (%.0f%% confidence)", f.Focus.Primary.Label(), f.Focus.Confidence*100)

	if related := relatedLabels(f.Focus); related != "" {
		fmt.Fprintf(&b, "\n*Also matches:* %s", related)
	}

	if total := len(f.Impact.High) + len(f.Impact.Medium) + len(f.Impact.Low); total > 0 {
		fmt.Fprintf(&b, "\n*Recent commits:* %d (%d high, %d medium impact)", total, len(f.Impact.High), len(f.Impact.Medium))
	}

	b.WriteString("\n\n")
	b.WriteString(f.Analysis)
	if by := (providertypes.PromptMetadata{Provider: f.Provider, Model: f.Model}).Attribution(); by != "" && !f.Fallback {
		fmt.Fprintf(&b, "\n\n_Analysis by %s_", by)
	}

	for _, note := range f.Notes {
		fmt.Fprintf(&b, "\n_⚠️ %s_", note)
	}

	return b.String()
}

// FormatChanges renders a change summary as Slack mrkdwn.
func FormatChanges(s ChangeSummary) string {
	var b strings.Builder
	title := "Recent changes"
	if s.Project != "" {
		title += " for " + s.Project
	}
	fmt.Fprintf(&b, "📊 *%s* (last %d days)", title, s.Days)

	if len(s.Repos) == 0 {
		b.WriteString("\nNo repositories are configured for this channel.")
		return b.String()
	}

	for _, changes := range s.Repos {
		fmt.Fprintf(&b, "\n\n*%s* (%s)", changes.Repository.Name, changes.Repository.Type)
		if changes.Err != nil {
			fmt.Fprintf(&b, "\n_%v_", changes.Err)
			continue
		}
		if len(changes.Commits) == 0 {
			b.WriteString("\nNo commits in this period.")
			continue
		}

		fmt.Fprintf(&b, "\n%d commits", len(changes.Commits))
		for i, commit := range changes.Commits {
			if i == summaryCommitLimit {
				fmt.Fprintf(&b, "\n…and %d more", len(changes.Commits)-summaryCommitLimit)
				break
			}
			fmt.Fprintf(&b, "\n• `%s` %s", commit.SHA, commit.Title())
			if commit.Author != "" {
				fmt.Fprintf(&b, " (%s)", commit.Author)
			}
		}
	}

	return b.String()
}

// UsageMetadata flattens token usage into outbound message metadata.
func UsageMetadata(usage *providertypes.TokenUsage) map[string]string {
	if usage == nil || usage.IsZero() {
		return nil
	}

	return map[string]string{
		"usage_input_tokens":          strconv.FormatInt(usage.InputTokens, 10),
		"usage_output_tokens":         strconv.FormatInt(usage.OutputTokens, 10),
		"usage_total_tokens":          strconv.FormatInt(usage.TotalTokens, 10),
		"usage_reasoning_tokens":      strconv.FormatInt(usage.ReasoningTokens, 10),
		"usage_cache_creation_tokens": strconv.FormatInt(usage.CacheCreationTokens, 10),
		"usage_cache_read_tokens":     strconv.FormatInt(usage.CacheReadTokens, 10),
	}
}

func relatedLabels(focus triage.Focus) string {
	labels := make([]string, 0, len(focus.Related))
	for _, issue := range focus.Related {
		if issue != focus.Primary {
			labels = append(labels, issue.Label())
		}
	}
	return strings.Join(labels, ", ")
}
