package investigate

import (
	"fmt"
	"strings"

	"bugtriage/pkg/triage"
)

const fallbackSuspectLimit = 3

var checklists = map[triage.IssueType][]string{
	triage.IssuePerformance: {
		"Profile the affected page and compare load times against the last release",
		"Look for new or changed database queries in the suspect commits",
		"Check that caching still applies to the affected routes",
		"Review image and script sizes added recently",
	},
	triage.IssueMobile: {
		"Reproduce on a real phone and in device emulation at common widths",
		"Check the viewport meta tag and media queries touched recently",
		"Test touch targets and gestures on the affected elements",
		"Compare mobile and desktop asset payloads",
	},
	triage.IssueSecurity: {
		"Confirm whether the behaviour exposes data or bypasses authentication",
		"Review input validation and output escaping in the suspect changes",
		"Check permission checks on the affected endpoints",
		"Rotate any credentials that may have been exposed",
	},
	triage.IssueFunctionality: {
		"Reproduce with the reported steps and capture server and console errors",
		"Review error handling around the failing action",
		"Check API responses for the affected pages",
		"Bisect the suspect commits if the failure is new",
	},
	triage.IssueUIUX: {
		"Compare the page against the design reference",
		"Look for CSS changes that affect the reported elements",
		"Check for layout shifts caused by late-loading content",
	},
	triage.IssueCompatibility: {
		"Reproduce in each browser named in the report and note versions",
		"Check for newly used browser features without fallbacks",
		"Review recent dependency or build target upgrades",
	},
	triage.IssueDatabase: {
		"Check database logs for errors or slow queries at the reported time",
		"Review migrations and schema changes in the suspect commits",
		"Verify connection settings and pool limits",
	},
	triage.IssueCaching: {
		"Purge the cache for the affected pages and retest",
		"Check cache invalidation for content touched by recent changes",
		"Verify CDN rules and cache headers on static assets",
	},
	triage.IssueLoading: {
		"Record a network waterfall for the affected page",
		"Check for render-blocking scripts or styles added recently",
		"Verify lazy loading and preload hints on large resources",
	},
	triage.IssueResponsive: {
		"Test the layout at each breakpoint in use",
		"Review media queries and grid or flex rules changed recently",
		"Check fixed widths and heights on the affected components",
	},
}

// Checklist returns deterministic next steps for an issue type, used when no
// model analysis is available.
func Checklist(issue triage.IssueType) []string {
	steps, ok := checklists[issue]
	if !ok {
		steps = checklists[triage.IssueFunctionality]
	}
	return append([]string(nil), steps...)
}

func fallbackAnalysis(focus triage.Focus, impact triage.ImpactReport) string {
	var b strings.Builder
	b.WriteString("*Next steps*")
	for i, step := range Checklist(focus.Primary) {
		fmt.Fprintf(&b, "\n%d. %s", i+1, step)
	}

	suspects := impact.High
	if len(suspects) > fallbackSuspectLimit {
		suspects = suspects[:fallbackSuspectLimit]
	}
	if len(suspects) > 0 {
		b.WriteString("\n\n*Suspect changes*")
		for _, scored := range suspects {
			fmt.Fprintf(&b, "\n• `%s` %s", scored.Commit.SHA, scored.Commit.Title())
		}
	}

	return b.String()
}
