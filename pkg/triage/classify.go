// Package triage classifies bug reports and ranks recent commits by how
// likely they are to be related.
package triage

import (
	"strings"

	"bugtriage/pkg/report"
)

type IssueType string

const (
	IssuePerformance   IssueType = "performance"
	IssueMobile        IssueType = "mobile"
	IssueSecurity      IssueType = "security"
	IssueFunctionality IssueType = "functionality"
	IssueUIUX          IssueType = "ui_ux"
	IssueCompatibility IssueType = "compatibility"
	IssueDatabase      IssueType = "database"
	IssueCaching       IssueType = "caching"
	IssueLoading       IssueType = "loading"
	IssueResponsive    IssueType = "responsive"
)

type issuePattern struct {
	issue    IssueType
	keywords []string
	focused  []string
}

// issuePatterns is ordered; earlier entries win score ties.
var issuePatterns = []issuePattern{
	{
		issue:    IssuePerformance,
		keywords: []string{"slow", "performance", "speed", "loading", "load time", "slowdown", "lag", "delay", "timeout", "core web vitals", "lighthouse", "page speed", "optimization", "bottleneck"},
		focused:  []string{"query", "database", "cache", "optimization", "performance", "slow", "speed", "loading", "assets", "images", "scripts", "css", "minification"},
	},
	{
		issue:    IssueMobile,
		keywords: []string{"mobile", "phone", "tablet", "responsive", "viewport", "mobile device", "mobile browser", "touch", "swipe", "mobile load", "mobile performance", "mobile slow"},
		focused:  []string{"mobile", "responsive", "viewport", "media query", "breakpoint", "touch", "swipe", "height", "width", "layout", "cards"},
	},
	{
		issue:    IssueSecurity,
		keywords: []string{"security", "vulnerability", "hack", "breach", "malware", "virus", "attack", "unauthorized", "permission", "access", "login", "password", "authentication"},
		focused:  []string{"eval", "exec", "sql injection", "xss", "csrf", "authentication", "authorization", "permission", "auth", "login", "sanitization", "escaping"},
	},
	{
		issue:    IssueFunctionality,
		keywords: []string{"broken", "not working", "error", "crash", "bug", "issue", "fails", "doesn't work", "broken link", "404", "500 error", "white screen", "blank page"},
		focused:  []string{"error", "exception", "crash", "broken", "fix", "fails", "bug", "issue", "404", "500", "white screen"},
	},
	{
		issue:    IssueUIUX,
		keywords: []string{"design", "layout", "appearance", "looks", "visual", "styling", "css", "frontend", "user interface", "ui", "user experience", "ux", "design issue"},
		focused:  []string{"css", "styling", "style", "layout", "design", "appearance", "frontend", "visual"},
	},
	{
		issue:    IssueCompatibility,
		keywords: []string{"browser", "chrome", "firefox", "safari", "edge", "compatibility", "works in", "doesn't work in", "version", "update", "upgrade"},
		focused:  []string{"browser", "chrome", "firefox", "safari", "edge", "version", "compatibility", "polyfill"},
	},
	{
		issue:    IssueDatabase,
		keywords: []string{"database", "query", "sql", "mysql", "postgresql", "data", "content", "posts", "pages", "admin", "backend", "server", "api"},
		focused:  []string{"database", "query", "sql", "mysql", "migration", "connection", "data", "model", "schema"},
	},
	{
		issue:    IssueCaching,
		keywords: []string{"cache", "caching", "cdn", "static", "assets", "images", "files", "resources", "minification"},
		focused:  []string{"cache", "caching", "cdn", "static", "assets", "minification", "compression", "invalidation"},
	},
	{
		issue:    IssueLoading,
		keywords: []string{"loading", "load", "load time", "page load", "initial load", "first load", "subsequent load", "loading speed", "load performance"},
		focused:  []string{"loading", "load", "lazy", "preload", "bundle", "spinner"},
	},
	{
		issue:    IssueResponsive,
		keywords: []string{"responsive", "responsive design", "breakpoint", "media query", "mobile first", "adaptive", "flexible", "fluid", "grid"},
		focused:  []string{"responsive", "media query", "breakpoint", "adaptive", "flex", "fluid", "grid", "viewport"},
	},
}

// Focus is the classification of one report.
type Focus struct {
	Primary    IssueType
	Confidence float64
	Related    []IssueType
	Keywords   []string
}

// Classify scores every issue type against the report text. The type with
// the most keyword hits wins; with no hits the report is a functionality issue.
func Classify(r report.BugReport) Focus {
	text := strings.ToLower(strings.Join([]string{r.Summary(), r.Pages(), r.Steps(), r.Components()}, " "))
	return classifyText(text)
}

func classifyText(text string) Focus {
	var (
		best      *issuePattern
		bestScore int
		related   []IssueType
	)
	for i := range issuePatterns {
		pattern := &issuePatterns[i]
		score := countMatches(text, pattern.keywords)
		if score > 0 {
			related = append(related, pattern.issue)
		}
		if score > bestScore {
			best, bestScore = pattern, score
		}
	}

	if best == nil {
		fallback := patternFor(IssueFunctionality)
		return Focus{Primary: IssueFunctionality, Keywords: append([]string(nil), fallback.focused...)}
	}

	return Focus{
		Primary:    best.issue,
		Confidence: float64(bestScore) / float64(len(best.keywords)),
		Related:    related,
		Keywords:   append([]string(nil), best.focused...),
	}
}

func patternFor(issue IssueType) issuePattern {
	for _, pattern := range issuePatterns {
		if pattern.issue == issue {
			return pattern
		}
	}
	return issuePattern{issue: issue}
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			n++
		}
	}
	return n
}

// Label renders the issue type for humans.
func (t IssueType) Label() string {
	switch t {
	case IssueUIUX:
		return "UI/UX"
	default:
		s := string(t)
		if s == "" {
			return ""
		}
		return strings.ToUpper(s[:1]) + s[1:]
	}
}
