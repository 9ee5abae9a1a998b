package triage

import (
	"slices"
	"sort"
	"strings"

	"bugtriage/pkg/repo"
)

type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

var fileCategories = []struct {
	category   string
	extensions []string
}{
	{category: "frontend", extensions: []string{".js", ".jsx", ".ts", ".tsx", ".css", ".scss"}},
	{category: "backend", extensions: []string{".php", ".py", ".java", ".rb", ".go"}},
	{category: "template", extensions: []string{".html", ".htm", ".xml"}},
}

// ScoredCommit is a commit with its relevance to a report.
type ScoredCommit struct {
	Commit         repo.Commit
	Score          int
	Impact         Impact
	KeywordMatches []string
	RelevantFiles  []string
	FileCategories []string
}

// ImpactReport groups scored commits by impact, highest score first within
// each group.
type ImpactReport struct {
	High          []ScoredCommit
	Medium        []ScoredCommit
	Low           []ScoredCommit
	AffectedFiles []string
	TotalChanges  int
}

// Top returns up to n commits, high impact before medium before low.
func (r ImpactReport) Top(n int) []ScoredCommit {
	all := slices.Concat(r.High, r.Medium, r.Low)
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// ScoreCommits rates commits against bug keywords. Per file: +1 for a
// frontend, backend, or template extension, +2 when a keyword appears in the
// filename, +1 above 50 changed lines, +2 above 10 deletions. Per commit:
// +1 for each keyword in the message. Scores of 3 or more are high impact,
// 1 or more medium.
func ScoreCommits(commits []repo.Commit, keywords []string) ImpactReport {
	var out ImpactReport
	affected := map[string]struct{}{}

	for _, commit := range commits {
		scored := scoreCommit(commit, keywords)
		switch scored.Impact {
		case ImpactHigh:
			out.High = append(out.High, scored)
		case ImpactMedium:
			out.Medium = append(out.Medium, scored)
		default:
			out.Low = append(out.Low, scored)
		}

		for _, file := range commit.Files {
			affected[file.Filename] = struct{}{}
		}
		out.TotalChanges += len(commit.Files)
	}

	for _, group := range [][]ScoredCommit{out.High, out.Medium, out.Low} {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Score > group[j].Score })
	}

	for file := range affected {
		out.AffectedFiles = append(out.AffectedFiles, file)
	}
	sort.Strings(out.AffectedFiles)

	return out
}

func scoreCommit(commit repo.Commit, keywords []string) ScoredCommit {
	scored := ScoredCommit{Commit: commit}

	message := strings.ToLower(commit.Message)
	for _, keyword := range keywords {
		if strings.Contains(message, strings.ToLower(keyword)) {
			scored.KeywordMatches = append(scored.KeywordMatches, keyword)
		}
	}
	scored.Score = len(scored.KeywordMatches)

	categories := map[string]struct{}{}
	for _, file := range commit.Files {
		name := strings.ToLower(file.Filename)

		if category := categorize(name); category != "" {
			scored.Score++
			categories[category] = struct{}{}
		}
		for _, keyword := range keywords {
			if strings.Contains(name, strings.ToLower(keyword)) {
				scored.Score += 2
				scored.RelevantFiles = append(scored.RelevantFiles, file.Filename)
				break
			}
		}
		if file.Changes > 50 {
			scored.Score++
		}
		if file.Deletions > 10 {
			scored.Score += 2
		}
	}

	for category := range categories {
		scored.FileCategories = append(scored.FileCategories, category)
	}
	sort.Strings(scored.FileCategories)

	switch {
	case scored.Score >= 3:
		scored.Impact = ImpactHigh
	case scored.Score >= 1:
		scored.Impact = ImpactMedium
	default:
		scored.Impact = ImpactLow
	}

	return scored
}

func categorize(filename string) string {
	for _, group := range fileCategories {
		for _, ext := range group.extensions {
			if strings.HasSuffix(filename, ext) {
				return group.category
			}
		}
	}
	return ""
}
