package investigate

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"bugtriage/pkg/repo"
	"bugtriage/pkg/report"
	"bugtriage/pkg/triage"
)

const (
	systemTemplate        = "system"
	investigationTemplate = "investigation"
	promptCommitLimit     = 8
)

//go:embed templates/*.md
var templatesFS embed.FS

var investigationPrompt = template.Must(
	template.New(investigationTemplate+".md").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templatesFS, templatePath(investigationTemplate)),
)

// SystemPrompt returns the instructions sent ahead of every investigation.
func SystemPrompt() (string, error) {
	content, err := templatesFS.ReadFile(templatePath(systemTemplate))
	if err != nil {
		return "", fmt.Errorf("load %s prompt template: %w", systemTemplate, err)
	}

	prompt := strings.TrimSpace(string(content))
	if prompt == "" {
		return "", fmt.Errorf("prompt template %q is empty", systemTemplate)
	}

	return prompt, nil
}

type promptData struct {
	Report            report.BugReport
	Focus             triage.Focus
	ConfidencePercent float64
	Related           string
	Project           string
	Commits           []triage.ScoredCommit
}

func buildPrompt(r report.BugReport, focus triage.Focus, impact triage.ImpactReport, channelConfig *repo.ChannelConfig) (string, error) {
	data := promptData{
		Report:            r,
		Focus:             focus,
		ConfidencePercent: focus.Confidence * 100,
		Commits:           impact.Top(promptCommitLimit),
	}

	data.Related = relatedLabels(focus)
	if channelConfig != nil {
		data.Project = channelConfig.Project
	}

	var buf bytes.Buffer
	if err := investigationPrompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render investigation prompt: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}

func templatePath(templateName string) string {
	return "templates/" + strings.TrimSpace(templateName) + ".md"
}
