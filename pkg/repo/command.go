package repo

import (
	"fmt"
	"path"
	"strings"
)

const configUsage = "config repo <project> <github|azure|bitbucket> <url> [branch]"

// ParseConfigCommand parses the arguments that follow "config repo".
func ParseConfigCommand(args string) (string, Repository, error) {
	parts := strings.Fields(args)
	if len(parts) < 3 || len(parts) > 4 {
		return "", Repository{}, fmt.Errorf("usage: %s", configUsage)
	}

	project := parts[0]
	repoType, err := ParseType(parts[1])
	if err != nil {
		return "", Repository{}, err
	}

	url := slackLink(parts[2])
	if repoType == TypeGitHub {
		if _, _, err := ParseGitHubURL(url); err != nil {
			return "", Repository{}, err
		}
	}

	branch := DefaultBranch
	if len(parts) == 4 {
		branch = parts[3]
	}

	return project, Repository{
		Name:   nameFromURL(url),
		Type:   repoType,
		URL:    url,
		Branch: branch,
	}, nil
}

// nameFromURL derives a short repository name from its URL.
func nameFromURL(raw string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(raw, "/"), ".git")
	if i := strings.LastIndex(trimmed, ":"); i >= 0 && !strings.Contains(trimmed, "://") {
		trimmed = trimmed[i+1:]
	}
	name := path.Base(trimmed)
	if name == "." || name == "/" {
		return raw
	}
	return name
}

// slackLink unwraps Slack's <url> and <url|label> link markup.
func slackLink(raw string) string {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
	link, _, _ := strings.Cut(trimmed, "|")
	return link
}
