// Package repo describes source repositories attached to a chat channel and
// fetches their recent history for change analysis.
package repo

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Type string

const (
	TypeGitHub    Type = "github"
	TypeAzure     Type = "azure"
	TypeBitbucket Type = "bitbucket"
)

func ParseType(input string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(input))) {
	case TypeGitHub:
		return TypeGitHub, nil
	case TypeAzure:
		return TypeAzure, nil
	case TypeBitbucket:
		return TypeBitbucket, nil
	default:
		return "", fmt.Errorf("unknown repository type %q (expected github, azure, or bitbucket)", input)
	}
}

const DefaultBranch = "main"

// Repository is one configured source repository. Credentials are not
// stored per repository; the GitHub token comes from configuration.
type Repository struct {
	Name           string   `json:"name"`
	Type           Type     `json:"type"`
	URL            string   `json:"url"`
	Branch         string   `json:"branch"`
	Paths          []string `json:"paths,omitempty"`
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`
}

// ChannelConfig maps a chat channel to the project and repositories its
// bug reports concern.
type ChannelConfig struct {
	ChannelID    string
	ChannelName  string
	Project      string
	Repositories []Repository
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Commit is a recent change with the files it touched.
type Commit struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
	URL     string
	Files   []FileChange
}

// Title returns the first line of the commit message.
func (c Commit) Title() string {
	title, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return strings.TrimSpace(title)
}

type FileChange struct {
	Filename  string
	Status    string
	Additions int
	Deletions int
	Changes   int
}

// CommitSource lists recent commits for a repository.
type CommitSource interface {
	RecentCommits(ctx context.Context, repository Repository, since time.Time) ([]Commit, error)
}
