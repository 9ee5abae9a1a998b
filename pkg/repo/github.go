package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"bugtriage/pkg/config"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// ErrUnsupportedURL is returned for repository URLs that cannot be mapped
// to an owner and name.
var ErrUnsupportedURL = errors.New("unsupported repository url")

const defaultCommitLimit = 10

var githubURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/]+)/([^/]+?)(?:\.git)?/?$`),
	regexp.MustCompile(`^git@github\.com:([^/]+)/([^/]+?)(?:\.git)?$`),
}

// ParseGitHubURL extracts owner and repository name from https or ssh URLs.
func ParseGitHubURL(raw string) (string, string, error) {
	trimmed := strings.TrimSpace(raw)
	for _, pattern := range githubURLPatterns {
		if match := pattern.FindStringSubmatch(trimmed); match != nil {
			return match[1], match[2], nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupportedURL, raw)
}

// GitHubCommits reads recent commits through the GitHub REST API.
type GitHubCommits struct {
	client *gh.Client
	limit  int
	log    *slog.Logger
}

var _ CommitSource = (*GitHubCommits)(nil)

// NewGitHubCommits builds a client from configuration. An empty token
// yields an unauthenticated client subject to public rate limits.
func NewGitHubCommits(cfg config.GitHubConfig, log *slog.Logger) (*GitHubCommits, error) {
	if log == nil {
		log = slog.Default()
	}

	client := gh.NewClient(nil)
	if token := strings.TrimSpace(cfg.Token); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = gh.NewClient(oauth2.NewClient(context.Background(), ts))
	}

	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github.base_url: %w", err)
		}
		client.BaseURL = parsed
	}

	return &GitHubCommits{
		client: client,
		limit:  defaultCommitLimit,
		log:    log.With("component", "repo.github"),
	}, nil
}

// RecentCommits returns up to ten commits on the repository branch since
// the given time, newest first. File details are best effort.
func (g *GitHubCommits) RecentCommits(ctx context.Context, repository Repository, since time.Time) ([]Commit, error) {
	owner, name, err := ParseGitHubURL(repository.URL)
	if err != nil {
		return nil, err
	}

	branch := strings.TrimSpace(repository.Branch)
	if branch == "" {
		branch = DefaultBranch
	}

	listed, resp, err := g.client.Repositories.ListCommits(ctx, owner, name, &gh.CommitsListOptions{
		SHA:         branch,
		Since:       since,
		ListOptions: gh.ListOptions{PerPage: g.limit},
	})
	if err != nil {
		return nil, githubError("list commits", resp, err)
	}
	if len(listed) > g.limit {
		listed = listed[:g.limit]
	}

	commits := make([]Commit, 0, len(listed))
	for _, listedCommit := range listed {
		commit := fromRepositoryCommit(listedCommit)

		detail, detailResp, err := g.client.Repositories.GetCommit(ctx, owner, name, listedCommit.GetSHA(), nil)
		if err != nil {
			g.log.Debug("Skipping commit file details", "repo", owner+"/"+name, "sha", commit.SHA, "error", githubError("get commit", detailResp, err))
		} else {
			commit.Files = fileChanges(detail.Files)
		}

		commits = append(commits, commit)
	}

	return commits, nil
}

func fromRepositoryCommit(c *gh.RepositoryCommit) Commit {
	sha := c.GetSHA()
	if len(sha) > 8 {
		sha = sha[:8]
	}

	author := c.GetCommit().GetAuthor()
	return Commit{
		SHA:     sha,
		Message: c.GetCommit().GetMessage(),
		Author:  author.GetName(),
		Date:    author.GetDate().Time,
		URL:     c.GetHTMLURL(),
	}
}

func fileChanges(files []*gh.CommitFile) []FileChange {
	changes := make([]FileChange, 0, len(files))
	for _, file := range files {
		changes = append(changes, FileChange{
			Filename:  file.GetFilename(),
			Status:    file.GetStatus(),
			Additions: file.GetAdditions(),
			Deletions: file.GetDeletions(),
			Changes:   file.GetChanges(),
		})
	}
	return changes
}

func githubError(operation string, resp *gh.Response, err error) error {
	if resp != nil && resp.StatusCode > 0 {
		return fmt.Errorf("github %s: status %d: %w", operation, resp.StatusCode, err)
	}
	return fmt.Errorf("github %s: %w", operation, err)
}
