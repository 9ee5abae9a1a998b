package investigate

import (
	"context"
	"fmt"
	"time"

	"bugtriage/pkg/repo"
)

// RepoChanges is the recent history of one configured repository. Err is set
// when the repository could not be read.
type RepoChanges struct {
	Repository repo.Repository
	Commits    []repo.Commit
	Err        error
}

// ChangeSummary lists recent commits across a channel's repositories.
type ChangeSummary struct {
	Project string
	Days    int
	Since   time.Time
	Repos   []RepoChanges
}

// TotalCommits counts commits across all readable repositories.
func (s ChangeSummary) TotalCommits() int {
	n := 0
	for _, changes := range s.Repos {
		n += len(changes.Commits)
	}
	return n
}

// AnalyzeChanges reads commits from the last days days for every repository
// configured on the channel. days <= 0 uses the investigator default.
func (i *Investigator) AnalyzeChanges(ctx context.Context, channelConfig repo.ChannelConfig, days int) (ChangeSummary, error) {
	if err := ctx.Err(); err != nil {
		return ChangeSummary{}, err
	}
	if days <= 0 {
		days = i.days
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	since := i.now().AddDate(0, 0, -days)
	summary := ChangeSummary{
		Project: channelConfig.Project,
		Days:    days,
		Since:   since,
		Repos:   i.collect(ctx, channelConfig.Repositories, since),
	}

	i.log.Info("Change analysis finished",
		"channel_id", channelConfig.ChannelID,
		"repositories", len(summary.Repos),
		"commits", summary.TotalCommits(),
	)

	return summary, nil
}

func (i *Investigator) collect(ctx context.Context, repositories []repo.Repository, since time.Time) []RepoChanges {
	out := make([]RepoChanges, 0, len(repositories))
	for _, repository := range repositories {
		changes := RepoChanges{Repository: repository}

		switch {
		case repository.Type != repo.TypeGitHub:
			changes.Err = fmt.Errorf("%s repositories are not yet supported", repository.Type)
		case i.commits == nil:
			changes.Err = ErrGitHubUnavailable
		default:
			commits, err := i.commits.RecentCommits(ctx, repository, since)
			if err != nil {
				i.log.Warn("Reading recent commits failed", "repo", repository.Name, "error", err)
				changes.Err = err
			}
			changes.Commits = commits
		}

		out = append(out, changes)
	}
	return out
}
