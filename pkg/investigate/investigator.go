// Package investigate combines report classification, recent repository
// changes, and an optional LLM pass into a triage finding.
package investigate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	providertypes "bugtriage/pkg/provider/types"
	"bugtriage/pkg/repo"
	"bugtriage/pkg/report"
	"bugtriage/pkg/triage"
)

const (
	DefaultTimeout      = 90 * time.Second
	DefaultAnalysisDays = 7
)

// ErrGitHubUnavailable is recorded against GitHub repositories when no
// commit source is configured.
var ErrGitHubUnavailable = errors.New("github lookups are not configured")

// Client is the subset of a provider client used for investigations.
type Client interface {
	CreateSession(ctx context.Context, title string) (string, error)
	Prompt(ctx context.Context, sessionID string, prompt string, model string, systemPrompt string) (providertypes.PromptResult, error)
}

// Finding is the outcome of investigating one report.
type Finding struct {
	ID        string
	ReportID  string
	Focus     triage.Focus
	Impact    triage.ImpactReport
	Analysis  string
	Fallback  bool
	Notes     []string
	Provider  string
	Model     string
	Usage     *providertypes.TokenUsage
	StartedAt time.Time
	Duration  time.Duration
}

type Option func(*Investigator)

func WithClient(client Client) Option {
	return func(i *Investigator) {
		i.client = client
	}
}

func WithCommitSource(source repo.CommitSource) Option {
	return func(i *Investigator) {
		i.commits = source
	}
}

func WithModel(model string) Option {
	return func(i *Investigator) {
		i.model = strings.TrimSpace(model)
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(i *Investigator) {
		if timeout > 0 {
			i.timeout = timeout
		}
	}
}

func WithAnalysisDays(days int) Option {
	return func(i *Investigator) {
		if days > 0 {
			i.days = days
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Investigator) {
		if now != nil {
			i.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Investigator) {
		if logger != nil {
			i.log = logger
		}
	}
}

// Investigator runs investigations. A nil client yields checklist-only
// findings; a nil commit source skips GitHub lookups.
type Investigator struct {
	client       Client
	commits      repo.CommitSource
	model        string
	systemPrompt string
	timeout      time.Duration
	days         int
	now          func() time.Time
	log          *slog.Logger
}

func New(opts ...Option) *Investigator {
	inv := &Investigator{
		timeout: DefaultTimeout,
		days:    DefaultAnalysisDays,
		now:     time.Now,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.log = inv.log.With("component", "investigate")

	if prompt, err := SystemPrompt(); err != nil {
		inv.log.Warn("System prompt unavailable", "error", err)
	} else {
		inv.systemPrompt = prompt
	}

	return inv
}

// Enabled reports whether a model backend is configured.
func (i *Investigator) Enabled() bool {
	return i.client != nil
}

// Investigate classifies r, ranks recent commits from the channel's
// repositories, and asks the model for an analysis. Provider and GitHub
// failures degrade the finding instead of failing it.
func (i *Investigator) Investigate(ctx context.Context, r report.BugReport, channelConfig *repo.ChannelConfig) (Finding, error) {
	if err := ctx.Err(); err != nil {
		return Finding{}, err
	}

	startedAt := i.now()
	finding := Finding{
		ID:        uuid.NewString(),
		ReportID:  r.ID,
		Focus:     triage.Classify(r),
		StartedAt: startedAt,
	}
	log := i.log.With("report_id", r.ID, "investigation_id", finding.ID)

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	if channelConfig != nil {
		since := startedAt.AddDate(0, 0, -i.days)
		var commits []repo.Commit
		for _, changes := range i.collect(ctx, channelConfig.Repositories, since) {
			if changes.Err != nil {
				finding.Notes = append(finding.Notes, fmt.Sprintf("%s: %v", changes.Repository.Name, changes.Err))
				continue
			}
			commits = append(commits, changes.Commits...)
		}
		finding.Impact = triage.ScoreCommits(commits, finding.Focus.Keywords)
	}

	if err := i.analyze(ctx, r, channelConfig, &finding); err != nil {
		log.Warn("Model analysis failed, using checklist", "error", err)
		finding.Notes = append(finding.Notes, "model analysis unavailable: "+err.Error())
	}
	if finding.Analysis == "" {
		finding.Analysis = fallbackAnalysis(finding.Focus, finding.Impact)
		finding.Fallback = true
	}

	finding.Duration = i.now().Sub(startedAt)
	log.Info("Investigation finished",
		"issue", finding.Focus.Primary,
		"fallback", finding.Fallback,
		"high_impact_commits", len(finding.Impact.High),
		"duration_ms", finding.Duration.Milliseconds(),
	)

	return finding, nil
}

func (i *Investigator) analyze(ctx context.Context, r report.BugReport, channelConfig *repo.ChannelConfig, finding *Finding) error {
	if i.client == nil {
		return nil
	}

	prompt, err := buildPrompt(r, finding.Focus, finding.Impact, channelConfig)
	if err != nil {
		return err
	}

	sessionID, err := i.client.CreateSession(ctx, "Investigate "+r.ID)
	if err != nil {
		return err
	}
	if closer, ok := i.client.(providertypes.SessionCloser); ok {
		defer closer.CloseSession(sessionID)
	}

	result, err := i.client.Prompt(ctx, sessionID, prompt, i.model, i.systemPrompt)
	if err != nil {
		return err
	}

	finding.Analysis = strings.TrimSpace(result.Text)
	finding.Provider = result.Metadata.Provider
	finding.Model = result.Metadata.Model
	finding.Usage = result.Metadata.Usage
	return nil
}
