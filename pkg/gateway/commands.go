package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"bugtriage/pkg/bus"
	"bugtriage/pkg/repo"
	"bugtriage/pkg/report"
	"bugtriage/pkg/storage"
)

const (
	cmdHelp           = "help"
	cmdStart          = "report"
	cmdListReports    = "list reports"
	cmdShow           = "show"
	cmdSearch         = "search"
	cmdStats          = "stats"
	cmdStatus         = "status"
	cmdConfigRepo     = "config repo"
	cmdListRepos      = "list repos"
	cmdRemoveRepos    = "remove repos"
	cmdAnalyzeChanges = "analyze changes"
	cmdInvestigate    = "investigate"

	maxAnalysisDays = 90
)

const helpText = `*Bug triage bot*
Mention me or send me a direct message to report a bug. I'll ask for a summary, the affected pages, steps to reproduce, and any components involved. Say *cancel* at any time to stop.

*Reports*
• ` + "`list reports [status]`" + ` recent reports
• ` + "`show BUG-2026-001`" + ` one report
• ` + "`search <text>`" + ` search report text
• ` + "`stats`" + ` report counts
• ` + "`status BUG-2026-001 <new|triaged|in_progress|resolved|closed>`" + ` update a report

*Repositories*
• ` + "`config repo <project> <github|azure|bitbucket> <url> [branch]`" + ` add a repository to this channel
• ` + "`list repos`" + ` show this channel's repositories
• ` + "`remove repos`" + ` clear this channel's repositories
• ` + "`analyze changes [days]`" + ` summarize recent commits
• ` + "`investigate BUG-2026-001`" + ` look for a likely cause`

var reportIDPattern = regexp.MustCompile(`(?i)^BUG-\d{4}-\d{3,}$`)

var cancelWords = map[string]struct{}{
	"cancel":     {},
	"stop":       {},
	"nevermind":  {},
	"never mind": {},
}

type command struct {
	name string
	args []string
	rest string
}

func isCancel(text string) bool {
	normalized := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!"))
	_, ok := cancelWords[normalized]
	return ok
}

// parseCommand recognizes command text. Anything that does not match a
// command exactly is left for the conversation.
func parseCommand(text string) (command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return command{}, false
	}

	first := strings.ToLower(fields[0])
	second := ""
	if len(fields) > 1 {
		second = strings.ToLower(fields[1])
	}

	withArgs := func(name string, skip int) (command, bool) {
		args := fields[skip:]
		return command{name: name, args: args, rest: strings.Join(args, " ")}, true
	}

	switch {
	case len(fields) == 1 && first == cmdHelp:
		return withArgs(cmdHelp, 1)
	case len(fields) == 1 && first == cmdStats:
		return withArgs(cmdStats, 1)
	case len(fields) == 1 && (first == cmdStart || first == "bug"):
		return withArgs(cmdStart, 1)
	case first == "list" && second == "reports" && len(fields) <= 3:
		return withArgs(cmdListReports, 2)
	case first == "list" && second == "repos" && len(fields) == 2:
		return withArgs(cmdListRepos, 2)
	case first == "remove" && second == "repos" && len(fields) == 2:
		return withArgs(cmdRemoveRepos, 2)
	case first == "analyze" && second == "changes" && len(fields) <= 3:
		return withArgs(cmdAnalyzeChanges, 2)
	case first == "config" && second == "repo":
		return withArgs(cmdConfigRepo, 2)
	case first == cmdSearch && len(fields) > 1:
		return withArgs(cmdSearch, 1)
	case first == cmdShow && len(fields) == 2 && reportIDPattern.MatchString(fields[1]):
		return withArgs(cmdShow, 1)
	case first == cmdInvestigate && len(fields) == 2 && reportIDPattern.MatchString(fields[1]):
		return withArgs(cmdInvestigate, 1)
	case first == cmdStatus && len(fields) == 3 && reportIDPattern.MatchString(fields[1]):
		return withArgs(cmdStatus, 1)
	}

	return command{}, false
}

// runCommand executes a recognized command and returns the immediate reply.
// Long-running commands reply at once and deliver results through the bus.
func (s *Service) runCommand(ctx context.Context, inbound bus.InboundMessage, cmd command) string {
	log := s.log.With("command", cmd.name, "channel", inbound.Channel, "chat_id", inbound.ChatID)
	log.Debug("Running command", "args", cmd.rest)

	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	switch cmd.name {
	case cmdHelp:
		return helpText
	case cmdListReports:
		return s.listReports(ctx, cmd)
	case cmdShow:
		r, err := s.store.GetReport(ctx, cmd.args[0])
		if err != nil {
			return s.storageFailure(log, "show report", err)
		}
		return report.Format(r) + fmt.Sprintf("\n\n_status: %s_", r.Status)
	case cmdSearch:
		reports, err := s.store.SearchReports(ctx, cmd.rest, storage.DefaultListLimit)
		if err != nil {
			return s.storageFailure(log, "search reports", err)
		}
		if len(reports) == 0 {
			return fmt.Sprintf("No reports match %q.", cmd.rest)
		}
		return reportList(fmt.Sprintf("🔍 *Reports matching %q*", cmd.rest), reports)
	case cmdStats:
		stats, err := s.store.Stats(ctx)
		if err != nil {
			return s.storageFailure(log, "report stats", err)
		}
		return formatStats(stats)
	case cmdStatus:
		return s.updateStatus(ctx, cmd)
	case cmdConfigRepo:
		return s.configRepo(ctx, inbound, cmd)
	case cmdListRepos:
		cfg, err := s.store.GetChannelConfig(ctx, inbound.ChatID)
		if errors.Is(err, storage.ErrChannelConfigNotFound) {
			return noReposText
		}
		if err != nil {
			return s.storageFailure(log, "list repos", err)
		}
		return formatChannelConfig(cfg)
	case cmdRemoveRepos:
		err := s.store.DeleteChannelConfig(ctx, inbound.ChatID)
		if errors.Is(err, storage.ErrChannelConfigNotFound) {
			return noReposText
		}
		if err != nil {
			return s.storageFailure(log, "remove repos", err)
		}
		return "🗑️ Removed the repository configuration for this channel."
	case cmdAnalyzeChanges:
		return s.startAnalysis(ctx, inbound, cmd)
	case cmdInvestigate:
		return s.startInvestigation(ctx, inbound, cmd.args[0])
	default:
		return helpText
	}
}

const noReposText = "No repositories are configured for this channel. Add one with `config repo <project> <github|azure|bitbucket> <url> [branch]`."

func (s *Service) listReports(ctx context.Context, cmd command) string {
	var status report.Status
	if len(cmd.args) == 1 {
		parsed, err := report.ParseStatus(cmd.args[0])
		if err != nil {
			return err.Error()
		}
		status = parsed
	}

	reports, err := s.store.ListReports(ctx, status, storage.DefaultListLimit)
	if err != nil {
		return s.storageFailure(s.log, "list reports", err)
	}
	if len(reports) == 0 {
		if status != "" {
			return fmt.Sprintf("No %s reports yet.", status)
		}
		return "No bug reports yet."
	}

	title := "📋 *Recent bug reports*"
	if status != "" {
		title = fmt.Sprintf("📋 *Recent %s bug reports*", status)
	}
	return reportList(title, reports)
}

func (s *Service) updateStatus(ctx context.Context, cmd command) string {
	id := strings.ToUpper(cmd.args[0])
	status, err := report.ParseStatus(cmd.args[1])
	if err != nil {
		return err.Error()
	}

	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		return s.storageFailure(s.log, "update status", err)
	}
	return fmt.Sprintf("✅ %s is now *%s*.", id, status)
}

func (s *Service) configRepo(ctx context.Context, inbound bus.InboundMessage, cmd command) string {
	project, repository, err := repo.ParseConfigCommand(cmd.rest)
	if err != nil {
		return "⚠️ " + err.Error()
	}

	cfg, err := s.store.GetChannelConfig(ctx, inbound.ChatID)
	switch {
	case errors.Is(err, storage.ErrChannelConfigNotFound):
		cfg = repo.ChannelConfig{ChannelID: inbound.ChatID, ChannelName: inbound.Metadata["channel_name"]}
	case err != nil:
		return s.storageFailure(s.log, "load channel config", err)
	}

	cfg.Project = project
	replaced := false
	for i, existing := range cfg.Repositories {
		if existing.Name == repository.Name && existing.Type == repository.Type {
			cfg.Repositories[i] = repository
			replaced = true
		}
	}
	if !replaced {
		cfg.Repositories = append(cfg.Repositories, repository)
	}

	if err := s.store.SaveChannelConfig(ctx, cfg); err != nil {
		return s.storageFailure(s.log, "save channel config", err)
	}

	verb := "Added"
	if replaced {
		verb = "Updated"
	}
	return fmt.Sprintf("✅ %s %s repository *%s* (%s) for project *%s*.", verb, repository.Type, repository.Name, repository.Branch, project)
}

func (s *Service) startAnalysis(ctx context.Context, inbound bus.InboundMessage, cmd command) string {
	days := s.cfg.Investigation.AnalysisDays
	if len(cmd.args) == 1 {
		parsed, err := strconv.Atoi(cmd.args[0])
		if err != nil || parsed <= 0 || parsed > maxAnalysisDays {
			return fmt.Sprintf("⚠️ Days must be a number between 1 and %d.", maxAnalysisDays)
		}
		days = parsed
	}

	cfg, err := s.store.GetChannelConfig(ctx, inbound.ChatID)
	if errors.Is(err, storage.ErrChannelConfigNotFound) {
		return noReposText
	}
	if err != nil {
		return s.storageFailure(s.log, "load channel config", err)
	}

	s.spawn(func(ctx context.Context) {
		s.analyzeChanges(ctx, inbound, cfg, days)
	})
	return fmt.Sprintf("📊 Analyzing the last %d days of changes for *%s*. I'll post the summary here.", days, cfg.Project)
}

func (s *Service) startInvestigation(ctx context.Context, inbound bus.InboundMessage, id string) string {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return s.storageFailure(s.log, "load report", err)
	}

	s.spawn(func(ctx context.Context) {
		s.investigate(ctx, inbound.Channel, inbound.ChatID, r)
	})
	return fmt.Sprintf("🔎 Investigating %s. I'll post the findings here.", r.ID)
}

func reportList(title string, reports []report.BugReport) string {
	var b strings.Builder
	b.WriteString(title)
	for _, r := range reports {
		b.WriteString("\n• ")
		b.WriteString(report.Line(r))
	}
	return b.String()
}

func formatStats(stats storage.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 *Bug report stats*\nTotal: %d\nLast 7 days: %d", stats.Total, stats.Recent)

	b.WriteString("\n*By status:*")
	for _, name := range report.StatusNames() {
		fmt.Fprintf(&b, " %s %d", name, stats.ByStatus[report.Status(name)])
	}

	b.WriteString("\n*By priority:*")
	for _, priority := range []report.Priority{report.PriorityHigh, report.PriorityMedium, report.PriorityLow} {
		fmt.Fprintf(&b, " %s %d", priority, stats.ByPriority[priority])
	}
	return b.String()
}

func formatChannelConfig(cfg repo.ChannelConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗂️ *Project %s*", cfg.Project)
	if len(cfg.Repositories) == 0 {
		b.WriteString("\nNo repositories.")
		return b.String()
	}
	for _, repository := range cfg.Repositories {
		fmt.Fprintf(&b, "\n• *%s* (%s, %s) %s", repository.Name, repository.Type, repository.Branch, repository.URL)
	}
	return b.String()
}
