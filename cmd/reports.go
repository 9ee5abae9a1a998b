package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bugtriage/pkg/config"
	"bugtriage/pkg/report"
	"bugtriage/pkg/repo"
	"bugtriage/pkg/storage"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

const reportsTimeout = 10 * time.Second

var (
	listStatus string
	listLimit  int
)

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("130"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("88")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	priorityStyles   = map[report.Priority]lipgloss.Style{
		report.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		report.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("222")),
		report.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
	}
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect and update stored bug reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the newest reports",
	Args:  cobra.NoArgs,
	Run: withStore(func(ctx context.Context, store *storage.Store, _ []string) error {
		var status report.Status
		if strings.TrimSpace(listStatus) != "" {
			parsed, err := report.ParseStatus(listStatus)
			if err != nil {
				return err
			}
			status = parsed
		}

		reports, err := store.ListReports(ctx, status, listLimit)
		if err != nil {
			return err
		}
		fmt.Println(renderReportTable(reports))
		return nil
	}),
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <BUG-ID>",
	Short: "Print one report",
	Args:  cobra.ExactArgs(1),
	Run: withStore(func(ctx context.Context, store *storage.Store, args []string) error {
		r, err := store.GetReport(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(renderReport(r))
		return nil
	}),
}

var reportsSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Search report answers",
	Args:  cobra.MinimumNArgs(1),
	Run: withStore(func(ctx context.Context, store *storage.Store, args []string) error {
		reports, err := store.SearchReports(ctx, strings.Join(args, " "), listLimit)
		if err != nil {
			return err
		}
		fmt.Println(renderReportTable(reports))
		return nil
	}),
}

var reportsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count reports by status and priority",
	Args:  cobra.NoArgs,
	Run: withStore(func(ctx context.Context, store *storage.Store, _ []string) error {
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Println(renderStats(stats))
		return nil
	}),
}

var reportsStatusCmd = &cobra.Command{
	Use:   "status <BUG-ID> <status>",
	Short: "Move a report through the triage workflow",
	Long:  "Sets the status of a report. Valid statuses: " + strings.Join(report.StatusNames(), ", ") + ".",
	Args:  cobra.ExactArgs(2),
	Run: withStore(func(ctx context.Context, store *storage.Store, args []string) error {
		status, err := report.ParseStatus(args[1])
		if err != nil {
			return err
		}
		if err := store.UpdateStatus(ctx, args[0], status); err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", strings.ToUpper(args[0]), status)
		return nil
	}),
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <BUG-ID>",
	Short: "Remove a report; its number is not issued again",
	Args:  cobra.ExactArgs(1),
	Run: withStore(func(ctx context.Context, store *storage.Store, args []string) error {
		if err := store.DeleteReport(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s deleted\n", strings.ToUpper(args[0]))
		return nil
	}),
}

var reportsReposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List repository settings of every configured channel",
	Args:  cobra.NoArgs,
	Run: withStore(func(ctx context.Context, store *storage.Store, _ []string) error {
		configs, err := store.ListChannelConfigs(ctx)
		if err != nil {
			return err
		}
		fmt.Println(renderChannelConfigs(configs))
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd, reportsSearchCmd, reportsStatsCmd, reportsStatusCmd, reportsDeleteCmd, reportsReposCmd)

	reportsListCmd.Flags().StringVar(&listStatus, "status", "", "only list reports with this status")
	for _, cmd := range []*cobra.Command{reportsListCmd, reportsSearchCmd} {
		cmd.Flags().IntVarP(&listLimit, "limit", "n", storage.DefaultListLimit, "maximum number of reports")
	}
}

// withStore opens the configured report database around fn.
func withStore(fn func(ctx context.Context, store *storage.Store, args []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), reportsTimeout)
		defer cancel()

		store, err := storage.Open(ctx, cfg.Storage.Path)
		if err != nil {
			fmt.Printf("failed to open report storage: %v\n", err)
			return
		}
		defer store.Close()

		if err := fn(ctx, store, args); err != nil {
			fmt.Printf("%s failed: %v\n", cmd.Name(), err)
		}
	}
}

func renderReportTable(reports []report.BugReport) string {
	if len(reports) == 0 {
		return "No bug reports found."
	}

	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			r.ID,
			string(r.Priority),
			string(r.Status),
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			report.Truncate(strings.Join(strings.Fields(r.Summary()), " "), 60),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 1 && row >= 0 && row < len(rows) {
				if style, ok := priorityStyles[report.Priority(rows[row][1])]; ok {
					return style.Padding(0, 1)
				}
			}
			return tableCellStyle
		}).
		Headers("ID", "PRIORITY", "STATUS", "REPORTED", "SUMMARY").
		Rows(rows...)

	return t.Render()
}

func renderChannelConfigs(configs []repo.ChannelConfig) string {
	if len(configs) == 0 {
		return "No channels have repositories configured."
	}

	var rows [][]string
	for _, cfg := range configs {
		channel := cfg.ChannelID
		if cfg.ChannelName != "" && cfg.ChannelName != cfg.ChannelID {
			channel += " (" + cfg.ChannelName + ")"
		}
		if len(cfg.Repositories) == 0 {
			rows = append(rows, []string{cfg.Project, channel, "-", "-", "-"})
			continue
		}
		for _, r := range cfg.Repositories {
			rows = append(rows, []string{cfg.Project, channel, string(r.Type), r.Name, r.URL})
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers("PROJECT", "CHANNEL", "TYPE", "REPOSITORY", "URL").
		Rows(rows...)

	return t.Render()
}

func renderReport(r report.BugReport) string {
	body := strings.ReplaceAll(report.Format(r), "*", "")
	return body + "\n\n" + titleStyle.Render("Status: "+string(r.Status))
}

func renderStats(stats storage.Stats) string {
	rows := make([][]string, 0, len(report.StatusNames())+3)
	for _, name := range report.StatusNames() {
		rows = append(rows, []string{"status", name, fmt.Sprint(stats.ByStatus[report.Status(name)])})
	}
	for _, priority := range []report.Priority{report.PriorityHigh, report.PriorityMedium, report.PriorityLow} {
		rows = append(rows, []string{"priority", string(priority), fmt.Sprint(stats.ByPriority[priority])})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers("GROUP", "VALUE", "REPORTS").
		Rows(rows...)

	summary := titleStyle.Render(fmt.Sprintf("%d reports · %d in the last 7 days", stats.Total, stats.Recent))
	return lipgloss.JoinVertical(lipgloss.Left, summary, t.Render())
}

