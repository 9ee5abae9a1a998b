package investigate

import (
	"context"
	"fmt"
	"strings"

	core "charm.land/fantasy"

	"bugtriage/pkg/report"
)

const similarReportsLimit = 5

// ReportFinder looks up stored reports for the model's tools.
type ReportFinder interface {
	SearchReports(ctx context.Context, query string, limit int) ([]report.BugReport, error)
	GetReport(ctx context.Context, id string) (report.BugReport, error)
}

type similarReportsInput struct {
	Query string `json:"query" description:"Words to search for in earlier bug reports"`
}

type getReportInput struct {
	ReportID string `json:"report_id" description:"Report ID such as BUG-2026-001"`
}

// Tools exposes stored reports to agents that support tool calls.
func Tools(finder ReportFinder) []core.AgentTool {
	return []core.AgentTool{
		core.NewAgentTool(
			"similar_reports",
			"Search earlier bug reports for similar symptoms. Returns one line per report.",
			func(ctx context.Context, input similarReportsInput, _ core.ToolCall) (core.ToolResponse, error) {
				return core.NewTextResponse(similarReports(ctx, finder, input.Query)), nil
			},
		),
		core.NewAgentTool(
			"get_report",
			"Fetch the full text of one stored bug report by ID.",
			func(ctx context.Context, input getReportInput, _ core.ToolCall) (core.ToolResponse, error) {
				return core.NewTextResponse(reportText(ctx, finder, input.ReportID)), nil
			},
		),
	}
}

func similarReports(ctx context.Context, finder ReportFinder, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "query is required"
	}

	reports, err := finder.SearchReports(ctx, query, similarReportsLimit)
	if err != nil {
		return fmt.Sprintf("search failed: %v", err)
	}
	if len(reports) == 0 {
		return "no matching reports"
	}

	lines := make([]string, 0, len(reports))
	for _, r := range reports {
		lines = append(lines, report.Line(r))
	}
	return strings.Join(lines, "\n")
}

func reportText(ctx context.Context, finder ReportFinder, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "report_id is required"
	}

	r, err := finder.GetReport(ctx, id)
	if err != nil {
		return fmt.Sprintf("lookup failed: %v", err)
	}
	return report.Format(r)
}
