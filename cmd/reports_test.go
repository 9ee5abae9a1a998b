package cmd

import (
	"strings"
	"testing"

	"bugtriage/pkg/report"
	"bugtriage/pkg/repo"
	"bugtriage/pkg/storage"
)

func TestRenderReportTable(t *testing.T) {
	t.Parallel()

	if got := renderReportTable(nil); got != "No bug reports found." {
		t.Fatalf("renderReportTable(nil) = %q", got)
	}

	reports := []report.BugReport{
		report.New("BUG-2026-002", "slack", "U1", "C1", testNow, map[string]string{report.FieldSummary: "Checkout is broken"}),
		report.New("BUG-2026-001", "slack", "U2", "C1", testNow, map[string]string{report.FieldSummary: strings.Repeat("slow ", 30)}),
	}

	out := renderReportTable(reports)
	for _, want := range []string{"ID", "PRIORITY", "BUG-2026-002", "BUG-2026-001", "high", "medium", "2026-10-17 14:03", "..."} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReport(t *testing.T) {
	t.Parallel()

	r := report.New("BUG-2026-003", "slack", "U1", "C1", testNow, map[string]string{
		report.FieldSummary: "Cart is empty",
		report.FieldPages:   "https://shop.example.com/cart",
		report.FieldSteps:   "open cart",
	})

	out := renderReport(r)
	if strings.Contains(out, "*") {
		t.Fatalf("expected mrkdwn markers to be stripped:\n%s", out)
	}
	if !strings.Contains(out, "Bug Report BUG-2026-003") || !strings.Contains(out, "Status: new") {
		t.Fatalf("unexpected report rendering:\n%s", out)
	}
}

func TestRenderStats(t *testing.T) {
	t.Parallel()

	out := renderStats(storage.Stats{
		Total:      3,
		Recent:     2,
		ByStatus:   map[report.Status]int{report.StatusNew: 2, report.StatusClosed: 1},
		ByPriority: map[report.Priority]int{report.PriorityHigh: 3},
	})

	for _, want := range []string{"3 reports · 2 in the last 7 days", "in_progress", "closed", "high"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats missing %q:\n%s", want, out)
		}
	}
}

func TestRenderChannelConfigs(t *testing.T) {
	t.Parallel()

	if got := renderChannelConfigs(nil); got != "No channels have repositories configured." {
		t.Fatalf("renderChannelConfigs(nil) = %q", got)
	}

	out := renderChannelConfigs([]repo.ChannelConfig{
		{
			ChannelID:   "C1",
			ChannelName: "shop-bugs",
			Project:     "Shop",
			Repositories: []repo.Repository{
				{Name: "web", Type: repo.TypeGitHub, URL: "https://github.com/acme/web"},
				{Name: "api", Type: repo.TypeAzure, URL: "https://dev.azure.com/acme/api"},
			},
		},
		{ChannelID: "C2", ChannelName: "C2", Project: "Billing"},
	})

	for _, want := range []string{"PROJECT", "C1 (shop-bugs)", "github", "acme/web", "azure", "Billing"} {
		if !strings.Contains(out, want) {
			t.Fatalf("channel table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "C2 (C2)") {
		t.Fatalf("channel name equal to its id should not repeat:\n%s", out)
	}
}
