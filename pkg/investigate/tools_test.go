package investigate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bugtriage/pkg/report"
)

type fakeFinder struct {
	reports []report.BugReport
	err     error
	query   string
}

func (f *fakeFinder) SearchReports(ctx context.Context, query string, limit int) ([]report.BugReport, error) {
	f.query = query
	if f.err != nil {
		return nil, f.err
	}
	if len(f.reports) > limit {
		return f.reports[:limit], nil
	}
	return f.reports, nil
}

func (f *fakeFinder) GetReport(ctx context.Context, id string) (report.BugReport, error) {
	for _, r := range f.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return report.BugReport{}, errors.New("report not found")
}

func TestSimilarReports(t *testing.T) {
	finder := &fakeFinder{reports: []report.BugReport{checkoutReport()}}

	got := similarReports(context.Background(), finder, " checkout ")
	if finder.query != "checkout" {
		t.Fatalf("query = %q, want trimmed", finder.query)
	}
	if !strings.HasPrefix(got, "BUG-2026-007 [high/new]") {
		t.Fatalf("similarReports = %q", got)
	}

	if got := similarReports(context.Background(), finder, " "); got != "query is required" {
		t.Fatalf("empty query = %q", got)
	}
	if got := similarReports(context.Background(), &fakeFinder{}, "nothing"); got != "no matching reports" {
		t.Fatalf("no match = %q", got)
	}
	if got := similarReports(context.Background(), &fakeFinder{err: errors.New("disk full")}, "x"); !strings.Contains(got, "disk full") {
		t.Fatalf("error text = %q", got)
	}
}

func TestReportText(t *testing.T) {
	finder := &fakeFinder{reports: []report.BugReport{checkoutReport()}}

	if got := reportText(context.Background(), finder, "BUG-2026-007"); !strings.HasPrefix(got, "*Bug Report BUG-2026-007*") {
		t.Fatalf("reportText = %q", got)
	}
	if got := reportText(context.Background(), finder, "BUG-2026-999"); !strings.HasPrefix(got, "lookup failed") {
		t.Fatalf("missing report = %q", got)
	}
}

func TestToolsExposeReportLookups(t *testing.T) {
	tools := Tools(&fakeFinder{})
	if len(tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(tools))
	}
}
