package cmd

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"bugtriage/pkg/conversation"
	"bugtriage/pkg/report"
	"bugtriage/pkg/storage"
	"bugtriage/pkg/ui/chat"
)

var testNow = time.Date(2026, 10, 17, 14, 3, 0, 0, time.UTC)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()

	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIsExitCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "exit", want: true},
		{input: " quit ", want: true},
		{input: ":q", want: true},
		{input: "Cancel", want: true},
		{input: "never mind", want: true},
		{input: "hello", want: false},
		{input: "quit now", want: false},
	}

	for _, tt := range tests {
		if got := isExitCommand(tt.input); got != tt.want {
			t.Fatalf("isExitCommand(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestBotLines(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantOut []string
	}{
		{name: "single line", input: "hello", wantOut: []string{"hello"}},
		{name: "strips bold", input: "*Summary:*\ncart", wantOut: []string{"Summary:", "cart"}},
		{name: "trim outer whitespace", input: "  one\ntwo  ", wantOut: []string{"one", "two"}},
		{name: "empty input", input: "   ", wantOut: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := botLines(tt.input)
			if !reflect.DeepEqual(got, tt.wantOut) {
				t.Fatalf("botLines(%q) = %#v, want %#v", tt.input, got, tt.wantOut)
			}
		})
	}
}

func TestNewLocalControllerContinuesSequence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	existing := report.New("BUG-2026-004", "slack", "U1", "C1", testNow, map[string]string{report.FieldSummary: "old"})
	if err := store.SaveReport(ctx, existing); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	ctrl := newLocalController(ctx, store, func() time.Time { return testNow }, slog.New(slog.DiscardHandler))

	ctrl.Start("dev", terminalTransport)
	for _, answer := range []string{"Cart is empty", "https://shop.example.com/cart", "open the cart", "none"} {
		reply, err := ctrl.Submit("dev", terminalTransport, answer)
		if err != nil {
			t.Fatalf("Submit(%q): %v", answer, err)
		}
		if reply.Completed && reply.Report.ID != "BUG-2026-005" {
			t.Fatalf("report id = %q, want BUG-2026-005", reply.Report.ID)
		}
	}
}

func TestLocalControllersShareStoredSequence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)

	first := newLocalController(ctx, store, func() time.Time { return testNow }, log)
	second := newLocalController(ctx, store, func() time.Time { return testNow }, log)

	var ids []string
	for _, ctrl := range []*conversation.Controller{first, second} {
		ctrl.Start("dev", terminalTransport)
		var reply conversation.Reply
		for _, answer := range []string{"Cart is empty", "https://shop.example.com/cart", "open the cart", "none"} {
			var err error
			reply, err = ctrl.Submit("dev", terminalTransport, answer)
			if err != nil {
				t.Fatalf("Submit(%q): %v", answer, err)
			}
		}
		if err := store.SaveReport(ctx, *reply.Report); err != nil {
			t.Fatalf("SaveReport(%s): %v", reply.Report.ID, err)
		}
		ids = append(ids, reply.Report.ID)
	}

	if !reflect.DeepEqual(ids, []string{"BUG-2026-001", "BUG-2026-002"}) {
		t.Fatalf("ids = %v, want BUG-2026-001 then BUG-2026-002", ids)
	}
}

func TestRunPlainReport(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ctrl := newLocalController(ctx, store, func() time.Time { return testNow }, slog.New(slog.DiscardHandler))

	save := func(ctx context.Context, r report.BugReport) (string, error) {
		if err := store.SaveReport(ctx, r); err != nil {
			return "", err
		}
		return "Saved " + r.ID, nil
	}

	in := strings.NewReader("Checkout crashes\n\nhttps://shop.example.com/checkout\npress pay\n\n")
	var out strings.Builder
	info := chat.Info{UserID: "dev", ChannelID: terminalTransport}
	if err := runPlainReport(ctx, ctrl, save, info, in, &out); err != nil {
		t.Fatalf("runPlainReport: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "🐛 I'm waiting for the affected page(s).") {
		t.Fatalf("expected reminder in output:\n%s", output)
	}
	if !strings.HasSuffix(output, "🐛 Saved BUG-2026-001\n\n") {
		t.Fatalf("expected save note at the end:\n%s", output)
	}

	stored, err := store.GetReport(ctx, "BUG-2026-001")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if stored.Priority != report.PriorityHigh {
		t.Fatalf("priority = %q, want high", stored.Priority)
	}
}

func TestRunPlainReportCancel(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ctrl := newLocalController(ctx, store, func() time.Time { return testNow }, slog.New(slog.DiscardHandler))

	save := func(context.Context, report.BugReport) (string, error) {
		return "", errors.New("save must not be called")
	}

	var out strings.Builder
	info := chat.Info{UserID: "dev", ChannelID: terminalTransport}
	if err := runPlainReport(ctx, ctrl, save, info, strings.NewReader("Search is slow\ncancel\n"), &out); err != nil {
		t.Fatalf("runPlainReport: %v", err)
	}
	if !strings.Contains(out.String(), "cancelled") {
		t.Fatalf("expected cancellation in output:\n%s", out.String())
	}
	if ctrl.Active("dev", terminalTransport) {
		t.Fatal("expected session to be cancelled")
	}
}
