// Package chat runs the bug report questionnaire in a terminal.
package chat

import (
	"context"
	"fmt"
	"os"

	"bugtriage/pkg/conversation"
	"bugtriage/pkg/report"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Conversation is the part of the conversation controller the walkthrough
// drives.
type Conversation interface {
	Start(userID string, channelID string) conversation.Reply
	Submit(userID string, channelID string, text string) (conversation.Reply, error)
	Cancel(userID string, channelID string) conversation.Reply
}

// SaveFunc persists a completed report and returns an optional note to show.
type SaveFunc func(ctx context.Context, r report.BugReport) (string, error)

// Info identifies the local reporter.
type Info struct {
	UserID    string
	ChannelID string
}

func (i Info) withDefaults() Info {
	if i.UserID == "" {
		i.UserID = os.Getenv("USER")
	}
	if i.UserID == "" {
		i.UserID = "local"
	}
	if i.ChannelID == "" {
		i.ChannelID = "terminal"
	}
	return i
}

// Result describes how the walkthrough ended.
type Result struct {
	Report    *report.BugReport
	Cancelled bool
}

// Run drives one report through the questionnaire in a full-screen TUI.
func Run(ctx context.Context, conv Conversation, save SaveFunc, info Info) (Result, error) {
	m := newModel(ctx, conv, save, info)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return Result{}, err
	}

	result := Result{Report: m.result, Cancelled: m.cancelled}
	fmt.Println(renderGoodbyeBanner(result))
	return result, nil
}

func renderGoodbyeBanner(result Result) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("88")).
		Padding(1, 2)

	switch {
	case result.Report != nil:
		return style.Render(fmt.Sprintf("🐛 %s filed, thanks for reporting", result.Report.ID))
	case result.Cancelled:
		return style.Render("🐛 Report discarded")
	default:
		return style.Render("🐛 No report filed")
	}
}
