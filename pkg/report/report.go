// Package report holds the finalized bug report value and its text rendering.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Field names shared by the conversation script, storage, and formatting.
const (
	FieldSummary    = "summary"
	FieldPages      = "pages"
	FieldSteps      = "steps"
	FieldComponents = "components"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusTriaged    Status = "triaged"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

var statuses = []Status{StatusNew, StatusTriaged, StatusInProgress, StatusResolved, StatusClosed}

// ParseStatus validates a user-supplied status name.
func ParseStatus(input string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	for _, status := range statuses {
		if string(status) == normalized {
			return status, nil
		}
	}

	return "", fmt.Errorf("unknown status %q (expected one of %s)", input, strings.Join(StatusNames(), ", "))
}

// StatusNames lists valid status values in workflow order.
func StatusNames() []string {
	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}
	return names
}

// BugReport is the immutable result of a completed conversation.
type BugReport struct {
	ID        string
	Channel   string
	UserID    string
	ChannelID string
	CreatedAt time.Time
	UpdatedAt time.Time
	Answers   map[string]string
	Priority  Priority
	Status    Status
}

// New copies answers so later mutation of the source map cannot leak in.
func New(id string, channel string, userID string, channelID string, createdAt time.Time, answers map[string]string) BugReport {
	copied := make(map[string]string, len(answers))
	for name, value := range answers {
		copied[name] = strings.TrimSpace(value)
	}

	return BugReport{
		ID:        id,
		Channel:   channel,
		UserID:    userID,
		ChannelID: channelID,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: createdAt.UTC(),
		Answers:   copied,
		Priority:  DeterminePriority(copied),
		Status:    StatusNew,
	}
}

func (r BugReport) Answer(field string) string {
	if r.Answers == nil {
		return ""
	}
	return r.Answers[field]
}

func (r BugReport) Summary() string    { return r.Answer(FieldSummary) }
func (r BugReport) Pages() string      { return r.Answer(FieldPages) }
func (r BugReport) Steps() string      { return r.Answer(FieldSteps) }
func (r BugReport) Components() string { return r.Answer(FieldComponents) }
