package gateway

import (
	"fmt"

	"github.com/google/uuid"

	"bugtriage/pkg/bus"
	"bugtriage/pkg/conversation"
	"bugtriage/pkg/report"
)

func replyTo(inbound bus.InboundMessage, text string) bus.OutboundMessage {
	if text == "" {
		return bus.OutboundMessage{}
	}
	return bus.OutboundMessage{Channel: inbound.Channel, ChatID: inbound.ChatID, Content: text}
}

// announcement is posted to the triage chat when a report is filed.
func announcement(transport string, r report.BugReport) string {
	return fmt.Sprintf("🐛 *New %s priority bug* from %s\n\n%s", r.Priority, mention(transport, r.UserID), report.Format(r))
}

func expiredText(transport string, userID string) string {
	if transport == "slack" {
		return mention(transport, userID) + " " + conversation.ExpiredNotice
	}
	return conversation.ExpiredNotice
}

func mention(transport string, userID string) string {
	switch transport {
	case "slack":
		return "<@" + userID + ">"
	default:
		return "user " + userID
	}
}

func newRequestID() string {
	return uuid.NewString()
}
