package channel

import (
	"context"

	"bugtriage/pkg/bus"
)

// Handler processes one inbound channel message and returns an outbound reply.
// An empty reply means the message was ignored.
type Handler func(context.Context, bus.InboundMessage) (bus.OutboundMessage, error)

// Adapter bridges one external transport (Slack, Telegram) into the gateway.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}

// Poster is implemented by adapters that can send unsolicited messages,
// such as triage announcements and investigation results.
type Poster interface {
	Post(ctx context.Context, chatID string, text string) error
}
