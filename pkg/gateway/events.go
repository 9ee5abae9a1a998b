package gateway

import (
	"context"
	"log/slog"

	"bugtriage/pkg/bus"
)

func observeEvents(ctx context.Context, messageBus *bus.MessageBus, log *slog.Logger) {
	log = log.With("component", "bus.events")
	events, unsubscribe := messageBus.SubscribeEvents(ctx, 64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logEvent(log, event)
		}
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{
		"event_type", event.Type,
		"channel", event.Channel,
		"chat_id", event.ChatID,
		"user_id", event.UserID,
		"timestamp", event.At.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
	}
	if event.ReportID != "" {
		attrs = append(attrs, "report_id", event.ReportID)
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch {
	case event.Failed():
		log.Error("Bug triage event", append(attrs, "error", event.Error)...)
	case event.Type == bus.EventAnswerAccepted, event.Type == bus.EventAnswerRejected, event.Type == bus.EventSessionResumed:
		log.Debug("Bug triage event", attrs...)
	default:
		log.Info("Bug triage event", attrs...)
	}
}
