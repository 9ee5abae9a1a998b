// Package slack connects the gateway to Slack over Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"bugtriage/pkg/bus"
	"bugtriage/pkg/channel"
	"bugtriage/pkg/config"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const channelName = "slack"
const messagePreviewLimit = 240

var mentionToken = regexp.MustCompile(`<@([A-Z0-9]+)(\|[^>]*)?>`)

// Adapter bridges Slack app mentions, channel messages, and direct
// messages into the gateway.
type Adapter struct {
	cfg    config.SlackConfig
	client *slackapi.Client
	log    *slog.Logger

	botUserID string
}

var _ channel.Poster = (*Adapter)(nil)

// NewAdapter validates Slack configuration and constructs an adapter instance.
func NewAdapter(cfg config.SlackConfig, log *slog.Logger, opts ...slackapi.Option) (*Adapter, error) {
	botToken := strings.TrimSpace(cfg.BotToken)
	if botToken == "" {
		return nil, errors.New("channels.slack.bot_token is required")
	}
	appToken := strings.TrimSpace(cfg.AppToken)
	if appToken == "" {
		return nil, errors.New("channels.slack.app_token is required for Socket Mode")
	}
	if !strings.HasPrefix(appToken, "xapp-") {
		return nil, errors.New("channels.slack.app_token must start with xapp-")
	}

	if log == nil {
		log = slog.Default()
	}

	clientOpts := append([]slackapi.Option{
		slackapi.OptionDebug(cfg.Debug),
		slackapi.OptionAppLevelToken(appToken),
	}, opts...)

	return &Adapter{
		cfg:    cfg,
		client: slackapi.New(botToken, clientOpts...),
		log:    log.With("component", "channel.slack"),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Run connects over Socket Mode and forwards events to handler until ctx is done.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	auth, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	a.botUserID = auth.UserID
	a.log.Info("Slack channel authenticated", "bot_user_id", auth.UserID, "team", auth.Team)

	socketClient := socketmode.New(a.client, socketmode.OptionDebug(a.cfg.Debug))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-socketClient.Events:
				if !ok {
					return
				}
				a.handleEvent(ctx, socketClient, evt, handler)
			}
		}
	}()

	if err := socketClient.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("slack socket mode: %w", err)
	}
	return nil
}

func (a *Adapter) handleEvent(ctx context.Context, socketClient *socketmode.Client, evt socketmode.Event, handler channel.Handler) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		a.log.Info("Connecting to Socket Mode")
	case socketmode.EventTypeConnected:
		a.log.Info("Connected to Socket Mode")
	case socketmode.EventTypeConnectionError:
		a.log.Warn("Socket Mode connection error", "detail", fmt.Sprint(evt.Data))
	case socketmode.EventTypeEventsAPI:
		event, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			socketClient.Ack(*evt.Request)
		}

		inbound, ok := a.toInbound(event)
		if !ok {
			return
		}
		a.dispatch(ctx, inbound, handler)
	}
}

// toInbound maps an Events API callback to an inbound message. Channel
// messages that mention the bot are skipped because Slack also delivers
// them as app_mention events.
func (a *Adapter) toInbound(event slackevents.EventsAPIEvent) (bus.InboundMessage, bool) {
	if event.Type != slackevents.CallbackEvent {
		return bus.InboundMessage{}, false
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" || ev.User == "" {
			return bus.InboundMessage{}, false
		}
		return newInbound(ev.User, ev.Channel, stripMentions(ev.Text, a.botUserID), ev.TimeStamp, ev.ThreadTimeStamp, true, false), true

	case *slackevents.MessageEvent:
		if ev.SubType != "" || ev.BotID != "" || ev.User == "" || ev.User == a.botUserID {
			return bus.InboundMessage{}, false
		}
		direct := ev.ChannelType == "im" || strings.HasPrefix(ev.Channel, "D")
		if !direct && mentionsUser(ev.Text, a.botUserID) {
			return bus.InboundMessage{}, false
		}
		return newInbound(ev.User, ev.Channel, stripMentions(ev.Text, a.botUserID), ev.TimeStamp, ev.ThreadTimeStamp, false, direct), true
	}

	return bus.InboundMessage{}, false
}

func newInbound(userID string, channelID string, text string, ts string, threadTS string, mention bool, direct bool) bus.InboundMessage {
	metadata := map[string]string{"ts": ts}
	if threadTS != "" {
		metadata["thread_ts"] = threadTS
	}

	return bus.InboundMessage{
		Channel:  channelName,
		SenderID: userID,
		ChatID:   channelID,
		Content:  text,
		Mention:  mention,
		Direct:   direct,
		Metadata: metadata,
	}
}

func (a *Adapter) dispatch(ctx context.Context, inbound bus.InboundMessage, handler channel.Handler) {
	a.log.Info("Received message", "chat_id", inbound.ChatID, "sender_id", inbound.SenderID, "mention", inbound.Mention, "direct", inbound.Direct, "content", previewText(inbound.Content))

	outbound, err := handler(ctx, inbound)
	if err != nil {
		a.log.Error("Failed to process inbound message", "error", err)
		outbound = bus.OutboundMessage{Error: err.Error()}
	}

	responseText := strings.TrimSpace(outbound.Content)
	if responseText == "" {
		responseText = strings.TrimSpace(outbound.Error)
	}
	if responseText == "" {
		return
	}

	options := []slackapi.MsgOption{slackapi.MsgOptionText(responseText, false)}
	if threadTS := inbound.Metadata["thread_ts"]; threadTS != "" {
		options = append(options, slackapi.MsgOptionTS(threadTS))
	}

	a.log.Info("Sending message", "chat_id", inbound.ChatID, "content", previewText(responseText))
	if _, _, err := a.client.PostMessageContext(ctx, inbound.ChatID, options...); err != nil {
		a.log.Error("Failed to send slack message", "chat_id", inbound.ChatID, "error", err)
	}
}

// Post sends an unsolicited message, for example to the triage channel.
func (a *Adapter) Post(ctx context.Context, chatID string, text string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return errors.New("slack channel id is required")
	}

	if _, _, err := a.client.PostMessageContext(ctx, chatID, slackapi.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("post slack message to %s: %w", chatID, err)
	}
	return nil
}

// stripMentions removes mentions of the bot and collapses whitespace.
// When the bot user id is unknown, every mention is removed.
func stripMentions(text string, botUserID string) string {
	stripped := mentionToken.ReplaceAllStringFunc(text, func(token string) string {
		match := mentionToken.FindStringSubmatch(token)
		if botUserID == "" || match[1] == botUserID {
			return " "
		}
		return token
	})

	return strings.Join(strings.Fields(stripped), " ")
}

func mentionsUser(text string, userID string) bool {
	if userID == "" {
		return false
	}
	for _, match := range mentionToken.FindAllStringSubmatch(text, -1) {
		if match[1] == userID {
			return true
		}
	}
	return false
}

func previewText(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= messagePreviewLimit {
		return string(runes)
	}

	return string(runes[:messagePreviewLimit]) + "..."
}
