package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"bugtriage/pkg/bus"
	"bugtriage/pkg/channel"
	"bugtriage/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

// Adapter bridges Telegram updates into gateway inbound/outbound messages.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger

	mu          sync.RWMutex
	bot         *telego.Bot
	botUsername string
}

var _ channel.Poster = (*Adapter)(nil)

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and forwards messages through the shared channel handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get telegram bot identity: %w", err)
	}

	a.mu.Lock()
	a.bot = bot
	a.botUsername = me.Username
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.bot = nil
		a.mu.Unlock()
	}()

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started", "bot", me.Username)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			message := update.Message
			if message == nil {
				continue
			}
			if message.From == nil {
				a.log.Debug("Ignoring message without sender")
				continue
			}
			if message.From.IsBot {
				continue
			}

			inbound, ok := toInbound(*message, me.Username, me.ID)
			if !ok {
				continue
			}
			if !a.senderAllowed(inbound.SenderID) {
				a.log.Debug("Ignoring message from unauthorized sender", "sender_id", inbound.SenderID)
				continue
			}
			inbound.Metadata["update_id"] = strconv.Itoa(update.UpdateID)
			a.log.Info("Received message", "chat_id", inbound.ChatID, "sender_id", inbound.SenderID, "direct", inbound.Direct, "mention", inbound.Mention, "content", previewText(inbound.Content))

			stopTyping := func() {}
			if inbound.Addressed() {
				stopTyping = a.startTypingIndicator(ctx, bot, message.Chat.ID)
			}

			outbound, err := handler(ctx, inbound)
			stopTyping()
			if err != nil {
				a.log.Error("Failed to process inbound message", "error", err)
				outbound = bus.OutboundMessage{Error: err.Error()}
			}

			responseText := strings.TrimSpace(outbound.Content)
			if responseText == "" {
				responseText = strings.TrimSpace(outbound.Error)
			}
			if responseText == "" {
				continue
			}
			a.log.Info("Sending message", "chat_id", inbound.ChatID, "content", previewText(responseText))

			if err := a.send(ctx, bot, message.Chat.ID, responseText); err != nil {
				a.log.Error("Failed to send telegram message", "error", err)
			}
		}
	}
}

// Post sends an unsolicited message to a chat while the adapter is running.
func (a *Adapter) Post(ctx context.Context, chatID string, text string) error {
	a.mu.RLock()
	bot := a.bot
	a.mu.RUnlock()
	if bot == nil {
		return errors.New("telegram channel is not running")
	}

	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return fmt.Errorf("parse telegram chat id %q: %w", chatID, err)
	}

	return a.send(ctx, bot, id, text)
}

// send tries legacy Markdown first, which shares *bold* and _italic_ with
// Slack mrkdwn, and falls back to plain text when Telegram rejects the markup.
func (a *Adapter) send(ctx context.Context, bot *telego.Bot, chatID int64, text string) error {
	_, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeMarkdown))
	if err == nil {
		return nil
	}
	a.log.Debug("Markdown send rejected, retrying as plain text", "chat_id", chatID, "error", err)

	if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// toInbound maps a Telegram message into an inbound bus message. Bot
// commands (/report) and @username mentions count as addressing the bot.
func toInbound(message telego.Message, botUsername string, botID int64) (bus.InboundMessage, bool) {
	content := strings.TrimSpace(message.Text)
	if content == "" || message.From == nil {
		return bus.InboundMessage{}, false
	}

	mention := false
	if strings.HasPrefix(content, "/") {
		mention = true
		content = strings.TrimPrefix(content, "/")
	}
	if botUsername != "" {
		handle := "@" + botUsername
		if strings.Contains(strings.ToLower(content), strings.ToLower(handle)) {
			mention = true
			content = removeFold(content, handle)
		}
	}
	if reply := message.ReplyToMessage; reply != nil && reply.From != nil && reply.From.ID == botID {
		mention = true
	}

	return bus.InboundMessage{
		Channel:  channelName,
		SenderID: strconv.FormatInt(message.From.ID, 10),
		ChatID:   strconv.FormatInt(message.Chat.ID, 10),
		Content:  strings.Join(strings.Fields(content), " "),
		Mention:  mention,
		Direct:   message.Chat.Type == telego.ChatTypePrivate,
		Metadata: map[string]string{
			"message_id":   strconv.Itoa(message.MessageID),
			"channel_name": message.Chat.Title,
		},
	}, true
}

// removeFold deletes every case-insensitive occurrence of sub from s.
func removeFold(s string, sub string) string {
	lowerSub := strings.ToLower(sub)
	var b strings.Builder
	for {
		idx := strings.Index(strings.ToLower(s), lowerSub)
		if idx < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:idx])
		s = s[idx+len(sub):]
	}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= messagePreviewLimit {
		return string(runes)
	}

	return string(runes[:messagePreviewLimit]) + "..."
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot *telego.Bot, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
