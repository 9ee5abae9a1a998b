package telegram

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"bugtriage/pkg/config"

	"github.com/mymmrac/telego"
)

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	if !adapter.senderAllowed("1") {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed("2") {
		t.Fatal("expected sender 2 to be denied")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
}

func TestToInbound(t *testing.T) {
	tests := []struct {
		name        string
		message     telego.Message
		wantContent string
		wantMention bool
		wantDirect  bool
	}{
		{
			name:        "private chat",
			message:     telego.Message{Text: " checkout is broken ", From: &telego.User{ID: 7}, Chat: telego.Chat{ID: 7, Type: telego.ChatTypePrivate}},
			wantContent: "checkout is broken",
			wantDirect:  true,
		},
		{
			name:        "group mention",
			message:     telego.Message{Text: "@TriageBot   report", From: &telego.User{ID: 7}, Chat: telego.Chat{ID: -100, Type: "supergroup"}},
			wantContent: "report",
			wantMention: true,
		},
		{
			name:        "bot command with suffix",
			message:     telego.Message{Text: "/report@triagebot", From: &telego.User{ID: 7}, Chat: telego.Chat{ID: -100, Type: "group"}},
			wantContent: "report",
			wantMention: true,
		},
		{
			name:        "reply to bot",
			message:     telego.Message{Text: "/login", From: &telego.User{ID: 7}, Chat: telego.Chat{ID: -100, Type: "group"}, ReplyToMessage: &telego.Message{From: &telego.User{ID: 99}}},
			wantContent: "login",
			wantMention: true,
		},
		{
			name:        "group chatter",
			message:     telego.Message{Text: "lunch?", From: &telego.User{ID: 7}, Chat: telego.Chat{ID: -100, Type: "group"}},
			wantContent: "lunch?",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := toInbound(tc.message, "TriageBot", 99)
			if !ok {
				t.Fatal("expected message to map")
			}
			if got.Content != tc.wantContent {
				t.Fatalf("content = %q, want %q", got.Content, tc.wantContent)
			}
			if got.Mention != tc.wantMention || got.Direct != tc.wantDirect {
				t.Fatalf("mention/direct = %v/%v, want %v/%v", got.Mention, got.Direct, tc.wantMention, tc.wantDirect)
			}
			if got.Channel != channelName || got.SenderID != "7" {
				t.Fatalf("identity = %+v", got)
			}
		})
	}
}

func TestToInboundSkipsEmpty(t *testing.T) {
	if _, ok := toInbound(telego.Message{Text: "  ", From: &telego.User{ID: 1}}, "bot", 2); ok {
		t.Fatal("expected blank message to be skipped")
	}
	if _, ok := toInbound(telego.Message{Text: "hi"}, "bot", 2); ok {
		t.Fatal("expected message without sender to be skipped")
	}
}

func TestRemoveFold(t *testing.T) {
	if got := removeFold("ping @Bot and @bot", "@BOT"); got != "ping  and " {
		t.Fatalf("removeFold = %q", got)
	}
}

func TestPostRequiresRunningAdapter(t *testing.T) {
	adapter, err := NewAdapter(config.TelegramConfig{Token: "123:abc"}, nil)
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}

	if err := adapter.Post(context.Background(), "1", "hello"); err == nil {
		t.Fatal("expected Post to fail before Run")
	}
}

func TestNewAdapterRequiresToken(t *testing.T) {
	if _, err := NewAdapter(config.TelegramConfig{Token: "  "}, nil); err == nil {
		t.Fatal("expected missing token error")
	}
}

func TestPreviewText(t *testing.T) {
	short := " hello "
	if got := previewText(short); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("previewText long len = %d, want %d", len(got), messagePreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want ellipsis suffix", got)
	}

	accented := previewText(strings.Repeat("é", messagePreviewLimit+5))
	if !utf8.ValidString(accented) || utf8.RuneCountInString(accented) != messagePreviewLimit+3 {
		t.Fatalf("previewText split a multi-byte rune: %q", accented)
	}
}
