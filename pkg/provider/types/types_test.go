package types

import "testing"

func TestAttribution(t *testing.T) {
	tests := []struct {
		name string
		meta PromptMetadata
		want string
	}{
		{name: "model and provider", meta: PromptMetadata{Provider: "openai", Model: "gpt-5.2"}, want: "gpt-5.2 via openai"},
		{name: "model only", meta: PromptMetadata{Model: " gpt-5.2 "}, want: "gpt-5.2"},
		{name: "provider only", meta: PromptMetadata{Provider: "opencode"}, want: "opencode"},
		{name: "unknown", meta: PromptMetadata{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.Attribution(); got != tt.want {
				t.Fatalf("Attribution() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenUsageIsZero(t *testing.T) {
	if !(TokenUsage{}).IsZero() {
		t.Fatal("expected empty usage to be zero")
	}
	if (TokenUsage{CacheReadTokens: 1}).IsZero() {
		t.Fatal("expected cache reads to count as usage")
	}
}
