package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bugtriage/pkg/config"
	providerfantasy "bugtriage/pkg/provider/fantasy"
	provideropenai "bugtriage/pkg/provider/openai"
	"bugtriage/pkg/provider/opencode"
	providertypes "bugtriage/pkg/provider/types"
)

const DefaultProvider = "opencode"

// Client is the LLM backend used to investigate bug reports.
type Client interface {
	Health(ctx context.Context) error
	CreateSession(ctx context.Context, title string) (string, error)
	Prompt(ctx context.Context, sessionID string, prompt string, model string, systemPrompt string) (providertypes.PromptResult, error)
}

func New(cfg *config.Config) (Client, error) {
	providerID := strings.TrimSpace(cfg.Investigation.Provider)
	if providerID == "" {
		providerID = DefaultProvider
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving provider client", "provider", providerID)

	switch providerID {
	case "opencode":
		return opencode.New(cfg)
	case "openai":
		return provideropenai.New(cfg)
	case "fantasy":
		return providerfantasy.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
