// Package types holds the provider-neutral shapes exchanged between the
// investigation layer and LLM backends.
package types

import "strings"

// PromptResult is one model answer to an investigation prompt.
type PromptResult struct {
	Text     string
	Metadata PromptMetadata
}

// PromptMetadata identifies which backend produced an answer.
type PromptMetadata struct {
	Provider string
	Model    string
	Usage    *TokenUsage
}

// Attribution names the model behind an analysis, e.g. "gpt-5.2 via openai".
// It is empty when neither provider nor model is known.
func (m PromptMetadata) Attribution() string {
	provider := strings.TrimSpace(m.Provider)
	model := strings.TrimSpace(m.Model)
	switch {
	case model != "" && provider != "":
		return model + " via " + provider
	case model != "":
		return model
	default:
		return provider
	}
}

// TokenUsage is the token accounting reported for a prompt.
type TokenUsage struct {
	InputTokens         int64
	OutputTokens        int64
	TotalTokens         int64
	ReasoningTokens     int64
	CacheCreationTokens int64
	CacheReadTokens     int64
}

func (u TokenUsage) IsZero() bool {
	return u == TokenUsage{}
}

// SessionCloser is implemented by clients that keep conversation history
// in process. Investigations close their session once the finding is built.
type SessionCloser interface {
	CloseSession(sessionID string)
}
