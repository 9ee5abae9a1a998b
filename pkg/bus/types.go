package bus

// InboundMessage is one user message delivered by a channel adapter.
type InboundMessage struct {
	Channel  string `json:"channel"`
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	Content  string `json:"content"`
	// Mention is set when the bot was addressed directly in a shared chat.
	Mention bool `json:"mention,omitempty"`
	// Direct is set for one-to-one conversations with the bot.
	Direct   bool              `json:"direct,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SessionKey identifies the conversation this message belongs to.
func (m InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID + ":" + m.SenderID
}

// Addressed reports whether the bot was explicitly spoken to.
func (m InboundMessage) Addressed() bool {
	return m.Mention || m.Direct
}

type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Empty reports whether there is nothing to deliver.
func (m OutboundMessage) Empty() bool {
	return m.Content == "" && m.Error == ""
}
