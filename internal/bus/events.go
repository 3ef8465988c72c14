package bus

import "time"

// InboundMessage is one user utterance arriving from a channel, already
// mapped to the identity triple the orchestrator partitions on.
type InboundMessage struct {
	Channel       string
	UserID        string
	ChatID        string
	ProfileID     string
	CharacterID   string
	CharacterName string
	Content       string
	Timestamp     time.Time
	Metadata      map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	ReplyTo  string
	Metadata map[string]any
}
