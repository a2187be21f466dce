package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher defines the interface for publishing messages
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Message is the envelope relayed to live-socket subscribers.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ConversationChannel is the channel carrying realtime events of one
// conversation.
func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}
