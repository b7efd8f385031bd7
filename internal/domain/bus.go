package domain

import (
	"context"
)

// EventBus defines the interface for publishing simulator events.
// Supports Go channels (in-process) or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// Event bus types.
const (
	BusNone    = "none"
	BusChannel = "channel"
	BusNATS    = "nats"
)

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "none", "channel" or "nats"
	Type string `json:"type" yaml:"type"`

	// Channel settings
	ChannelBufferSize int `json:"channelBufferSize" yaml:"channelBufferSize"`

	// NATS settings
	NATSUrl           string `json:"natsUrl" yaml:"natsUrl"`
	NATSToken         string `json:"natsToken" yaml:"natsToken"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" yaml:"natsReconnectWait"` // seconds

	// NATSSubjectPrefix is prepended to every topic, separated by a dot.
	NATSSubjectPrefix string `json:"natsSubjectPrefix" yaml:"natsSubjectPrefix"`
}

// Topic names for simulator events.
const (
	TopicDocumentParsed    = "dmn.document.parsed"
	TopicDecisionEvaluated = "dmn.decision.evaluated"
)

// DocumentParsedEvent is published after a successful parse.
type DocumentParsedEvent struct {
	RequestID     string `json:"requestId,omitempty"`
	DecisionCount int    `json:"decisionCount"`
	RuleCount     int    `json:"ruleCount"`
	DurationMs    int64  `json:"durationMs"`
}

// DecisionEvaluatedEvent is published after a successful evaluation.
// It never carries the document text.
type DecisionEvaluatedEvent struct {
	EvaluationID       string `json:"evaluationId"`
	RequestID          string `json:"requestId,omitempty"`
	DecisionID         string `json:"decisionId"`
	MatchedRuleIndexes []int  `json:"matchedRuleIndexes"`
	DurationMs         int64  `json:"durationMs"`
}

// Topics for evaluations requested over the bus.
const (
	TopicEvaluationRequested = "dmn.evaluation.requested"
	TopicEvaluationCompleted = "dmn.evaluation.completed"
)

// EvaluationRequestMessage asks the async worker to evaluate a decision.
type EvaluationRequestMessage struct {
	RequestID  string         `json:"requestId"`
	DMNXml     string         `json:"dmnXml"`
	DecisionID string         `json:"decisionId"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// EvaluationCompletedMessage answers an EvaluationRequestMessage. Error is
// set instead of the result fields when evaluation failed.
type EvaluationCompletedMessage struct {
	RequestID          string `json:"requestId"`
	EvaluationID       string `json:"evaluationId"`
	DecisionID         string `json:"decisionId"`
	Result             any    `json:"result,omitempty"`
	MatchedRuleIndexes []int  `json:"matchedRuleIndexes"`
	Error              string `json:"error,omitempty"`
	DurationMs         int64  `json:"durationMs"`
}
