package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/dmnsim/internal/domain"
)

// New creates an event bus based on configuration.
// Type "none" returns a nil bus; callers skip publishing.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case domain.BusNone, "":
		return nil, nil

	case domain.BusChannel:
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case domain.BusNATS:
		b, err := NewNATSBus(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishJSON marshals event and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}
	return b.Publish(ctx, topic, payload)
}
