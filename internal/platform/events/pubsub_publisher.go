package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/renewtech/api/internal/services"
)

// eventEnvelope is the wire form of a storefront event.
type eventEnvelope struct {
	Type       string            `json:"type"`
	UserID     string            `json:"userId,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// PubSubEventPublisher publishes storefront lifecycle events to a Pub/Sub topic.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Publish enqueues the event on the configured topic. The event type and
// entity are mirrored into message attributes so subscribers can filter
// without decoding the payload.
func (p *PubSubEventPublisher) Publish(ctx context.Context, event services.StorefrontEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	if strings.TrimSpace(event.Type) == "" {
		return errors.New("pubsub event publisher: event type is required")
	}

	data, err := p.marshal(eventEnvelope{
		Type:       event.Type,
		UserID:     event.UserID,
		EntityID:   event.EntityID,
		OccurredAt: event.OccurredAt.UTC(),
		Attributes: normalizeAttributes(event.Attributes),
	})
	if err != nil {
		return fmt.Errorf("marshal storefront event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "entityId", event.EntityID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish storefront event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

// normalizeAttributes trims event attribute keys and values and drops entries
// whose key trims away entirely. An empty result becomes nil so the envelope
// omits the field.
func normalizeAttributes(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	cleaned := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cleaned[key] = strings.TrimSpace(value)
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

var _ services.EventPublisher = (*PubSubEventPublisher)(nil)
