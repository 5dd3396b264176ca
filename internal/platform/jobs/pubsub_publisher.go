package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"

	"github.com/RLASH18/abg-prime-v2/internal/services"
)

// PubSubPublisher publishes JSON payloads to a single Pub/Sub topic and waits for the server ack.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// Publish marshals payload and returns the server-assigned message id. Blank attributes are dropped.
func (p *PubSubPublisher) Publish(ctx context.Context, payload any, attrs map[string]string) (string, error) {
	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("pubsub publisher: marshal: %w", err)
	}
	clean := make(map[string]string, len(attrs))
	for key, value := range attrs {
		if v := strings.TrimSpace(value); v != "" {
			clean[key] = v
		}
	}
	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: clean}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("pubsub publisher: publish to %s: %w", p.topic.ID(), err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}

// orderEventMessage is the wire form of services.OrderEvent.
type orderEventMessage struct {
	EventID        string `json:"event_id"`
	Type           string `json:"type"`
	OrderID        int64  `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	PreviousStatus string `json:"previous_status"`
	CurrentStatus  string `json:"current_status"`
	ActorID        int64  `json:"actor_id,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

// OrderEventPublisher emits order status changes for downstream consumers such as reporting.
type OrderEventPublisher struct {
	publisher *PubSubPublisher
	newID     func() string
}

var _ services.OrderEventPublisher = (*OrderEventPublisher)(nil)

func NewOrderEventPublisher(publisher *PubSubPublisher) (*OrderEventPublisher, error) {
	if publisher == nil {
		return nil, errors.New("order event publisher: publisher is required")
	}
	return &OrderEventPublisher{publisher: publisher, newID: func() string { return ulid.Make().String() }}, nil
}

func (p *OrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	msg := orderEventMessage{
		EventID:        p.newID(),
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		PreviousStatus: string(event.PreviousStatus),
		CurrentStatus:  string(event.CurrentStatus),
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	_, err := p.publisher.Publish(ctx, msg, map[string]string{
		"eventId":   msg.EventID,
		"eventType": msg.Type,
		"orderId":   strconv.FormatInt(event.OrderID, 10),
		"status":    msg.CurrentStatus,
	})
	return err
}
