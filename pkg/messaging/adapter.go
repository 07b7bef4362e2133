package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BrokerPublisher wraps payloads in a Message and writes them to one channel.
type BrokerPublisher struct {
	broker  Broker
	channel string
	now     func() time.Time
}

func NewBrokerPublisher(broker Broker, channel string) Publisher {
	return &BrokerPublisher{broker: broker, channel: channel, now: time.Now}
}

func (p *BrokerPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	data, err := json.Marshal(Message{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: p.now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.broker.Publish(ctx, p.channel, data)
}

// Consume decodes every message received on channel and hands it to handler
// until ctx is done. Handler errors are reported through onError.
func Consume(ctx context.Context, broker Broker, channel string, handler func(Message) error, onError func(error)) error {
	msgChan, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	go func() {
		for raw := range msgChan {
			var msg Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				onError(fmt.Errorf("failed to decode message: %w", err))
				continue
			}
			if err := handler(msg); err != nil {
				onError(err)
			}
		}
	}()

	return nil
}
