// Package eventbus announces completed purchases and reward grants to other services.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"questboard/internal/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Routing keys of the published events.
const (
	KeyPurchased = "shop.purchased"
	KeyRewarded  = "quest.rewarded"
)

// Publisher publishes one event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// Envelope wraps every published payload.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

func newEnvelope(routingKey string, payload any) (Envelope, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("marshalling %s payload: %w", routingKey, err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       routingKey,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("marshalling %s envelope: %w", routingKey, err)
	}
	return env, body, nil
}

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct {
	log *logger.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	env, _, err := newEnvelope(routingKey, payload)
	if err != nil {
		return err
	}
	p.log.Info("event",
		zap.String("id", env.ID),
		zap.String("type", env.Type),
		zap.ByteString("payload", env.Payload))
	return nil
}

// Close does nothing.
func (p *LogPublisher) Close() error {
	return nil
}
