package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"VaultAccountant/internal/event"
)

// PublishableEvent is a committed engine event ready for outbound
// publishing, flattened to a JSON wire shape.
type PublishableEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Vault          *string         `json:"vault,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      []byte          `json:"state_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// PublishableFromEnvelope flattens an audit envelope for the wire.
func PublishableFromEnvelope(env *event.Envelope) PublishableEvent {
	return PublishableEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Vault:          env.Vault,
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		Timestamp:      env.Timestamp,
	}
}

// Publisher publishes committed events to NATS for downstream consumers.
// Best-effort: a failed publish is logged and skipped, the audit log stays
// authoritative.
// Subjects: vault.accountant.events.{event_type}[.{vault}]
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
	log       zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, inputChan: inputChan, log: log}
}

// Run drains the publish channel until ctx is cancelled or it closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, evt); err != nil {
				p.log.Warn().
					Err(err).
					Int64("sequence", evt.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("vault.accountant.events.%s", evt.EventType)
	if evt.Vault != nil {
		subject = fmt.Sprintf("%s.%s", subject, *evt.Vault)
	}

	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "VAULT_ACCOUNTANT_EVENTS",
		Subjects:  []string{"vault.accountant.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Info().Str("stream", "VAULT_ACCOUNTANT_EVENTS").Msg("stream ensured")
	return nil
}
