package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wheaney/social-freedom-sub000/internal/adapters/wire"
	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

// NatsPublisher publie sur les topics possédés par ce compte (un sujet NATS par topic).
type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(nc *nats.Conn) *NatsPublisher {
	return &NatsPublisher{nc: nc}
}

func (p *NatsPublisher) PublishPost(ctx context.Context, topicID string, event domain.PostEvent) error {
	if err := p.publish(ctx, topicID, wire.FromPostEvent(event)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "📢 Publishing post event with trace context", "topic", topicID, "post_id", event.ID)
	return nil
}

func (p *NatsPublisher) PublishProfile(ctx context.Context, topicID string, identity domain.AccountIdentity) error {
	if err := p.publish(ctx, topicID, wire.FromAccount(identity)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "📢 Publishing profile event with trace context", "topic", topicID)
	return nil
}

func (p *NatsPublisher) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	// Le trace ID de la requête HTTP suit le message jusqu'aux followers
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := p.nc.PublishMsg(msg); err != nil {
		return &domain.TransportError{Origin: "nats", Path: subject, Err: err}
	}
	return nil
}
