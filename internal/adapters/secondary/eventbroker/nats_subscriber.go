package eventbroker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

// SubscriptionRegistry persiste les abonnements d'un endpoint.
type SubscriptionRegistry interface {
	Record(ctx context.Context, endpointID string, kind ports.TopicKind, topicID string) (bool, error)
	All(ctx context.Context, endpointID string) (map[string]ports.TopicKind, error)
}

// NatsSubscriber abonne l'endpoint de ce compte aux topics des pairs.
// Le queue group est l'endpointId : plusieurs instances d'un même compte
// se partagent les livraisons au lieu de les dupliquer.
type NatsSubscriber struct {
	nc       *nats.Conn
	registry SubscriptionRegistry
	handlers map[ports.TopicKind]nats.MsgHandler

	mu     sync.Mutex
	active map[string]*nats.Subscription
}

func NewNatsSubscriber(nc *nats.Conn, registry SubscriptionRegistry, handlers map[ports.TopicKind]nats.MsgHandler) *NatsSubscriber {
	return &NatsSubscriber{
		nc:       nc,
		registry: registry,
		handlers: handlers,
		active:   make(map[string]*nats.Subscription),
	}
}

// Subscribe est idempotent : un second appel pour le même topic ne crée pas de doublon.
func (s *NatsSubscriber) Subscribe(ctx context.Context, kind ports.TopicKind, topicID, endpointID string) error {
	if topicID == "" {
		return domain.Malformed(fmt.Errorf("empty %s topic", kind))
	}
	if _, err := s.registry.Record(ctx, endpointID, kind, topicID); err != nil {
		return err
	}
	return s.attach(kind, topicID, endpointID)
}

// Resubscribe rétablit au démarrage tous les abonnements enregistrés.
func (s *NatsSubscriber) Resubscribe(ctx context.Context, endpointID string) error {
	subs, err := s.registry.All(ctx, endpointID)
	if err != nil {
		return err
	}
	for topicID, kind := range subs {
		if err := s.attach(kind, topicID, endpointID); err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "🎧 Restored topic subscriptions", "count", len(subs))
	return nil
}

func (s *NatsSubscriber) attach(kind ports.TopicKind, topicID, endpointID string) error {
	handler, ok := s.handlers[kind]
	if !ok {
		return fmt.Errorf("no handler for %s topics", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[topicID]; exists {
		return nil
	}
	sub, err := s.nc.QueueSubscribe(topicID, endpointID, handler)
	if err != nil {
		return &domain.TransportError{Origin: "nats", Path: topicID, Err: err}
	}
	// L'intérêt doit être enregistré côté serveur avant de rendre la main
	if err := s.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return &domain.TransportError{Origin: "nats", Path: topicID, Err: err}
	}
	s.active[topicID] = sub
	slog.Debug("🎧 Subscribed to topic", "topic", topicID, "kind", kind)
	return nil
}

// Close détache proprement tous les abonnements (Drain).
func (s *NatsSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, sub := range s.active {
		if err := sub.Drain(); err != nil {
			slog.Warn("Failed to drain subscription", "topic", topic, "error", err)
		}
	}
	s.active = make(map[string]*nats.Subscription)
}
