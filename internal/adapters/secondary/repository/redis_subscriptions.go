package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

// RedisSubscriptionRegistry mémorise les abonnements d'un endpoint (topicId -> kind)
// pour pouvoir les rétablir après un redémarrage.
type RedisSubscriptionRegistry struct {
	client redis.UniversalClient
}

func NewRedisSubscriptionRegistry(client redis.UniversalClient) *RedisSubscriptionRegistry {
	return &RedisSubscriptionRegistry{client: client}
}

func subscriptionsKey(endpointID string) string { return "subscriptions:" + endpointID }

// Record renvoie false si l'abonnement était déjà connu.
func (r *RedisSubscriptionRegistry) Record(ctx context.Context, endpointID string, kind ports.TopicKind, topicID string) (bool, error) {
	created, err := r.client.HSetNX(ctx, subscriptionsKey(endpointID), topicID, string(kind)).Result()
	if err != nil {
		return false, fmt.Errorf("record subscription %s: %w", topicID, err)
	}
	return created, nil
}

func (r *RedisSubscriptionRegistry) All(ctx context.Context, endpointID string) (map[string]ports.TopicKind, error) {
	raw, err := r.client.HGetAll(ctx, subscriptionsKey(endpointID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	out := make(map[string]ports.TopicKind, len(raw))
	for topic, kind := range raw {
		out[topic] = ports.TopicKind(kind)
	}
	return out, nil
}
