package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

// RedisRelationshipRepo range chaque ensemble dans un SET Redis : rel:<storeId>:<set>.
// SADD / SREM renvoient le nombre de membres réellement modifiés, ce qui donne
// gratuitement la sémantique conditionnelle.
type RedisRelationshipRepo struct {
	client  redis.UniversalClient
	storeID string
}

func NewRedisRelationshipRepo(client redis.UniversalClient, storeID string) *RedisRelationshipRepo {
	return &RedisRelationshipRepo{client: client, storeID: storeID}
}

func (r *RedisRelationshipRepo) key(set domain.SetName) string {
	return fmt.Sprintf("rel:%s:%s", r.storeID, set)
}

func (r *RedisRelationshipRepo) AddMember(ctx context.Context, set domain.SetName, value string) error {
	added, err := r.client.SAdd(ctx, r.key(set), value).Result()
	if err != nil {
		return fmt.Errorf("redis sadd %s: %w", set, err)
	}
	if added == 0 {
		return domain.ErrAlreadyPresent
	}
	return nil
}

func (r *RedisRelationshipRepo) RemoveMember(ctx context.Context, set domain.SetName, value string) error {
	removed, err := r.client.SRem(ctx, r.key(set), value).Result()
	if err != nil {
		return fmt.Errorf("redis srem %s: %w", set, err)
	}
	if removed == 0 {
		return domain.ErrNotPresent
	}
	return nil
}

func (r *RedisRelationshipRepo) Contains(ctx context.Context, set domain.SetName, value string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key(set), value).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember %s: %w", set, err)
	}
	return ok, nil
}

func (r *RedisRelationshipRepo) AllMembers(ctx context.Context, set domain.SetName) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.key(set)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", set, err)
	}
	return members, nil
}
