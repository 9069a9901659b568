package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

// trackedAccountDoc est la forme stockée d'un compte suivi.
type trackedAccountDoc struct {
	UserID         string    `json:"userId"`
	APIOrigin      string    `json:"apiOrigin"`
	PostsTopicID   string    `json:"postsTopicId"`
	ProfileTopicID string    `json:"profileTopicId"`
	DisplayName    string    `json:"displayName"`
	PhotoURL       string    `json:"photoUrl,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toDoc(a domain.AccountIdentity) trackedAccountDoc {
	return trackedAccountDoc{
		UserID:         a.UserID,
		APIOrigin:      a.APIOrigin,
		PostsTopicID:   a.PostsTopicID,
		ProfileTopicID: a.ProfileTopicID,
		DisplayName:    a.DisplayName,
		PhotoURL:       a.PhotoURL,
	}
}

func (d trackedAccountDoc) identity() domain.AccountIdentity {
	return domain.AccountIdentity{
		UserID:         d.UserID,
		APIOrigin:      d.APIOrigin,
		PostsTopicID:   d.PostsTopicID,
		ProfileTopicID: d.ProfileTopicID,
		DisplayName:    d.DisplayName,
		PhotoURL:       d.PhotoURL,
	}
}

// RedisTrackedAccountRepo garde un document JSON par pair : tracked:<userId>.
type RedisTrackedAccountRepo struct {
	client redis.UniversalClient
}

func NewRedisTrackedAccountRepo(client redis.UniversalClient) *RedisTrackedAccountRepo {
	return &RedisTrackedAccountRepo{client: client}
}

func trackedKey(userID string) string { return "tracked:" + userID }

func (r *RedisTrackedAccountRepo) Get(ctx context.Context, userID string) (*domain.TrackedAccount, error) {
	raw, err := r.client.Get(ctx, trackedKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get tracked account %s: %w", userID, err)
	}
	return decodeTracked(raw)
}

func (r *RedisTrackedAccountRepo) Put(ctx context.Context, account *domain.TrackedAccount) error {
	doc := toDoc(account.AccountIdentity)
	doc.UpdatedAt = account.UpdatedAt
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, trackedKey(account.UserID), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set tracked account %s: %w", account.UserID, err)
	}
	return nil
}

// BatchGet résout plusieurs comptes en un seul MGET. Les absents sont omis.
func (r *RedisTrackedAccountRepo) BatchGet(ctx context.Context, userIDs []string) (map[string]*domain.TrackedAccount, error) {
	out := make(map[string]*domain.TrackedAccount, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = trackedKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget tracked accounts: %w", err)
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		acc, err := decodeTracked([]byte(s))
		if err != nil {
			return nil, err
		}
		out[acc.UserID] = acc
	}
	return out, nil
}

func decodeTracked(raw []byte) (*domain.TrackedAccount, error) {
	var doc trackedAccountDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode tracked account: %w", err)
	}
	return &domain.TrackedAccount{AccountIdentity: doc.identity(), UpdatedAt: doc.UpdatedAt}, nil
}

const (
	selfKey   = "account:self"
	publicKey = "account:public"
)

// RedisAccountSettings porte l'identité propre et le drapeau public.
type RedisAccountSettings struct {
	client redis.UniversalClient
}

func NewRedisAccountSettings(client redis.UniversalClient) *RedisAccountSettings {
	return &RedisAccountSettings{client: client}
}

// EnsureSelf initialise l'identité et le drapeau au premier démarrage.
// Un profil déjà modifié par le propriétaire n'est pas écrasé par la config.
func (s *RedisAccountSettings) EnsureSelf(ctx context.Context, identity domain.AccountIdentity, public bool) error {
	raw, err := json.Marshal(toDoc(identity))
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.SetNX(ctx, selfKey, raw, 0)
	pipe.SetNX(ctx, publicKey, public, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed account settings: %w", err)
	}
	return nil
}

func (s *RedisAccountSettings) Self(ctx context.Context) (domain.AccountIdentity, error) {
	raw, err := s.client.Get(ctx, selfKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AccountIdentity{}, fmt.Errorf("account identity: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.AccountIdentity{}, fmt.Errorf("redis get account identity: %w", err)
	}
	var doc trackedAccountDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.AccountIdentity{}, fmt.Errorf("decode account identity: %w", err)
	}
	return doc.identity(), nil
}

func (s *RedisAccountSettings) SaveSelf(ctx context.Context, identity domain.AccountIdentity) error {
	raw, err := json.Marshal(toDoc(identity))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, selfKey, raw, 0).Err()
}

func (s *RedisAccountSettings) IsPublic(ctx context.Context) (bool, error) {
	public, err := s.client.Get(ctx, publicKey).Bool()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return public, err
}

func (s *RedisAccountSettings) SetPublic(ctx context.Context, public bool) error {
	return s.client.Set(ctx, publicKey, public, 0).Err()
}
