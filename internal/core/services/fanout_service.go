package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

// FanoutService publie nos événements et ingère ceux des comptes suivis.
type FanoutService struct {
	rel       *Relationships
	tracked   ports.TrackedAccountStore
	settings  ports.AccountSettings
	posts     ports.PostLog
	feed      ports.FeedLog
	publisher ports.TopicPublisher
}

func NewFanoutService(
	store ports.RelationshipStore,
	tracked ports.TrackedAccountStore,
	settings ports.AccountSettings,
	posts ports.PostLog,
	feed ports.FeedLog,
	publisher ports.TopicPublisher,
) *FanoutService {
	return &FanoutService{
		rel:       NewRelationships(store),
		tracked:   tracked,
		settings:  settings,
		posts:     posts,
		feed:      feed,
		publisher: publisher,
	}
}

var _ ports.FanoutService = (*FanoutService)(nil)

// --- PUBLICATION ---

func (s *FanoutService) CreatePost(ctx context.Context, caller domain.AuthenticatedIdentity, postType domain.PostType, body, mediaURL string) (*domain.Post, error) {
	self, err := s.settings.Self(ctx)
	if err != nil {
		return nil, err
	}
	if caller.UserID != self.UserID {
		return nil, fmt.Errorf("%w: only the owner can post", domain.ErrUnauthorized)
	}

	post := domain.NewPost(self.UserID, postType, body, mediaURL)

	// 1. Journal local (source de vérité)
	if err := s.posts.Append(ctx, post); err != nil {
		return nil, fmt.Errorf("append post: %w", err)
	}

	// 2. Fan-out vers les followers via notre topic Posts
	if err := s.publisher.PublishPost(ctx, self.PostsTopicID, post.Event()); err != nil {
		return nil, fmt.Errorf("publish post %s: %w", post.ID, err)
	}

	slog.InfoContext(ctx, "📢 Post published", "post_id", post.ID, "topic", self.PostsTopicID)
	return post, nil
}

func (s *FanoutService) UpdateProfile(ctx context.Context, caller domain.AuthenticatedIdentity, displayName, photoURL string) (*domain.AccountIdentity, error) {
	self, err := s.settings.Self(ctx)
	if err != nil {
		return nil, err
	}
	if caller.UserID != self.UserID {
		return nil, fmt.Errorf("%w: only the owner can edit the profile", domain.ErrUnauthorized)
	}

	updated := self.WithProfile(displayName, photoURL)
	if err := s.settings.SaveSelf(ctx, updated); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	if err := s.publisher.PublishProfile(ctx, updated.ProfileTopicID, updated); err != nil {
		return nil, fmt.Errorf("publish profile: %w", err)
	}

	slog.InfoContext(ctx, "📢 Profile update published", "topic", updated.ProfileTopicID)
	return &updated, nil
}

// --- INGESTION (côté follower) ---

func (s *FanoutService) IngestPost(ctx context.Context, deliveryTopic string, event domain.PostEvent) (domain.IngestOutcome, error) {
	outcome, err := s.authenticate(ctx, event.UserID, false, func(acc *domain.TrackedAccount) string {
		return acc.PostsTopicID
	}, deliveryTopic)
	if err != nil || outcome != domain.OutcomeIngested {
		return outcome, err
	}

	// Indexé par l'ID du post : une double livraison écrase, elle n'ajoute pas
	if err := s.feed.Append(ctx, domain.NewFeedEntry(event)); err != nil {
		return "", fmt.Errorf("append feed entry %s: %w", event.ID, err)
	}
	return domain.OutcomeIngested, nil
}

func (s *FanoutService) IngestProfile(ctx context.Context, deliveryTopic string, update domain.AccountIdentity) (domain.IngestOutcome, error) {
	var cached *domain.TrackedAccount
	outcome, err := s.authenticate(ctx, update.UserID, true, func(acc *domain.TrackedAccount) string {
		cached = acc
		return acc.ProfileTopicID
	}, deliveryTopic)
	if err != nil || outcome != domain.OutcomeIngested {
		return outcome, err
	}

	cached.ApplyProfile(update)
	if err := s.tracked.Put(ctx, cached); err != nil {
		return "", fmt.Errorf("update tracked account %s: %w", update.UserID, err)
	}
	return domain.OutcomeIngested, nil
}

// authenticate applique les deux filtres d'ingestion : l'émetteur doit être suivi,
// et le topic de livraison doit être celui mémorisé à l'établissement du follow.
// Les profils des demandes en attente sont aussi acceptés, puisqu'on s'est abonné à
// leur topic Profile dès la réception de la demande. Écart volontaire avec la règle
// "Following seulement", cf. DESIGN.md, Open question decisions, point 4.
// Limite connue : ce n'est pas une vérification cryptographique.
func (s *FanoutService) authenticate(ctx context.Context, ownerID string, allowPending bool, topicOf func(*domain.TrackedAccount) string, deliveryTopic string) (domain.IngestOutcome, error) {
	var (
		following, pending bool
		account            *domain.TrackedAccount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		following, err = s.rel.Contains(gctx, domain.SetFollowing, ownerID)
		return err
	})
	if allowPending {
		g.Go(func() (err error) {
			pending, err = s.rel.Contains(gctx, domain.SetIncomingRequests, ownerID)
			return err
		})
	}
	g.Go(func() (err error) {
		account, err = s.tracked.Get(gctx, ownerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("resolve ingest facts: %w", err)
	}

	l := slog.With("owner_id", ownerID, "topic", deliveryTopic)
	if !following && !pending {
		l.WarnContext(ctx, "Discarding event from account we do not follow")
		return domain.OutcomeNotFollowing, nil
	}
	if account == nil || topicOf(account) != deliveryTopic {
		l.WarnContext(ctx, "Discarding event delivered on an unexpected topic")
		return domain.OutcomeTopicMismatch, nil
	}
	return domain.OutcomeIngested, nil
}
