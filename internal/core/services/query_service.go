package services

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

// QueryService sert les journaux Posts et Feed page par page.
type QueryService struct {
	rel      *Relationships
	tracked  ports.TrackedAccountStore
	settings ports.AccountSettings
	posts    ports.PostLog
	feed     ports.FeedLog
	pageSize int
}

func NewQueryService(
	store ports.RelationshipStore,
	tracked ports.TrackedAccountStore,
	settings ports.AccountSettings,
	posts ports.PostLog,
	feed ports.FeedLog,
	pageSize int,
) *QueryService {
	if pageSize <= 0 {
		pageSize = domain.DefaultPageSize
	}
	return &QueryService{
		rel:      NewRelationships(store),
		tracked:  tracked,
		settings: settings,
		posts:    posts,
		feed:     feed,
		pageSize: pageSize,
	}
}

var _ ports.QueryService = (*QueryService)(nil)

func (s *QueryService) Identity(ctx context.Context) (domain.AccountIdentity, error) {
	return s.settings.Self(ctx)
}

// ListPosts est réservé au propriétaire et à ses followers.
func (s *QueryService) ListPosts(ctx context.Context, req domain.PageRequest) (*domain.Page[*domain.Post], error) {
	self, err := s.settings.Self(ctx)
	if err != nil {
		return nil, err
	}
	if req.Caller != self.UserID {
		follower, err := s.rel.Contains(ctx, domain.SetFollowers, req.Caller)
		if err != nil {
			return nil, err
		}
		if !follower {
			return nil, fmt.Errorf("%w: posts are visible to followers only", domain.ErrUnauthorized)
		}
	}

	after, err := domain.ParseCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	items, err := s.posts.Page(ctx, after, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("page posts: %w", err)
	}

	page := &domain.Page[*domain.Post]{Items: items, Accounts: map[string]domain.AccountIdentity{}}
	if len(items) > 0 {
		last := items[len(items)-1]
		page.NextCursor = domain.SortKey(last.Timestamp, last.ID)
		if !lo.Contains(req.CachedUserIDs, self.UserID) {
			page.Accounts[self.UserID] = self
		}
	}
	return page, nil
}

// ListFeed est réservé au propriétaire.
func (s *QueryService) ListFeed(ctx context.Context, req domain.PageRequest) (*domain.Page[*domain.FeedEntry], error) {
	self, err := s.settings.Self(ctx)
	if err != nil {
		return nil, err
	}
	if req.Caller != self.UserID {
		return nil, fmt.Errorf("%w: the feed is owner-only", domain.ErrUnauthorized)
	}

	after, err := domain.ParseCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	items, err := s.feed.Page(ctx, after, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("page feed: %w", err)
	}

	page := &domain.Page[*domain.FeedEntry]{Items: items, Accounts: map[string]domain.AccountIdentity{}}
	if len(items) == 0 {
		return page, nil
	}
	last := items[len(items)-1]
	page.NextCursor = domain.SortKey(last.Timestamp, last.ID)

	// On n'hydrate que les comptes que le client ne connaît pas déjà
	referenced := lo.Uniq(lo.Map(items, func(e *domain.FeedEntry, _ int) string { return e.UserID }))
	missing, _ := lo.Difference(referenced, req.CachedUserIDs)
	if len(missing) == 0 {
		return page, nil
	}
	accounts, err := s.tracked.BatchGet(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("resolve feed accounts: %w", err)
	}
	for id, acc := range accounts {
		page.Accounts[id] = acc.AccountIdentity
	}
	return page, nil
}
