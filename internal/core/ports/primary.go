package ports

import (
	"context"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

// --- DRIVING (Ce que le cœur expose) ---

// FollowService est la machine à états du handshake.
type FollowService interface {
	// ReceiveFollowRequest renvoie nil quand la décision est différée.
	ReceiveFollowRequest(ctx context.Context, caller domain.AuthenticatedIdentity, req domain.FollowRequest) (*domain.FollowResponse, error)
	RespondToFollowRequest(ctx context.Context, caller domain.AuthenticatedIdentity, requesterID string, accept bool) error
	HandleFollowResponse(ctx context.Context, targetID string, resp *domain.FollowResponse) error
	SendFollowRequest(ctx context.Context, caller domain.AuthenticatedIdentity, peer domain.PeerRef) error

	SetPublic(ctx context.Context, caller domain.AuthenticatedIdentity, public bool) error
	Members(ctx context.Context, caller domain.AuthenticatedIdentity, set domain.SetName) (*domain.Members, error)
}

// FanoutService publie et ingère les événements Posts / Profile.
type FanoutService interface {
	CreatePost(ctx context.Context, caller domain.AuthenticatedIdentity, postType domain.PostType, body, mediaURL string) (*domain.Post, error)
	UpdateProfile(ctx context.Context, caller domain.AuthenticatedIdentity, displayName, photoURL string) (*domain.AccountIdentity, error)

	// deliveryTopic est le topic sur lequel l'événement est réellement arrivé.
	IngestPost(ctx context.Context, deliveryTopic string, event domain.PostEvent) (domain.IngestOutcome, error)
	IngestProfile(ctx context.Context, deliveryTopic string, update domain.AccountIdentity) (domain.IngestOutcome, error)
}

// QueryService sert les pages Posts et Feed.
type QueryService interface {
	ListPosts(ctx context.Context, req domain.PageRequest) (*domain.Page[*domain.Post], error)
	ListFeed(ctx context.Context, req domain.PageRequest) (*domain.Page[*domain.FeedEntry], error)
	Identity(ctx context.Context) (domain.AccountIdentity, error)
}
