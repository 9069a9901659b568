package ports

import (
	"context"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

// --- DRIVEN (Ce dont le cœur a besoin) ---

// RelationshipStore est le stockage des cinq ensembles d'un compte.
// Les écritures sont conditionnelles : AddMember renvoie domain.ErrAlreadyPresent
// si la valeur existe déjà, RemoveMember renvoie domain.ErrNotPresent si elle est absente.
type RelationshipStore interface {
	AddMember(ctx context.Context, set domain.SetName, value string) error
	RemoveMember(ctx context.Context, set domain.SetName, value string) error
	Contains(ctx context.Context, set domain.SetName, value string) (bool, error)
	AllMembers(ctx context.Context, set domain.SetName) ([]string, error)
}

// TrackedAccountStore est le cache des identités des pairs, indexé par userId.
type TrackedAccountStore interface {
	Get(ctx context.Context, userID string) (*domain.TrackedAccount, error) // nil si absent
	Put(ctx context.Context, account *domain.TrackedAccount) error
	BatchGet(ctx context.Context, userIDs []string) (map[string]*domain.TrackedAccount, error)
}

// AccountSettings porte l'identité propre du compte et son drapeau public.
type AccountSettings interface {
	Self(ctx context.Context) (domain.AccountIdentity, error)
	SaveSelf(ctx context.Context, identity domain.AccountIdentity) error
	IsPublic(ctx context.Context) (bool, error)
	SetPublic(ctx context.Context, public bool) error
}

// PostLog et FeedLog sont des journaux append-only triés par (timestamp, id).
// Les écritures sont indexées par l'ID de l'élément : une relivraison écrase.
type PostLog interface {
	Append(ctx context.Context, post *domain.Post) error
	Page(ctx context.Context, after *domain.Cursor, limit int) ([]*domain.Post, error)
}

type FeedLog interface {
	Append(ctx context.Context, entry *domain.FeedEntry) error
	Page(ctx context.Context, after *domain.Cursor, limit int) ([]*domain.FeedEntry, error)
}

// TopicPublisher publie sur les topics possédés par ce compte.
type TopicPublisher interface {
	PublishPost(ctx context.Context, topicID string, event domain.PostEvent) error
	PublishProfile(ctx context.Context, topicID string, identity domain.AccountIdentity) error
}

// TopicKind distingue les deux classes d'événements.
type TopicKind string

const (
	TopicPosts   TopicKind = "posts"
	TopicProfile TopicKind = "profile"
)

// TopicSubscriber abonne ce compte aux topics d'un pair.
type TopicSubscriber interface {
	Subscribe(ctx context.Context, kind TopicKind, topicID, endpointID string) error
}

// PeerClient est l'appel HTTP inter-comptes. Un statut non-2xx est un échec dur.
type PeerClient interface {
	Call(ctx context.Context, originURL, path, bearerToken, method string, body []byte) ([]byte, error)
}

// DispatchGate exécute les appels inter-comptes hors du chemin synchrone.
type DispatchGate interface {
	Enqueue(ctx context.Context, job domain.DispatchJob) error
}

// TokenIssuer signe les jetons portés par nos appels sortants.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// IdentityVerifier extrait l'identité d'un bearer token entrant.
type IdentityVerifier interface {
	Verify(token string) (*domain.AuthenticatedIdentity, error)
}
