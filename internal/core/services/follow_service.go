package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

// FollowService implémente ports.FollowService : le handshake inter-comptes.
// Aucun état partagé en mémoire, tout passe par les stores.
type FollowService struct {
	rel        *Relationships
	tracked    ports.TrackedAccountStore
	settings   ports.AccountSettings
	subscriber ports.TopicSubscriber
	gate       ports.DispatchGate
	tokens     ports.TokenIssuer
}

func NewFollowService(
	store ports.RelationshipStore,
	tracked ports.TrackedAccountStore,
	settings ports.AccountSettings,
	subscriber ports.TopicSubscriber,
	gate ports.DispatchGate,
	tokens ports.TokenIssuer,
) *FollowService {
	return &FollowService{
		rel:        NewRelationships(store),
		tracked:    tracked,
		settings:   settings,
		subscriber: subscriber,
		gate:       gate,
		tokens:     tokens,
	}
}

var _ ports.FollowService = (*FollowService)(nil)

// --- CÔTÉ CIBLE ---

func (s *FollowService) ReceiveFollowRequest(ctx context.Context, caller domain.AuthenticatedIdentity, req domain.FollowRequest) (*domain.FollowResponse, error) {
	requester := req.Requester
	if caller.UserID != requester.UserID {
		return nil, fmt.Errorf("%w: token subject %q does not match requester %q", domain.ErrUnauthorized, caller.UserID, requester.UserID)
	}

	// 1. Toutes les lectures en parallèle, décision ensuite
	var (
		following, public, rejected bool
		self                        domain.AccountIdentity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		following, err = s.rel.Contains(gctx, domain.SetFollowing, requester.UserID)
		return err
	})
	g.Go(func() (err error) {
		public, err = s.settings.IsPublic(gctx)
		return err
	})
	g.Go(func() (err error) {
		self, err = s.settings.Self(gctx)
		return err
	})
	g.Go(func() (err error) {
		rejected, err = s.rel.Contains(gctx, domain.SetRejectedRequests, requester.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve follow request facts: %w", err)
	}

	if requester.UserID == self.UserID {
		return nil, domain.Malformed(fmt.Errorf("account %q cannot follow itself", self.UserID))
	}

	l := slog.With("requester_id", requester.UserID)

	// 2a. Déjà refusé : on ne réenregistre rien
	if rejected {
		l.InfoContext(ctx, "🚫 Follow request from previously rejected account")
		return domain.Reject(), nil
	}

	tracked := domain.NewTrackedAccount(requester)

	// 2b. Acceptation automatique
	if public || following {
		w, wctx := errgroup.WithContext(ctx)
		w.Go(func() error { return s.rel.Add(wctx, domain.SetFollowing, requester.UserID) })
		w.Go(func() error { return s.rel.Add(wctx, domain.SetFollowers, requester.UserID) })
		// Une demande restée en attente d'un appel précédent ne doit pas coexister avec l'acceptation
		w.Go(func() error { return s.rel.Remove(wctx, domain.SetIncomingRequests, requester.UserID) })
		w.Go(func() error { return s.tracked.Put(wctx, tracked) })
		w.Go(func() error {
			return s.subscriber.Subscribe(wctx, ports.TopicProfile, requester.ProfileTopicID, self.UserID)
		})
		w.Go(func() error {
			return s.subscriber.Subscribe(wctx, ports.TopicPosts, requester.PostsTopicID, self.UserID)
		})
		if err := w.Wait(); err != nil {
			return nil, fmt.Errorf("auto-accept follow request: %w", err)
		}
		l.InfoContext(ctx, "✅ Follow request auto-accepted", "public", public, "already_following", following)
		return domain.Accept(self), nil
	}

	// 2c. Décision différée : on n'annonce "soumis" qu'une fois la demande enregistrée
	w, wctx := errgroup.WithContext(ctx)
	w.Go(func() error { return s.rel.Add(wctx, domain.SetIncomingRequests, requester.UserID) })
	w.Go(func() error { return s.tracked.Put(wctx, tracked) })
	w.Go(func() error {
		return s.subscriber.Subscribe(wctx, ports.TopicProfile, requester.ProfileTopicID, self.UserID)
	})
	if err := w.Wait(); err != nil {
		return nil, fmt.Errorf("store pending follow request: %w", err)
	}
	l.InfoContext(ctx, "📥 Follow request stored for owner decision")
	return nil, nil
}

func (s *FollowService) RespondToFollowRequest(ctx context.Context, caller domain.AuthenticatedIdentity, requesterID string, accept bool) error {
	self, err := s.requireOwner(ctx, caller)
	if err != nil {
		return err
	}

	var (
		pending, public, following bool
		account                    *domain.TrackedAccount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pending, err = s.rel.Contains(gctx, domain.SetIncomingRequests, requesterID)
		return err
	})
	g.Go(func() (err error) {
		account, err = s.tracked.Get(gctx, requesterID)
		return err
	})
	g.Go(func() (err error) {
		public, err = s.settings.IsPublic(gctx)
		return err
	})
	g.Go(func() (err error) {
		following, err = s.rel.Contains(gctx, domain.SetFollowing, requesterID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("resolve follow response facts: %w", err)
	}

	// 1-2. Jamais deviner : on remonte les faits observés
	if !pending {
		return domain.NewStaleProtocolState("respond-to-follow-request", map[string]any{
			"requesterId":     requesterID,
			"incomingRequest": false,
		})
	}
	if account == nil {
		return domain.NewStaleProtocolState("respond-to-follow-request", map[string]any{
			"requesterId":     requesterID,
			"incomingRequest": true,
			"trackedAccount":  false,
		})
	}

	token, err := s.tokens.Issue(self.UserID)
	if err != nil {
		return fmt.Errorf("issue peer token: %w", err)
	}

	// 3. Verdict envoyé au demandeur via la gate asynchrone
	verdict := domain.Reject()
	if accept {
		verdict = domain.Accept(self)
	}
	if err := s.gate.Enqueue(ctx, domain.DispatchJob{
		ID:          domain.VerdictJobID(self.UserID, requesterID, accept),
		Kind:        domain.JobFollowResponse,
		PeerUserID:  requesterID,
		OriginURL:   account.APIOrigin,
		Path:        domain.PathFollowRequestResponse,
		BearerToken: token,
		Method:      http.MethodPost,
		Payload:     verdict,
	}); err != nil {
		return fmt.Errorf("enqueue follow verdict: %w", err)
	}

	// 4. Réciprocité : on tente de suivre en retour si on ne le fait pas déjà
	if accept && !public && !following {
		if err := s.enqueueFollowRequest(ctx, self, token, domain.PeerRef{UserID: requesterID, APIOrigin: account.APIOrigin}); err != nil {
			return fmt.Errorf("reciprocal follow request: %w", err)
		}
	}

	// 5-6. Mutations indépendantes
	w, wctx := errgroup.WithContext(ctx)
	if accept {
		w.Go(func() error { return s.rel.Add(wctx, domain.SetFollowers, requesterID) })
	} else {
		w.Go(func() error { return s.rel.Add(wctx, domain.SetRejectedRequests, requesterID) })
	}
	w.Go(func() error { return s.rel.Remove(wctx, domain.SetIncomingRequests, requesterID) })
	if err := w.Wait(); err != nil {
		return fmt.Errorf("record follow verdict: %w", err)
	}

	slog.InfoContext(ctx, "📤 Follow request resolved", "requester_id", requesterID, "accepted", accept)
	return nil
}

// --- CÔTÉ DEMANDEUR ---

func (s *FollowService) SendFollowRequest(ctx context.Context, caller domain.AuthenticatedIdentity, peer domain.PeerRef) error {
	self, err := s.requireOwner(ctx, caller)
	if err != nil {
		return err
	}
	peer.UserID = strings.TrimSpace(peer.UserID)
	peer.APIOrigin = strings.TrimSpace(peer.APIOrigin)
	if peer.UserID == "" || peer.APIOrigin == "" {
		return domain.Malformed(fmt.Errorf("peer userId and apiOrigin are required"))
	}
	if peer.UserID == self.UserID {
		return domain.Malformed(fmt.Errorf("account %q cannot follow itself", self.UserID))
	}

	following, err := s.rel.Contains(ctx, domain.SetFollowing, peer.UserID)
	if err != nil {
		return err
	}
	if following {
		slog.DebugContext(ctx, "Already following peer, nothing to send", "peer_id", peer.UserID)
		return nil
	}

	token, err := s.tokens.Issue(self.UserID)
	if err != nil {
		return fmt.Errorf("issue peer token: %w", err)
	}
	return s.enqueueFollowRequest(ctx, self, token, peer)
}

// enqueueFollowRequest enregistre la demande sortante puis confie l'appel à la gate.
// La réponse est routée vers HandleFollowResponse par le worker.
func (s *FollowService) enqueueFollowRequest(ctx context.Context, self domain.AccountIdentity, token string, peer domain.PeerRef) error {
	if err := s.rel.Add(ctx, domain.SetOutgoingRequests, peer.UserID); err != nil {
		return err
	}
	err := s.gate.Enqueue(ctx, domain.DispatchJob{
		ID:          domain.RequestJobID(self.UserID, peer.UserID),
		Kind:        domain.JobFollowRequest,
		PeerUserID:  peer.UserID,
		OriginURL:   peer.APIOrigin,
		Path:        domain.PathFollowRequest,
		BearerToken: token,
		Method:      http.MethodPost,
		Payload:     domain.FollowRequest{Requester: self},
	})
	if err != nil {
		return fmt.Errorf("enqueue follow request: %w", err)
	}
	slog.InfoContext(ctx, "📨 Follow request queued", "peer_id", peer.UserID, "origin", peer.APIOrigin)
	return nil
}

// HandleFollowResponse applique le verdict d'une cible. Un accept est appliqué même sans demande
// sortante en attente, cf. DESIGN.md, Open question decisions, point 12.
func (s *FollowService) HandleFollowResponse(ctx context.Context, targetID string, resp *domain.FollowResponse) error {
	if resp == nil {
		// Décision différée côté cible : la demande reste sortante
		slog.DebugContext(ctx, "Follow request still pending at peer", "target_id", targetID)
		return nil
	}
	if resp.Accepted && (resp.AccountDetails == nil || resp.AccountDetails.UserID != targetID) {
		return domain.Malformed(fmt.Errorf("accepted follow response from %q must carry its account details", targetID))
	}

	self, err := s.settings.Self(ctx)
	if err != nil {
		return err
	}

	w, wctx := errgroup.WithContext(ctx)
	w.Go(func() error { return s.rel.Remove(wctx, domain.SetOutgoingRequests, targetID) })
	if resp.Accepted {
		details := *resp.AccountDetails
		w.Go(func() error { return s.rel.Add(wctx, domain.SetFollowing, targetID) })
		w.Go(func() error { return s.tracked.Put(wctx, domain.NewTrackedAccount(details)) })
		w.Go(func() error {
			return s.subscriber.Subscribe(wctx, ports.TopicProfile, details.ProfileTopicID, self.UserID)
		})
		w.Go(func() error {
			return s.subscriber.Subscribe(wctx, ports.TopicPosts, details.PostsTopicID, self.UserID)
		})
	}
	if err := w.Wait(); err != nil {
		return fmt.Errorf("apply follow response: %w", err)
	}
	slog.InfoContext(ctx, "📬 Follow response applied", "target_id", targetID, "accepted", resp.Accepted)

	if resp.Nested != nil {
		nestedTarget := targetID
		if resp.Nested.AccountDetails != nil {
			nestedTarget = resp.Nested.AccountDetails.UserID
		}
		return s.HandleFollowResponse(ctx, nestedTarget, resp.Nested)
	}
	return nil
}

// --- RÉGLAGES ---

func (s *FollowService) SetPublic(ctx context.Context, caller domain.AuthenticatedIdentity, public bool) error {
	if _, err := s.requireOwner(ctx, caller); err != nil {
		return err
	}
	return s.settings.SetPublic(ctx, public)
}

func (s *FollowService) Members(ctx context.Context, caller domain.AuthenticatedIdentity, set domain.SetName) (*domain.Members, error) {
	if _, err := s.requireOwner(ctx, caller); err != nil {
		return nil, err
	}
	if !set.Valid() {
		return nil, domain.Malformed(fmt.Errorf("unknown relationship set %q", set))
	}

	ids, err := s.rel.All(ctx, set)
	if err != nil {
		return nil, err
	}
	accounts, err := s.tracked.BatchGet(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &domain.Members{Set: set, UserIDs: ids, Accounts: make(map[string]domain.AccountIdentity, len(accounts))}
	for id, acc := range accounts {
		out.Accounts[id] = acc.AccountIdentity
	}
	return out, nil
}

func (s *FollowService) requireOwner(ctx context.Context, caller domain.AuthenticatedIdentity) (domain.AccountIdentity, error) {
	self, err := s.settings.Self(ctx)
	if err != nil {
		return domain.AccountIdentity{}, err
	}
	if caller.UserID != self.UserID {
		return domain.AccountIdentity{}, fmt.Errorf("%w: owner-only operation", domain.ErrUnauthorized)
	}
	return self, nil
}
