package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

// --- Relationship store ---

type memStore struct {
	mu   sync.Mutex
	sets map[domain.SetName]map[string]struct{}
}

func newMemStore() *memStore {
	return &memStore{sets: map[domain.SetName]map[string]struct{}{}}
}

func (s *memStore) AddMember(_ context.Context, set domain.SetName, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sets[set]
	if !ok {
		m = map[string]struct{}{}
		s.sets[set] = m
	}
	if _, exists := m[value]; exists {
		return domain.ErrAlreadyPresent
	}
	m[value] = struct{}{}
	return nil
}

func (s *memStore) RemoveMember(_ context.Context, set domain.SetName, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sets[set][value]; !exists {
		return domain.ErrNotPresent
	}
	delete(s.sets[set], value)
	return nil
}

func (s *memStore) Contains(_ context.Context, set domain.SetName, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[set][value]
	return ok, nil
}

func (s *memStore) AllMembers(_ context.Context, set domain.SetName) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sets[set]))
	for v := range s.sets[set] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memStore) members(set domain.SetName) []string {
	out, _ := s.AllMembers(context.Background(), set)
	return out
}

// --- Tracked accounts ---

type memTracked struct {
	mu       sync.Mutex
	accounts map[string]domain.TrackedAccount
}

func newMemTracked() *memTracked {
	return &memTracked{accounts: map[string]domain.TrackedAccount{}}
}

func (t *memTracked) Get(_ context.Context, userID string) (*domain.TrackedAccount, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	acc, ok := t.accounts[userID]
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func (t *memTracked) Put(_ context.Context, account *domain.TrackedAccount) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accounts[account.UserID] = *account
	return nil
}

func (t *memTracked) BatchGet(ctx context.Context, userIDs []string) (map[string]*domain.TrackedAccount, error) {
	out := map[string]*domain.TrackedAccount{}
	for _, id := range userIDs {
		acc, _ := t.Get(ctx, id)
		if acc != nil {
			out[id] = acc
		}
	}
	return out, nil
}

// --- Settings ---

type memSettings struct {
	mu     sync.Mutex
	self   domain.AccountIdentity
	public bool
}

func (s *memSettings) Self(context.Context) (domain.AccountIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self, nil
}

func (s *memSettings) SaveSelf(_ context.Context, identity domain.AccountIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = identity
	return nil
}

func (s *memSettings) IsPublic(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.public, nil
}

func (s *memSettings) SetPublic(_ context.Context, public bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.public = public
	return nil
}

// --- Logs ---

type memLog[T any] struct {
	mu    sync.Mutex
	items map[string]T
	key   func(T) (int64, string)
}

func newMemLog[T any](key func(T) (int64, string)) *memLog[T] {
	return &memLog[T]{items: map[string]T{}, key: key}
}

func (l *memLog[T]) Append(_ context.Context, item T) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, id := l.key(item)
	l.items[id] = item
	return nil
}

func (l *memLog[T]) Page(_ context.Context, after *domain.Cursor, limit int) ([]T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := make([]T, 0, len(l.items))
	for _, it := range l.items {
		all = append(all, it)
	}
	sort.Slice(all, func(i, j int) bool {
		ti, ii := l.key(all[i])
		tj, ij := l.key(all[j])
		if ti != tj {
			return ti > tj
		}
		return ii > ij
	})
	out := make([]T, 0, limit)
	for _, it := range all {
		ts, id := l.key(it)
		if after != nil && (ts > after.Timestamp || (ts == after.Timestamp && id >= after.ID)) {
			continue
		}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *memLog[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func newPostLog() *memLog[*domain.Post] {
	return newMemLog(func(p *domain.Post) (int64, string) { return p.Timestamp, p.ID })
}

func newFeedLog() *memLog[*domain.FeedEntry] {
	return newMemLog(func(e *domain.FeedEntry) (int64, string) { return e.Timestamp, e.ID })
}

// --- Pub/Sub ---

type subscription struct {
	kind     ports.TopicKind
	topic    string
	endpoint string
}

type fakeSubscriber struct {
	mu   sync.Mutex
	subs []subscription
	bus  *fakeBus
	node *node
}

func (f *fakeSubscriber) Subscribe(_ context.Context, kind ports.TopicKind, topicID, endpointID string) error {
	f.mu.Lock()
	for _, s := range f.subs {
		if s.topic == topicID {
			f.mu.Unlock()
			return nil
		}
	}
	f.subs = append(f.subs, subscription{kind: kind, topic: topicID, endpoint: endpointID})
	f.mu.Unlock()
	if f.bus != nil {
		f.bus.attach(topicID, f.node)
	}
	return nil
}

func (f *fakeSubscriber) topics(kind ports.TopicKind) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.subs {
		if s.kind == kind {
			out = append(out, s.topic)
		}
	}
	return out
}

type published struct {
	topic   string
	post    *domain.PostEvent
	profile *domain.AccountIdentity
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
	bus  *fakeBus
}

func (p *fakePublisher) PublishPost(ctx context.Context, topicID string, event domain.PostEvent) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.sent = append(p.sent, published{topic: topicID, post: &event})
	p.mu.Unlock()
	if p.bus != nil {
		p.bus.deliverPost(ctx, topicID, event)
	}
	return nil
}

func (p *fakePublisher) PublishProfile(ctx context.Context, topicID string, identity domain.AccountIdentity) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.sent = append(p.sent, published{topic: topicID, profile: &identity})
	p.mu.Unlock()
	if p.bus != nil {
		p.bus.deliverProfile(ctx, topicID, identity)
	}
	return nil
}

// fakeBus relie les topics publiés aux services d'ingestion des abonnés.
type fakeBus struct {
	mu   sync.Mutex
	subs map[string][]*node
}

func newFakeBus() *fakeBus { return &fakeBus{subs: map[string][]*node{}} }

func (b *fakeBus) attach(topic string, n *node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], n)
}

func (b *fakeBus) listeners(topic string) []*node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*node(nil), b.subs[topic]...)
}

func (b *fakeBus) deliverPost(ctx context.Context, topic string, ev domain.PostEvent) {
	for _, n := range b.listeners(topic) {
		_, _ = n.fanout.IngestPost(ctx, topic, ev)
	}
}

func (b *fakeBus) deliverProfile(ctx context.Context, topic string, identity domain.AccountIdentity) {
	for _, n := range b.listeners(topic) {
		_, _ = n.fanout.IngestProfile(ctx, topic, identity)
	}
}

// --- Dispatch ---

type fakeGate struct {
	mu   sync.Mutex
	jobs []domain.DispatchJob
	err  error
	// failKind fait échouer uniquement les jobs de ce kind
	failKind domain.JobKind
}

func (g *fakeGate) Enqueue(_ context.Context, job domain.DispatchJob) error {
	if g.err != nil {
		return g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failKind != "" && job.Kind == g.failKind {
		return &domain.TransportError{Origin: "jetstream", Path: job.Path, Status: 503}
	}
	g.jobs = append(g.jobs, job)
	return nil
}

func (g *fakeGate) byKind(kind domain.JobKind) []domain.DispatchJob {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.DispatchJob
	for _, j := range g.jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

// networkGate exécute les jobs immédiatement contre le nœud pair, comme le ferait
// l'appel HTTP suivi du routage de la réponse par le worker.
type networkGate struct {
	from  *node
	nodes map[string]*node
}

func (g *networkGate) Enqueue(ctx context.Context, job domain.DispatchJob) error {
	peer, ok := g.nodes[job.PeerUserID]
	if !ok {
		return &domain.TransportError{Origin: job.OriginURL, Path: job.Path, Status: 404}
	}
	caller, err := fakeTokens{}.Verify(job.BearerToken)
	if err != nil {
		return err
	}
	switch job.Path {
	case domain.PathFollowRequest:
		resp, err := peer.follow.ReceiveFollowRequest(ctx, *caller, job.Payload.(domain.FollowRequest))
		if err != nil {
			return err
		}
		return g.from.follow.HandleFollowResponse(ctx, job.PeerUserID, resp)
	case domain.PathFollowRequestResponse:
		return peer.follow.HandleFollowResponse(ctx, caller.UserID, job.Payload.(*domain.FollowResponse))
	default:
		return fmt.Errorf("unexpected path %s", job.Path)
	}
}

// --- Tokens ---

type fakeTokens struct{}

func (fakeTokens) Issue(userID string) (string, error) { return "tok:" + userID, nil }

func (fakeTokens) Verify(token string) (*domain.AuthenticatedIdentity, error) {
	id, ok := strings.CutPrefix(token, "tok:")
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	return &domain.AuthenticatedIdentity{UserID: id, AuthToken: token}, nil
}

// --- Fixture ---

func identity(userID string) domain.AccountIdentity {
	return domain.AccountIdentity{
		UserID:         userID,
		APIOrigin:      "https://" + userID + ".example.com",
		PostsTopicID:   domain.PostsTopic(userID),
		ProfileTopicID: domain.ProfileTopic(userID),
		DisplayName:    strings.ToUpper(userID),
	}
}

func caller(userID string) domain.AuthenticatedIdentity {
	return domain.AuthenticatedIdentity{UserID: userID, AuthToken: "tok:" + userID}
}

// node regroupe les stores et services d'une stack de compte.
type node struct {
	self       domain.AccountIdentity
	store      *memStore
	tracked    *memTracked
	settings   *memSettings
	posts      *memLog[*domain.Post]
	feed       *memLog[*domain.FeedEntry]
	publisher  *fakePublisher
	subscriber *fakeSubscriber
	gate       *fakeGate

	follow *FollowService
	fanout *FanoutService
	query  *QueryService
}

func newNode(userID string, public bool) *node {
	return newNodeWithGate(userID, public, nil, nil)
}

func newNodeWithGate(userID string, public bool, gate ports.DispatchGate, bus *fakeBus) *node {
	n := &node{
		self:      identity(userID),
		store:     newMemStore(),
		tracked:   newMemTracked(),
		posts:     newPostLog(),
		feed:      newFeedLog(),
		publisher: &fakePublisher{bus: bus},
		gate:      &fakeGate{},
	}
	n.settings = &memSettings{self: n.self, public: public}
	n.subscriber = &fakeSubscriber{bus: bus, node: n}
	if gate == nil {
		gate = n.gate
	}
	n.follow = NewFollowService(n.store, n.tracked, n.settings, n.subscriber, gate, fakeTokens{})
	n.fanout = NewFanoutService(n.store, n.tracked, n.settings, n.posts, n.feed, n.publisher)
	n.query = NewQueryService(n.store, n.tracked, n.settings, n.posts, n.feed, domain.DefaultPageSize)
	return n
}
