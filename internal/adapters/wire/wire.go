// Package wire contient les formats JSON échangés entre stacks (HTTP, topics, jobs).
// Tout payload entrant est décodé et validé ici, une seule fois, avant d'atteindre le cœur.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

var validate = validator.New()

// AccountIdentity est la forme JSON d'une identité de compte.
type AccountIdentity struct {
	UserID         string `json:"userId" validate:"required"`
	APIOrigin      string `json:"apiOrigin" validate:"required,url"`
	PostsTopicID   string `json:"postsTopicId" validate:"required"`
	ProfileTopicID string `json:"profileTopicId" validate:"required"`
	DisplayName    string `json:"displayName" validate:"required"`
	PhotoURL       string `json:"photoUrl,omitempty" validate:"omitempty,url"`
}

type FollowRequest struct {
	Requester AccountIdentity `json:"requester"`
}

type FollowResponse struct {
	Accepted       bool             `json:"accepted"`
	AccountDetails *AccountIdentity `json:"accountDetails,omitempty" validate:"required_if=Accepted true,excluded_if=Accepted false"`
	Nested         *FollowResponse  `json:"nested,omitempty"`
}

// PostEvent est le message publié sur un topic Posts.
type PostEvent struct {
	ID        string `json:"id" validate:"required"`
	Timestamp int64  `json:"timestamp" validate:"gt=0"`
	Type      string `json:"type" validate:"required"`
	Operation string `json:"operation" validate:"required,eq=create"`
	UserID    string `json:"userId" validate:"required"`
	Body      string `json:"body"`
}

// --- Requêtes de l'API propriétaire ---

type SendFollowRequest struct {
	UserID    string `json:"userId" validate:"required"`
	APIOrigin string `json:"apiOrigin" validate:"required,url"`
}

type CreatePost struct {
	Type     string `json:"type" validate:"required,oneof=text image video link"`
	Body     string `json:"body" validate:"required_without=MediaURL"`
	MediaURL string `json:"mediaUrl,omitempty" validate:"omitempty,url"`
}

type UpdateProfile struct {
	DisplayName string `json:"displayName" validate:"required"`
	PhotoURL    string `json:"photoUrl,omitempty" validate:"omitempty,url"`
}

type SetPublic struct {
	Public *bool `json:"public" validate:"required"`
}

// --- Réponses ---

// StatusSubmitted est renvoyé (HTTP 202) quand la cible diffère sa décision.
const StatusSubmitted = "submitted"

type Submitted struct {
	Status string `json:"status"`
}

type Post struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Type      string `json:"type"`
	Body      string `json:"body"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type FeedEntry struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Operation string `json:"operation"`
	UserID    string `json:"userId"`
	Body      string `json:"body"`
}

type Page[T any] struct {
	Items      []T                        `json:"items"`
	NextCursor string                     `json:"nextCursor,omitempty"`
	Accounts   map[string]AccountIdentity `json:"accounts,omitempty"`
}

type Members struct {
	Set      string                     `json:"set"`
	UserIDs  []string                   `json:"userIds"`
	Accounts map[string]AccountIdentity `json:"accounts,omitempty"`
}

// Decode parse puis valide un payload ; tout échec devient domain.ErrMalformedPayload.
func Decode[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, domain.Malformed(err)
	}
	if err := Validate(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Validate applique les tags `validate` d'un DTO déjà décodé.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return domain.Malformed(err)
	}
	return nil
}

// --- Mapping DTO <-> Domain ---

func (a AccountIdentity) ToDomain() domain.AccountIdentity {
	return domain.AccountIdentity{
		UserID:         a.UserID,
		APIOrigin:      a.APIOrigin,
		PostsTopicID:   a.PostsTopicID,
		ProfileTopicID: a.ProfileTopicID,
		DisplayName:    a.DisplayName,
		PhotoURL:       a.PhotoURL,
	}
}

func FromAccount(a domain.AccountIdentity) AccountIdentity {
	return AccountIdentity{
		UserID:         a.UserID,
		APIOrigin:      a.APIOrigin,
		PostsTopicID:   a.PostsTopicID,
		ProfileTopicID: a.ProfileTopicID,
		DisplayName:    a.DisplayName,
		PhotoURL:       a.PhotoURL,
	}
}

func FromAccounts(in map[string]domain.AccountIdentity) map[string]AccountIdentity {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]AccountIdentity, len(in))
	for id, a := range in {
		out[id] = FromAccount(a)
	}
	return out
}

func (r FollowRequest) ToDomain() domain.FollowRequest {
	return domain.FollowRequest{Requester: r.Requester.ToDomain()}
}

func FromFollowRequest(r domain.FollowRequest) FollowRequest {
	return FollowRequest{Requester: FromAccount(r.Requester)}
}

func (r *FollowResponse) ToDomain() *domain.FollowResponse {
	if r == nil {
		return nil
	}
	out := &domain.FollowResponse{Accepted: r.Accepted, Nested: r.Nested.ToDomain()}
	if r.AccountDetails != nil {
		details := r.AccountDetails.ToDomain()
		out.AccountDetails = &details
	}
	return out
}

func FromFollowResponse(r *domain.FollowResponse) *FollowResponse {
	if r == nil {
		return nil
	}
	out := &FollowResponse{Accepted: r.Accepted, Nested: FromFollowResponse(r.Nested)}
	if r.AccountDetails != nil {
		details := FromAccount(*r.AccountDetails)
		out.AccountDetails = &details
	}
	return out
}

func (e PostEvent) ToDomain() domain.PostEvent {
	return domain.PostEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Type:      domain.PostType(e.Type),
		Operation: domain.Operation(e.Operation),
		UserID:    e.UserID,
		Body:      e.Body,
	}
}

func FromPostEvent(e domain.PostEvent) PostEvent {
	return PostEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Type:      string(e.Type),
		Operation: string(e.Operation),
		UserID:    e.UserID,
		Body:      e.Body,
	}
}

func FromPost(p *domain.Post) Post {
	return Post{
		ID:        p.ID,
		UserID:    p.UserID,
		Type:      string(p.Type),
		Body:      p.Body,
		MediaURL:  p.MediaURL,
		Timestamp: p.Timestamp,
	}
}

func FromFeedEntry(e *domain.FeedEntry) FeedEntry {
	return FeedEntry{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Type:      string(e.Type),
		Operation: string(e.Operation),
		UserID:    e.UserID,
		Body:      e.Body,
	}
}

// EncodePayload sérialise le payload d'un job de la gate.
func EncodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case domain.FollowRequest:
		return json.Marshal(FromFollowRequest(p))
	case *domain.FollowResponse:
		return json.Marshal(FromFollowResponse(p))
	case []byte:
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported dispatch payload %T", payload)
	}
}

// DecodeFollowReply interprète la réponse d'un pair à une demande de follow.
// Un corps vide ou {"status":"submitted"} signifie une décision différée (nil).
func DecodeFollowReply(data []byte) (*domain.FollowResponse, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var head Submitted
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, domain.Malformed(err)
	}
	if head.Status == StatusSubmitted {
		return nil, nil
	}
	resp, err := Decode[FollowResponse](data)
	if err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}
