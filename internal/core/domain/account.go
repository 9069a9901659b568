package domain

import (
	"fmt"
	"strings"
	"time"
)

// AccountIdentity est la carte d'identité publique d'une stack de compte.
// Seuls DisplayName et PhotoURL changent après publication à un pair.
type AccountIdentity struct {
	UserID         string
	APIOrigin      string
	PostsTopicID   string
	ProfileTopicID string
	DisplayName    string
	PhotoURL       string
}

// TrackedAccount est la copie locale (eventually consistent) de l'identité d'un pair.
type TrackedAccount struct {
	AccountIdentity
	UpdatedAt time.Time
}

// AuthenticatedIdentity est ce que l'edge extrait d'une requête entrante.
type AuthenticatedIdentity struct {
	UserID    string
	AuthToken string
}

// PeerRef désigne un compte distant avant qu'on ait son identité complète.
type PeerRef struct {
	UserID    string
	APIOrigin string
}

// PostsTopic et ProfileTopic donnent les sujets par défaut d'un compte.
func PostsTopic(userID string) string   { return fmt.Sprintf("accounts.%s.posts", userID) }
func ProfileTopic(userID string) string { return fmt.Sprintf("accounts.%s.profile", userID) }

// NewTrackedAccount horodate une identité reçue d'un pair.
func NewTrackedAccount(identity AccountIdentity) *TrackedAccount {
	return &TrackedAccount{AccountIdentity: identity, UpdatedAt: time.Now().UTC()}
}

// ApplyProfile écrase uniquement les champs mutables du profil.
func (t *TrackedAccount) ApplyProfile(update AccountIdentity) {
	t.DisplayName = strings.TrimSpace(update.DisplayName)
	t.PhotoURL = strings.TrimSpace(update.PhotoURL)
	t.UpdatedAt = time.Now().UTC()
}

// WithProfile renvoie une copie de l'identité avec le nouveau profil.
func (a AccountIdentity) WithProfile(displayName, photoURL string) AccountIdentity {
	a.DisplayName = strings.TrimSpace(displayName)
	a.PhotoURL = strings.TrimSpace(photoURL)
	return a
}
