package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PostType string

const (
	PostTypeText  PostType = "text"
	PostTypeImage PostType = "image"
	PostTypeVideo PostType = "video"
	PostTypeLink  PostType = "link"
)

type Operation string

const OperationCreate Operation = "create"

// DefaultPageSize est la taille fixe des pages Posts / Feed.
const DefaultPageSize = 5

// Post est immuable une fois créé.
type Post struct {
	ID        string
	UserID    string
	Type      PostType
	Body      string
	MediaURL  string
	Timestamp int64 // millisecondes UTC
}

// NewPost crée un post avec son ID et son horodatage.
func NewPost(userID string, postType PostType, body, mediaURL string) *Post {
	return &Post{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      postType,
		Body:      strings.TrimSpace(body),
		MediaURL:  strings.TrimSpace(mediaURL),
		Timestamp: time.Now().UTC().UnixMilli(),
	}
}

// PostEvent est ce qui circule sur le topic Posts d'un compte.
type PostEvent struct {
	ID        string
	Timestamp int64
	Type      PostType
	Operation Operation
	UserID    string
	Body      string
}

func (p *Post) Event() PostEvent {
	return PostEvent{
		ID:        p.ID,
		Timestamp: p.Timestamp,
		Type:      p.Type,
		Operation: OperationCreate,
		UserID:    p.UserID,
		Body:      p.Body,
	}
}

// FeedEntry est la copie locale d'un post d'un compte suivi.
type FeedEntry struct {
	ID        string
	Timestamp int64
	Type      PostType
	Operation Operation
	UserID    string
	Body      string
}

func NewFeedEntry(ev PostEvent) *FeedEntry {
	return &FeedEntry{
		ID:        ev.ID,
		Timestamp: ev.Timestamp,
		Type:      ev.Type,
		Operation: ev.Operation,
		UserID:    ev.UserID,
		Body:      ev.Body,
	}
}

// Cursor est la clé de tri décomposée "{timestamp}-{id}".
type Cursor struct {
	Timestamp int64
	ID        string
}

func (c Cursor) String() string {
	return fmt.Sprintf("%d-%s", c.Timestamp, c.ID)
}

// SortKey renvoie la clé de tri composite d'un élément.
func SortKey(timestamp int64, id string) string {
	return Cursor{Timestamp: timestamp, ID: id}.String()
}

// ParseCursor décompose le curseur opaque. L'ID peut contenir des tirets (UUID),
// on ne coupe donc qu'au premier.
func ParseCursor(raw string) (*Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	ts, id, ok := strings.Cut(raw, "-")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, raw)
	}
	timestamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || timestamp < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, raw)
	}
	return &Cursor{Timestamp: timestamp, ID: id}, nil
}

// PageRequest encapsule les critères de pagination.
type PageRequest struct {
	Caller        string
	Cursor        string
	CachedUserIDs []string
}

// Page est une page strictement décroissante.
type Page[T any] struct {
	Items      []T
	NextCursor string
	Accounts   map[string]AccountIdentity
}
