package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

// Relationships enrobe le store : une écriture conditionnelle qui tombe sur un
// état déjà cohérent est loggée puis traitée comme un succès.
type Relationships struct {
	store ports.RelationshipStore
}

func NewRelationships(store ports.RelationshipStore) *Relationships {
	return &Relationships{store: store}
}

func (r *Relationships) Add(ctx context.Context, set domain.SetName, value string) error {
	err := r.store.AddMember(ctx, set, value)
	if errors.Is(err, domain.ErrAlreadyPresent) {
		slog.DebugContext(ctx, "Conditional add was a no-op", "set", set, "value", value)
		return nil
	}
	return err
}

func (r *Relationships) Remove(ctx context.Context, set domain.SetName, value string) error {
	err := r.store.RemoveMember(ctx, set, value)
	if errors.Is(err, domain.ErrNotPresent) {
		slog.DebugContext(ctx, "Conditional remove was a no-op", "set", set, "value", value)
		return nil
	}
	return err
}

func (r *Relationships) Contains(ctx context.Context, set domain.SetName, value string) (bool, error) {
	return r.store.Contains(ctx, set, value)
}

func (r *Relationships) All(ctx context.Context, set domain.SetName) ([]string, error) {
	return r.store.AllMembers(ctx, set)
}
