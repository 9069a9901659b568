package dispatch

import (
	"context"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

// InlineGate exécute le job dans la requête en cours. Réservée aux déploiements
// qui autorisent explicitement les appels synchrones entre comptes.
type InlineGate struct {
	allowSync bool
	worker    *Worker
}

func NewInlineGate(allowSync bool, worker *Worker) *InlineGate {
	return &InlineGate{allowSync: allowSync, worker: worker}
}

func (g *InlineGate) Enqueue(ctx context.Context, job domain.DispatchJob) error {
	if !g.allowSync {
		return domain.ErrSyncCallsDisallowed
	}
	// Même chemin de sérialisation que la gate JetStream
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	return g.worker.Execute(ctx, data)
}
