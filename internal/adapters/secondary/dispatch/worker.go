// Package dispatch exécute les appels inter-comptes hors du chemin de la requête.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wheaney/social-freedom-sub000/internal/adapters/wire"
	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

var jobsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dispatch_jobs_total",
		Help: "Cross-account calls executed by the dispatch gate",
	},
	[]string{"kind", "outcome"},
)

// envelope est la forme sérialisée d'un domain.DispatchJob.
type envelope struct {
	ID          string          `json:"id" validate:"required"`
	Kind        domain.JobKind  `json:"kind" validate:"required,oneof=follow-request follow-request-response"`
	PeerUserID  string          `json:"peerUserId" validate:"required"`
	OriginURL   string          `json:"originUrl" validate:"required,url"`
	Path        string          `json:"path" validate:"required,startswith=/"`
	BearerToken string          `json:"bearerToken" validate:"required"`
	Method      string          `json:"method" validate:"required"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func encodeJob(job domain.DispatchJob) ([]byte, error) {
	payload, err := wire.EncodePayload(job.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		ID:          job.ID,
		Kind:        job.Kind,
		PeerUserID:  job.PeerUserID,
		OriginURL:   job.OriginURL,
		Path:        job.Path,
		BearerToken: job.BearerToken,
		Method:      job.Method,
		Payload:     payload,
	})
}

// FollowResponseHandler applique le verdict renvoyé par la cible d'une demande.
type FollowResponseHandler func(ctx context.Context, targetID string, resp *domain.FollowResponse) error

// Worker exécute un job : appel du pair, puis routage de la réponse selon le kind.
type Worker struct {
	peers ports.PeerClient

	mu       sync.RWMutex
	onFollow FollowResponseHandler
}

func NewWorker(peers ports.PeerClient) *Worker {
	return &Worker{peers: peers}
}

// OnFollowResponse branche le handler après construction : le service de follow
// dépend lui-même de la gate qui dépend du worker.
func (w *Worker) OnFollowResponse(handler FollowResponseHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onFollow = handler
}

// Execute décode puis exécute un job sérialisé.
func (w *Worker) Execute(ctx context.Context, data []byte) error {
	job, err := wire.Decode[envelope](data)
	if err != nil {
		jobsTotal.WithLabelValues("unknown", "malformed").Inc()
		return err
	}

	l := slog.With("job_id", job.ID, "kind", job.Kind, "peer_id", job.PeerUserID)

	reply, err := w.peers.Call(ctx, job.OriginURL, job.Path, job.BearerToken, job.Method, job.Payload)
	if err != nil {
		jobsTotal.WithLabelValues(string(job.Kind), "transport_error").Inc()
		l.WarnContext(ctx, "❌ Peer call failed", "error", err)
		return err
	}

	if job.Kind == domain.JobFollowRequest {
		if err := w.routeFollowReply(ctx, job.PeerUserID, reply); err != nil {
			jobsTotal.WithLabelValues(string(job.Kind), "reply_error").Inc()
			l.WarnContext(ctx, "❌ Could not apply follow reply", "error", err)
			return err
		}
	}

	jobsTotal.WithLabelValues(string(job.Kind), "ok").Inc()
	l.DebugContext(ctx, "✅ Dispatch job done")
	return nil
}

func (w *Worker) routeFollowReply(ctx context.Context, targetID string, reply []byte) error {
	resp, err := wire.DecodeFollowReply(reply)
	if err != nil {
		return err
	}
	w.mu.RLock()
	handler := w.onFollow
	w.mu.RUnlock()
	if handler == nil {
		return fmt.Errorf("no follow response handler bound")
	}
	return handler(ctx, targetID, resp)
}

// retryable dit si un nouvel essai a une chance d'aboutir.
func retryable(err error) bool {
	var stale *domain.StaleProtocolStateError
	switch {
	case errors.Is(err, domain.ErrMalformedPayload), errors.As(err, &stale):
		return false
	default:
		return true
	}
}
