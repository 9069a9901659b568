package domain

import "fmt"

// JobKind indique comment la réponse d'un appel différé doit être traitée.
type JobKind string

const (
	// JobFollowRequest : la réponse est un verdict à appliquer côté demandeur.
	JobFollowRequest JobKind = "follow-request"
	// JobFollowResponse : notification du verdict, réponse ignorée.
	JobFollowResponse JobKind = "follow-request-response"
)

// Chemins de l'API de fédération.
const (
	PathFollowRequest         = "/federation/follow-request"
	PathFollowRequestResponse = "/federation/follow-request-response"
)

// DispatchJob décrit un appel inter-comptes confié à la gate asynchrone.
type DispatchJob struct {
	ID          string
	Kind        JobKind
	PeerUserID  string
	OriginURL   string
	Path        string
	BearerToken string
	Method      string
	// Payload est un domain.FollowRequest ou un *domain.FollowResponse,
	// sérialisé par l'adapter de la gate.
	Payload any
}

// VerdictJobID est stable pour un même verdict : si le propriétaire relance une
// réponse restée à moitié appliquée, la gate reconnaît le job déjà envoyé.
func VerdictJobID(targetID, requesterID string, accepted bool) string {
	return fmt.Sprintf("%s:%s:%s:%t", JobFollowResponse, targetID, requesterID, accepted)
}

// RequestJobID est stable pour une même paire demandeur/cible.
func RequestJobID(requesterID, targetID string) string {
	return fmt.Sprintf("%s:%s:%s", JobFollowRequest, requesterID, targetID)
}
