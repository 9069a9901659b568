package domain

// SetName identifie l'un des cinq ensembles de relations d'un compte.
type SetName string

const (
	SetFollowing        SetName = "following"
	SetFollowers        SetName = "followers"
	SetIncomingRequests SetName = "incoming-requests"
	SetOutgoingRequests SetName = "outgoing-requests"
	SetRejectedRequests SetName = "rejected-requests"
)

// AllSets liste les ensembles dans un ordre stable.
var AllSets = []SetName{
	SetFollowing,
	SetFollowers,
	SetIncomingRequests,
	SetOutgoingRequests,
	SetRejectedRequests,
}

func (s SetName) Valid() bool {
	for _, known := range AllSets {
		if s == known {
			return true
		}
	}
	return false
}

// FollowRequest est le message éphémère envoyé à la cible.
type FollowRequest struct {
	Requester AccountIdentity
}

// FollowResponse porte le verdict d'une cible.
// AccountDetails est présent si et seulement si Accepted.
// Nested transporte un second verdict à appliquer dans le même aller-retour.
type FollowResponse struct {
	Accepted       bool
	AccountDetails *AccountIdentity
	Nested         *FollowResponse
}

// Accept construit un verdict positif portant l'identité de la cible.
func Accept(self AccountIdentity) *FollowResponse {
	return &FollowResponse{Accepted: true, AccountDetails: &self}
}

// Reject construit un verdict négatif.
func Reject() *FollowResponse {
	return &FollowResponse{Accepted: false}
}

// Members est le contenu d'un ensemble, avec les comptes suivis connus.
type Members struct {
	Set      SetName
	UserIDs  []string
	Accounts map[string]AccountIdentity
}

// IngestOutcome décrit le sort d'un événement reçu sur un topic.
type IngestOutcome string

const (
	OutcomeIngested      IngestOutcome = "ingested"
	OutcomeNotFollowing  IngestOutcome = "not_following"
	OutcomeTopicMismatch IngestOutcome = "topic_mismatch"
)
