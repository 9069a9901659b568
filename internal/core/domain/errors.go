package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyPresent      = errors.New("member already present")
	ErrNotPresent          = errors.New("member not present")
	ErrMalformedPayload    = errors.New("malformed payload")
	ErrInvalidCursor       = errors.New("invalid page cursor")
	ErrNotFound            = errors.New("not found")
	ErrSyncCallsDisallowed = errors.New("synchronous cross-account calls are disallowed")
)

// StaleProtocolStateError signale qu'une étape du handshake dépend d'un fait qui
// n'est plus vrai. On ne la rejoue jamais automatiquement.
type StaleProtocolStateError struct {
	Step  string
	Facts map[string]any
}

func NewStaleProtocolState(step string, facts map[string]any) *StaleProtocolStateError {
	return &StaleProtocolStateError{Step: step, Facts: facts}
}

func (e *StaleProtocolStateError) Error() string {
	parts := make([]string, 0, len(e.Facts))
	for k, v := range e.Facts {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprintf("stale protocol state at %s: %s", e.Step, strings.Join(parts, ", "))
}

// TransportError est un échec d'appel sortant (HTTP pair ou topic).
type TransportError struct {
	Origin string
	Path   string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport failure %s%s: %v", e.Origin, e.Path, e.Err)
	}
	return fmt.Sprintf("transport failure %s%s: status %d", e.Origin, e.Path, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Malformed enrobe une erreur de parsing dans ErrMalformedPayload.
func Malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
}
