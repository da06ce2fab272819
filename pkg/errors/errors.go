package dealroom_errors

import "errors"

// Common errors
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRateLimited       = errors.New("rate limited")
	ErrAlreadyExists     = errors.New("already exists")
)

// Negotiation and channel errors
var (
	ErrInvalidOfferAmount  = errors.New("offer amount outside allowed bounds")
	ErrMessageTooLarge     = errors.New("message too large")
	ErrOutOfTurn           = errors.New("out of turn")
	ErrNegotiationClosed   = errors.New("negotiation closed")
	ErrNegotiationConflict = errors.New("negotiation modified concurrently")
	ErrNegotiationExists   = errors.New("negotiation already in progress")
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindAuthorization Kind = "AUTHORIZATION"
	KindConflict      Kind = "CONFLICT"
	KindTransient     Kind = "TRANSIENT"
	KindTerminalState Kind = "TERMINAL_STATE"
	KindNotFound      Kind = "NOT_FOUND"
)

// KindOf classifies err. Anything unrecognised is treated as transient:
// the store or transport failed and the caller may retry with backoff.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidOfferAmount),
		errors.Is(err, ErrMessageTooLarge),
		errors.Is(err, ErrOutOfTurn),
		errors.Is(err, ErrInvalidTransition):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrNegotiationConflict),
		errors.Is(err, ErrNegotiationExists),
		errors.Is(err, ErrAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrNegotiationClosed):
		return KindTerminalState
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindTransient
	}
}

// Retryable reports whether the same call may succeed if repeated.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNegotiationExists) {
		return false
	}
	k := KindOf(err)
	return k == KindConflict || k == KindTransient
}

// Code returns the wire code used in REST and channel error payloads.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidOfferAmount):
		return "INVALID_OFFER_AMOUNT"
	case errors.Is(err, ErrMessageTooLarge):
		return "MESSAGE_TOO_LARGE"
	case errors.Is(err, ErrOutOfTurn):
		return "OUT_OF_TURN"
	case errors.Is(err, ErrNegotiationClosed):
		return "NEGOTIATION_CLOSED"
	case errors.Is(err, ErrNegotiationConflict):
		return "NEGOTIATION_CONFLICT"
	case errors.Is(err, ErrNegotiationExists):
		return "NEGOTIATION_EXISTS"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	}
	return string(KindOf(err))
}

// HTTPStatus maps an error to the response status used by the REST layer.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrRateLimited):
		return 429
	case errors.Is(err, ErrUnauthorized):
		return 401
	}
	switch KindOf(err) {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindConflict, KindTerminalState:
		return 409
	default:
		return 503
	}
}
