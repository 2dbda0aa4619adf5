package authority

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidCredentials never says whether the account or the password was wrong.
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrTokenMissing          = errors.New("token missing")
	ErrTokenInvalidOrRevoked = errors.New("invalid or revoked token")
	ErrUnauthenticated       = errors.New("authentication required")
	ErrAdminRequired         = errors.New("admin privileges required")
	ErrUpstreamUnavailable   = errors.New("identity service unavailable")
	ErrTokenMalformed        = errors.New("malformed token")

	// ErrSessionExpired is returned when a well-formed token has no cache
	// entry, whatever the ledger says.
	ErrSessionExpired error = sessionExpiredError{}
)

type sessionExpiredError struct{}

func (sessionExpiredError) Error() string { return "session expired; please login again" }

func (sessionExpiredError) Unwrap() error { return ErrTokenInvalidOrRevoked }

// HTTPStatus maps an authority error to a response status. Errors that
// carry their own status (upstream answers) keep it.
func HTTPStatus(err error) int {
	var withStatus interface{ HTTPStatus() int }
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTokenMissing):
		return http.StatusBadRequest
	case errors.Is(err, ErrAdminRequired):
		return http.StatusForbidden
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenInvalidOrRevoked),
		errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrTokenMalformed):
		return http.StatusUnauthorized
	case errors.As(err, &withStatus):
		return withStatus.HTTPStatus()
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text for err. Unclassified errors get a
// generic message so internals do not leak.
func Message(err error) string {
	for _, known := range []error{
		ErrSessionExpired,
		ErrInvalidCredentials,
		ErrTokenMissing,
		ErrTokenInvalidOrRevoked,
		ErrUnauthenticated,
		ErrAdminRequired,
		ErrUpstreamUnavailable,
		ErrTokenMalformed,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) {
		return err.Error()
	}
	return "internal error"
}
