package authority

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusErr struct{ status int }

func (e statusErr) Error() string   { return fmt.Sprintf("upstream answered %d", e.status) }
func (e statusErr) HTTPStatus() int { return e.status }

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrTokenMissing, http.StatusBadRequest},
		{ErrTokenInvalidOrRevoked, http.StatusUnauthorized},
		{ErrSessionExpired, http.StatusUnauthorized},
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrAdminRequired, http.StatusForbidden},
		{ErrUpstreamUnavailable, http.StatusBadGateway},
		{ErrTokenMalformed, http.StatusUnauthorized},
		{fmt.Errorf("login: %w", ErrInvalidCredentials), http.StatusUnauthorized},
		{statusErr{http.StatusConflict}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "%v", tc.err)
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "invalid credentials", Message(fmt.Errorf("wrapped: %w", ErrInvalidCredentials)))
	assert.Equal(t, "session expired; please login again", Message(ErrSessionExpired))
	assert.Equal(t, "upstream answered 409", Message(statusErr{409}))
	assert.Equal(t, "internal error", Message(errors.New("dial tcp: secret detail")))
}
