package downstream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoDelegatedTrust is returned before any network call when the
	// request carries no currently-valid delegated credential. The caller
	// must re-establish trust via a fresh login.
	ErrNoDelegatedTrust = errors.New("no valid delegated credential")

	// ErrUnavailable is returned when the downstream service produced no
	// response at all (connection refused, timeout, DNS failure).
	ErrUnavailable = errors.New("downstream service unavailable")
)

// Error is a non-2xx response from the downstream service. A 401 status
// additionally means the delegated credential was rejected and has been
// cleared.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("downstream returned %d: %s", e.Status, e.Message)
}

// NotFound reports whether the downstream rejected the request because
// the target resource does not exist.
func (e *Error) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// CredentialRejected reports whether the downstream rejected the
// delegated credential itself.
func (e *Error) CredentialRejected() bool {
	return e.Status == http.StatusUnauthorized
}
